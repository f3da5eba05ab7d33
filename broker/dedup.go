package broker

const dedupWindowMillis = 5 * 60 * 1000 // hard 5 minutes per spec.md §9; never parameterized

// dedupEntry records enough of the original send to answer a duplicate
// send idempotently, per spec.md §4.1 step 2 ("Hit: do not enqueue;
// return the original message's id and md5").
type dedupEntry struct {
	messageID       string
	bodyMD5         string
	attributesMD5   string
	insertedAtMilli int64
}

// DeduplicationIndex is the FIFO-only 5-minute content/explicit
// deduplication cache from spec.md §4.4. Expiry is lazy (checked on
// Lookup) and periodic (Sweep, called from the same tick that drives
// VisibilityScheduler).
type DeduplicationIndex struct {
	byID map[string]dedupEntry
}

func newDeduplicationIndex() *DeduplicationIndex {
	return &DeduplicationIndex{byID: make(map[string]dedupEntry)}
}

// Lookup returns the entry for dedupId if it was inserted within the
// last 5 minutes as of now. An expired entry is evicted on the way out.
func (d *DeduplicationIndex) Lookup(dedupID string, now int64) (dedupEntry, bool) {
	e, ok := d.byID[dedupID]
	if !ok {
		return dedupEntry{}, false
	}
	if now-e.insertedAtMilli > dedupWindowMillis {
		delete(d.byID, dedupID)
		return dedupEntry{}, false
	}
	return e, true
}

// Insert records a fresh send under dedupId.
func (d *DeduplicationIndex) Insert(dedupID string, e dedupEntry) {
	d.byID[dedupID] = e
}

// Sweep drops every entry older than the dedup window. Called
// periodically from Queue.tickLocked so the index doesn't grow
// unbounded on queues that are sent to but never re-deduplicated.
func (d *DeduplicationIndex) Sweep(now int64) {
	for id, e := range d.byID {
		if now-e.insertedAtMilli > dedupWindowMillis {
			delete(d.byID, id)
		}
	}
}
