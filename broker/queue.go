package broker

import (
	"context"
	"sync"
	"time"
)

// Kind distinguishes Standard from FIFO queues (spec.md §3).
type Kind int

const (
	Standard Kind = iota
	Fifo
)

// Defaults and bounds from spec.md §3.
const (
	DefaultVisibilityTimeoutMillis = 30_000
	MaxVisibilityTimeoutMillis     = 43_200_000
	DefaultDelayMillis             = 0
	MaxDelayMillis                 = 900_000
	DefaultReceiveWaitMillis       = 0
	MaxReceiveWaitMillis           = 20_000
	DefaultRetentionMillis         = 345_600_000
	MinRetentionMillis             = 60_000
	MaxRetentionMillis             = 1_209_600_000
	DefaultMaxMessageSizeBytes     = 262_144
	MinMaxMessageSizeBytes         = 1_024
	MaxMaxMessageSizeBytes         = 262_144
	MaxReceiveCount                = 10
	MaxBatchEntries                = 10
)

// Config is the set of mutable and immutable queue attributes from
// spec.md §3.
type Config struct {
	Name                           string
	Kind                           Kind
	DefaultVisibilityTimeoutMillis int64
	DelayMillis                    int64
	ReceiveMessageWaitMillis       int64
	MessageRetentionMillis         int64
	MaxMessageSizeBytes            int
	ContentBasedDeduplication      bool
}

// DefaultConfig returns a Config with every attribute at its spec.md §3
// default for the given name/kind.
func DefaultConfig(name string, kind Kind) Config {
	return Config{
		Name:                           name,
		Kind:                           kind,
		DefaultVisibilityTimeoutMillis: DefaultVisibilityTimeoutMillis,
		DelayMillis:                    DefaultDelayMillis,
		ReceiveMessageWaitMillis:       DefaultReceiveWaitMillis,
		MessageRetentionMillis:         DefaultRetentionMillis,
		MaxMessageSizeBytes:            DefaultMaxMessageSizeBytes,
	}
}

// Equal reports whether two configs are identical for the purpose of
// QueueManager's idempotent-CreateQueue check (spec.md §4.6): the Name
// is not compared since it is the lookup key, not an attribute.
func (c Config) Equal(o Config) bool {
	return c.Kind == o.Kind &&
		c.DefaultVisibilityTimeoutMillis == o.DefaultVisibilityTimeoutMillis &&
		c.DelayMillis == o.DelayMillis &&
		c.ReceiveMessageWaitMillis == o.ReceiveMessageWaitMillis &&
		c.MessageRetentionMillis == o.MessageRetentionMillis &&
		c.MaxMessageSizeBytes == o.MaxMessageSizeBytes &&
		c.ContentBasedDeduplication == o.ContentBasedDeduplication
}

// Queue is the single-writer unit from spec.md §4.1/§5: every mutation of
// its MessageStore, DeduplicationIndex, GroupLockTable, or waiter list
// happens while holding mu, so two concurrent callers on the same Queue
// never interleave. Two different Queues never share a lock.
type Queue struct {
	mu sync.Mutex

	cfg       Config
	createdAt int64
	updatedAt int64

	clock Clock
	seq   int64

	store   *MessageStore
	sched   *VisibilityScheduler
	dedup   *DeduplicationIndex
	grplock *GroupLockTable
	waiters *LongPollWaitRegistry

	// O(1) approximate statistics, kept in sync at every transition site
	// rather than recomputed by scanning (spec.md §4.1 "Statistics").
	visibleCount  int
	inflightCount int
	delayedCount  int

	receiptOwner map[string]*Message // receiptHandle -> live Inflight message

	deleted bool // set by MarkDeleted; wakes every parked receive with QueueDoesNotExist
}

func newQueue(cfg Config, clock Clock, now int64) *Queue {
	store := newMessageStore()
	return &Queue{
		cfg:          cfg,
		createdAt:    now,
		updatedAt:    now,
		clock:        clock,
		store:        store,
		sched:        newVisibilityScheduler(store),
		dedup:        newDeduplicationIndex(),
		grplock:      newGroupLockTable(),
		waiters:      newLongPollWaitRegistry(),
		receiptOwner: make(map[string]*Message),
	}
}

func (q *Queue) Name() string { return q.cfg.Name }
func (q *Queue) Kind() Kind   { return q.cfg.Kind }

// MarkDeleted implements spec.md §4.6's "deletion is terminal" rule: any
// receive already parked on this queue wakes immediately and returns
// QueueDoesNotExist instead of blocking until its own wait deadline.
func (q *Queue) MarkDeleted() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deleted = true
	q.waiters.NotifyAll()
}

// Config returns a copy of the queue's current attributes.
func (q *Queue) Config() Config {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cfg
}

func (q *Queue) Timestamps() (createdAt, lastModifiedAt int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.createdAt, q.updatedAt
}

// UpdateAttributes applies a partial update (SetQueueAttributes). Kind is
// immutable after creation per spec.md §3 invariant and is never touched
// here; callers must not pass a Config with a different Kind.
func (q *Queue) UpdateAttributes(cfg Config) error {
	cfg.Name = q.Name()
	cfg.Kind = q.Kind()
	if err := ValidateConfig(cfg); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cfg = cfg
	q.updatedAt = q.clock.NowMillis()
	return nil
}

// SendInput carries the per-send overrides from spec.md §4.1.
type SendInput struct {
	Body                   string
	Attributes             map[string]AttributeValue
	DelayOverrideMillis    *int64
	MessageGroupId         string
	MessageDeduplicationId string
}

// SendResult is returned on success, including the deduplicated-hit case.
type SendResult struct {
	MessageID       string
	BodyMD5         string
	AttributesMD5   string // "" when the message had no attributes
	Deduplicated    bool
}

// SendMessage implements spec.md §4.1 "Send algorithm".
func (q *Queue) SendMessage(in SendInput) (SendResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.clock.NowMillis()
	q.tickLocked(now)

	serializedSize := len(in.Body) + attributesByteSize(in.Attributes)
	if serializedSize > q.cfg.MaxMessageSizeBytes {
		return SendResult{}, newLimitErr(CodeMessageTooLong,
			"One or more parameters are invalid. Reason: Message must be shorter than %d bytes.", q.cfg.MaxMessageSizeBytes)
	}

	bodyMD5 := bodyDigest(in.Body)
	attrsMD5 := attributesDigest(in.Attributes)

	if q.cfg.Kind == Fifo {
		if in.MessageGroupId == "" {
			return SendResult{}, newValidationErr(CodeMissingParameter, "The request must contain a MessageGroupId.")
		}
		if err := validateMessageGroupId(in.MessageGroupId); err != nil {
			return SendResult{}, err
		}
		if in.DelayOverrideMillis != nil && *in.DelayOverrideMillis > 0 {
			return SendResult{}, newValidationErr(CodeInvalidParameterValue, "Value for parameter DelaySeconds is invalid. Reason: FIFO queues don't support per-message delay.")
		}

		dedupID := in.MessageDeduplicationId
		if dedupID == "" {
			if q.cfg.ContentBasedDeduplication {
				dedupID = contentDedupId(in.Body)
			} else {
				return SendResult{}, newValidationErr(CodeInvalidParameterValue, "The queue should either have ContentBasedDeduplication enabled or MessageDeduplicationId provided explicitly.")
			}
		}

		if hit, ok := q.dedup.Lookup(dedupID, now); ok {
			return SendResult{MessageID: hit.messageID, BodyMD5: hit.bodyMD5, AttributesMD5: hit.attributesMD5, Deduplicated: true}, nil
		}

		m := q.newMessage(now, in, bodyMD5, attrsMD5)
		m.MessageDeduplicationId = dedupID
		q.store.Insert(m)
		q.bumpCountOnInsert(m, now)
		q.dedup.Insert(dedupID, dedupEntry{messageID: m.ID, bodyMD5: bodyMD5, attributesMD5: attrsMD5, insertedAtMilli: now})

		if m.visibleAt <= now {
			q.waiters.NotifyAll()
		}
		return SendResult{MessageID: m.ID, BodyMD5: bodyMD5, AttributesMD5: attrsMD5}, nil
	}

	// Standard queue: FIFO-only parameters are rejected.
	if in.MessageGroupId != "" || in.MessageDeduplicationId != "" {
		return SendResult{}, newValidationErr(CodeInvalidParameterValue, "The request include parameter that is not valid for this queue type. Reason: MessageGroupId/MessageDeduplicationId is only valid for FIFO queues.")
	}
	if in.DelayOverrideMillis != nil && (*in.DelayOverrideMillis < 0 || *in.DelayOverrideMillis > MaxDelayMillis) {
		return SendResult{}, newValidationErr(CodeInvalidParameterValue, "Value for parameter DelaySeconds is invalid. Reason: Must be an integer from 0 to 900.")
	}

	m := q.newMessage(now, in, bodyMD5, attrsMD5)
	q.store.Insert(m)
	q.bumpCountOnInsert(m, now)
	if m.visibleAt <= now {
		q.waiters.NotifyAll()
	}
	return SendResult{MessageID: m.ID, BodyMD5: bodyMD5, AttributesMD5: attrsMD5}, nil
}

func (q *Queue) newMessage(now int64, in SendInput, bodyMD5, attrsMD5 string) *Message {
	q.seq++
	delay := q.cfg.DelayMillis
	if in.DelayOverrideMillis != nil {
		delay = *in.DelayOverrideMillis
	}
	m := &Message{
		ID:                newMessageID(),
		Body:              in.Body,
		Attributes:        in.Attributes,
		CreatedAt:         now,
		MessageGroupId:    in.MessageGroupId,
		OrderIndex:        q.seq,
		MD5OfBody:         bodyMD5,
		MD5OfAttributes:   attrsMD5,
		RetentionDeadline: now + q.cfg.MessageRetentionMillis,
		st:                statePending,
		visibleAt:         now + delay,
		schedIdx:          -1,
	}
	return m
}

func (q *Queue) bumpCountOnInsert(m *Message, now int64) {
	if m.visibleAt > now {
		q.delayedCount++
	} else {
		q.visibleCount++
	}
}

// ReceiveInput carries the per-receive overrides from spec.md §4.1.
type ReceiveInput struct {
	MaxMessages             int
	VisibilityOverrideMillis *int64
	WaitMillisOverride       *int64
}

// ReceiveMessages implements spec.md §4.1 "Receive algorithm", including
// long-poll parking via LongPollWaitRegistry.
func (q *Queue) ReceiveMessages(ctx context.Context, in ReceiveInput) ([]ReceivedView, error) {
	if in.MaxMessages < 1 || in.MaxMessages > MaxReceiveCount {
		return nil, newValidationErr(CodeInvalidParameterValue, "Value for parameter MaxNumberOfMessages is invalid. Reason: Must be an integer from 1 to 10.")
	}

	q.mu.Lock()
	now := q.clock.NowMillis()
	waitMillis := q.cfg.ReceiveMessageWaitMillis
	if in.WaitMillisOverride != nil {
		waitMillis = *in.WaitMillisOverride
	}
	deadline := now + waitMillis

	for {
		if q.deleted {
			q.mu.Unlock()
			return nil, ErrQueueDoesNotExist(q.cfg.Name)
		}
		q.tickLocked(q.clock.NowMillis())
		selected := q.selectEligibleLocked(in.MaxMessages)
		if len(selected) > 0 {
			views := make([]ReceivedView, 0, len(selected))
			for _, m := range selected {
				views = append(views, q.deliverLocked(m, in.VisibilityOverrideMillis))
			}
			q.mu.Unlock()
			return views, nil
		}

		now = q.clock.NowMillis()
		if now >= deadline {
			q.mu.Unlock()
			return nil, nil
		}

		waiterID, wake := q.waiters.Register()
		q.mu.Unlock()

		remaining := time.Duration(deadline-now) * time.Millisecond
		select {
		case <-wake:
			// Re-check under the lock; spurious wakeups are expected.
		case <-q.clock.After(remaining):
			q.mu.Lock()
			q.waiters.Cancel(waiterID)
			q.mu.Unlock()
			return nil, nil
		case <-ctx.Done():
			q.mu.Lock()
			q.waiters.Cancel(waiterID)
			q.mu.Unlock()
			return nil, ctx.Err()
		}
		q.mu.Lock()
	}
}

// selectEligibleLocked implements the selection-order rules of spec.md
// §4.1 step 2: strict ascending orderIndex with group locking for FIFO,
// unspecified-but-stable oldest-first scan for Standard.
func (q *Queue) selectEligibleLocked(max int) []*Message {
	now := q.clock.NowMillis()
	var out []*Message

	if q.cfg.Kind == Fifo {
		takenThisBatch := make(map[string]bool)
		for _, m := range q.store.byOrder {
			if len(out) >= max {
				break
			}
			if q.store.Get(m.ID) == nil || m.st != statePending || m.visibleAt > now {
				continue
			}
			if q.grplock.Locked(m.MessageGroupId) || takenThisBatch[m.MessageGroupId] {
				continue
			}
			out = append(out, m)
			takenThisBatch[m.MessageGroupId] = true
		}
		return out
	}

	for _, m := range q.store.byOrder {
		if len(out) >= max {
			break
		}
		if q.store.Get(m.ID) == nil || m.st != statePending || m.visibleAt > now {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (q *Queue) deliverLocked(m *Message, visOverride *int64) ReceivedView {
	now := q.clock.NowMillis()
	vis := q.cfg.DefaultVisibilityTimeoutMillis
	if visOverride != nil {
		vis = *visOverride
	}

	q.visibleCount--
	q.inflightCount++

	m.st = stateInflight
	m.receiptHandle = newReceiptHandle()
	m.visibilityDeadline = now + vis
	m.ReceiveCount++
	if m.FirstReceived == 0 {
		m.FirstReceived = now
	}
	q.store.Reschedule(m, schedKey(m))
	q.receiptOwner[m.receiptHandle] = m

	if q.cfg.Kind == Fifo {
		q.grplock.Acquire(m.MessageGroupId)
	}

	return ReceivedView{Message: *m, ReceiptHandle: m.receiptHandle, VisibleAfter: m.visibilityDeadline}
}

// DeleteMessage implements spec.md §4.1 "Delete".
func (q *Queue) DeleteMessage(receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.clock.NowMillis()
	q.tickLocked(now)

	m, ok := q.receiptOwner[receiptHandle]
	if !ok || m.st != stateInflight || m.receiptHandle != receiptHandle {
		return ErrReceiptHandleInvalid()
	}

	delete(q.receiptOwner, receiptHandle)
	q.inflightCount--
	if q.cfg.Kind == Fifo {
		q.grplock.Release(m.MessageGroupId)
	}
	m.st = stateRemoved
	q.store.Remove(m)
	return nil
}

// ChangeMessageVisibility implements spec.md §4.1 "ChangeVisibility".
func (q *Queue) ChangeMessageVisibility(receiptHandle string, newTimeoutMillis int64) error {
	if newTimeoutMillis < 0 || newTimeoutMillis > MaxVisibilityTimeoutMillis {
		return newValidationErr(CodeInvalidParameterValue, "Value for parameter VisibilityTimeout is invalid. Reason: Must be an integer from 0 to 43200.")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.clock.NowMillis()
	q.tickLocked(now)

	m, ok := q.receiptOwner[receiptHandle]
	if !ok || m.st != stateInflight || m.receiptHandle != receiptHandle {
		return ErrReceiptHandleInvalid()
	}

	if newTimeoutMillis == 0 {
		delete(q.receiptOwner, receiptHandle)
		q.inflightCount--
		q.visibleCount++
		if q.cfg.Kind == Fifo {
			q.grplock.Release(m.MessageGroupId)
		}
		m.st = statePending
		m.visibleAt = now
		m.receiptHandle = ""
		m.visibilityDeadline = 0
		q.store.Reschedule(m, schedKey(m))
		q.waiters.NotifyAll()
		return nil
	}

	m.visibilityDeadline = now + newTimeoutMillis
	q.store.Reschedule(m, schedKey(m))
	return nil
}

// Purge implements spec.md §4.1 "purge": removes every message
// regardless of state.
func (q *Queue) Purge() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.store = newMessageStore()
	q.sched = newVisibilityScheduler(q.store)
	q.dedup = newDeduplicationIndex()
	q.grplock = newGroupLockTable()
	q.receiptOwner = make(map[string]*Message)
	q.visibleCount, q.inflightCount, q.delayedCount = 0, 0, 0
}

// Statistics implements spec.md §4.1 "statistics".
type Statistics struct {
	ApproxVisible  int
	ApproxInflight int
	ApproxDelayed  int
}

func (q *Queue) Statistics() Statistics {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tickLocked(q.clock.NowMillis())
	return Statistics{ApproxVisible: q.visibleCount, ApproxInflight: q.inflightCount, ApproxDelayed: q.delayedCount}
}

// tickLocked drives VisibilityScheduler.tick and folds its events into
// the O(1) counters and group-lock table. Must be called while holding
// mu. Lazily invoked from every public operation (so callers never read
// stale state) and also driven eagerly by DelayDispatcher so long polls
// wake up promptly even with no other traffic on the queue.
func (q *Queue) tickLocked(now int64) {
	if q.cfg.Kind == Fifo {
		q.dedup.Sweep(now)
	}
	events := q.sched.tick(now)
	if len(events) == 0 {
		return
	}
	for _, ev := range events {
		switch {
		case ev.retentionEvict:
			q.bumpBucketLocked(ev.before, -1)
			delete(q.receiptOwner, ev.msg.receiptHandle)
			if q.cfg.Kind == Fifo && ev.before == 2 {
				q.grplock.Release(ev.msg.MessageGroupId)
			}
		case ev.expiredToPending:
			q.bumpBucketLocked(ev.before, -1) // was inflight
			q.bumpBucketLocked(1, +1)          // now visible
			delete(q.receiptOwner, ev.oldReceiptHandle)
			if q.cfg.Kind == Fifo {
				q.grplock.Release(ev.msg.MessageGroupId)
			}
		case ev.delayedToVisible:
			q.bumpBucketLocked(0, -1) // was delayed
			q.bumpBucketLocked(1, +1) // now visible
		}
	}
	q.waiters.NotifyAll()
}

func (q *Queue) bumpBucketLocked(bucket int, delta int) {
	switch bucket {
	case 0:
		q.delayedCount += delta
	case 1:
		q.visibleCount += delta
	case 2:
		q.inflightCount += delta
	}
}

// Tick runs the time-triggered transitions (visibility expiry, retention
// eviction) and wakes any long-poll waiter that might now have work.
// DelayDispatcher calls this on every live queue so a queue with no
// Send/Receive traffic still expires and evicts messages on schedule.
func (q *Queue) Tick(now int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tickLocked(now)
}

// NextDeadline reports the earliest pending time-triggered transition
// for this queue, used by DelayDispatcher to size its sleep interval.
func (q *Queue) NextDeadline() (int64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sched.nextDeadline()
}

func attributesByteSize(attrs map[string]AttributeValue) int {
	n := 0
	for k, v := range attrs {
		n += len(k) + len(v.DataType) + len(v.StringValue) + len(v.BinaryValue)
	}
	return n
}
