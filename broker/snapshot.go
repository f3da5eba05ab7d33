package broker

// Snapshot is the exported, serialization-friendly view of a Manager's
// entire state, used by a persistence.Snapshotter to save/restore across
// restarts (spec.md §4.8). Manager.Snapshot copies each Queue's private
// state into these exported types, so a Snapshotter works only with them
// and lives outside this package without reaching into private state.
type Snapshot struct {
	Queues []QueueSnapshot
}

// QueueSnapshot captures one queue's attributes, sequence counter, and
// every message still owned by it (Pending or Inflight). Dedup bookkeeping
// is deliberately not captured: its window is five minutes, short enough
// that losing it across a restart only risks one re-delivered duplicate
// rather than a correctness failure, and capturing it would mean exposing
// DeduplicationIndex's internals for a marginal benefit.
type QueueSnapshot struct {
	Config    Config
	CreatedAt int64
	UpdatedAt int64
	Seq       int64
	Messages  []MessageSnapshot
}

// MessageSnapshot is the exported mirror of Message, naming every field a
// restore needs to rebuild scheduling, receipt-handle ownership, and
// group-lock state exactly as they were.
type MessageSnapshot struct {
	ID                     string
	Body                   string
	Attributes             map[string]AttributeValue
	CreatedAt              int64
	FirstReceived          int64
	ReceiveCount           int
	Inflight               bool
	VisibleAt              int64
	ReceiptHandle          string
	VisibilityDeadline     int64
	MessageGroupId         string
	MessageDeduplicationId string
	OrderIndex             int64
	MD5OfBody              string
	MD5OfAttributes        string
	RetentionDeadline      int64
}

// Snapshot returns a point-in-time copy of every live queue and its
// messages. Manager's registry lock is held only long enough to copy the
// slice of queues; each Queue's own snapshot briefly takes its mutex,
// never blocking another queue's traffic for longer than one queue's worth
// of copying.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	queues := make([]*Queue, 0, len(m.queues))
	for _, q := range m.queues {
		queues = append(queues, q)
	}
	m.mu.RUnlock()

	snap := Snapshot{Queues: make([]QueueSnapshot, 0, len(queues))}
	for _, q := range queues {
		snap.Queues = append(snap.Queues, q.snapshot())
	}
	return snap
}

// Restore replaces the registry's contents with the queues described by
// snap, rebuilding each one's scheduler heap and group-lock table from its
// messages. It is meant to run once, at startup, before any traffic is
// accepted.
func (m *Manager) Restore(snap Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues = make(map[string]*Queue, len(snap.Queues))
	for _, qs := range snap.Queues {
		m.queues[qs.Config.Name] = restoreQueue(qs, m.clock)
	}
}

func (q *Queue) snapshot() QueueSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	messages := make([]MessageSnapshot, 0, q.store.Size())
	for _, m := range q.store.byOrder {
		if q.store.Get(m.ID) == nil {
			continue // removed; byOrder keeps stale entries
		}
		messages = append(messages, MessageSnapshot{
			ID:                     m.ID,
			Body:                   m.Body,
			Attributes:             m.Attributes,
			CreatedAt:              m.CreatedAt,
			FirstReceived:          m.FirstReceived,
			ReceiveCount:           m.ReceiveCount,
			Inflight:               m.st == stateInflight,
			VisibleAt:              m.visibleAt,
			ReceiptHandle:          m.receiptHandle,
			VisibilityDeadline:     m.visibilityDeadline,
			MessageGroupId:         m.MessageGroupId,
			MessageDeduplicationId: m.MessageDeduplicationId,
			OrderIndex:             m.OrderIndex,
			MD5OfBody:              m.MD5OfBody,
			MD5OfAttributes:        m.MD5OfAttributes,
			RetentionDeadline:      m.RetentionDeadline,
		})
	}

	return QueueSnapshot{
		Config:    q.cfg,
		CreatedAt: q.createdAt,
		UpdatedAt: q.updatedAt,
		Seq:       q.seq,
		Messages:  messages,
	}
}

// restoreQueue rebuilds a Queue from its snapshot. Every message is
// reinserted through MessageStore.Insert so the scheduler heap and
// byOrder slice come back consistent, and group locks / approximate
// counters are recomputed from the messages themselves rather than
// trusted as saved values.
func restoreQueue(qs QueueSnapshot, clock Clock) *Queue {
	q := newQueue(qs.Config, clock, qs.CreatedAt)
	q.updatedAt = qs.UpdatedAt
	q.seq = qs.Seq

	now := clock.NowMillis()
	for _, ms := range qs.Messages {
		m := &Message{
			ID:                     ms.ID,
			Body:                   ms.Body,
			Attributes:             ms.Attributes,
			CreatedAt:              ms.CreatedAt,
			FirstReceived:          ms.FirstReceived,
			ReceiveCount:           ms.ReceiveCount,
			visibleAt:              ms.VisibleAt,
			receiptHandle:          ms.ReceiptHandle,
			visibilityDeadline:     ms.VisibilityDeadline,
			MessageGroupId:         ms.MessageGroupId,
			MessageDeduplicationId: ms.MessageDeduplicationId,
			OrderIndex:             ms.OrderIndex,
			MD5OfBody:              ms.MD5OfBody,
			MD5OfAttributes:        ms.MD5OfAttributes,
			RetentionDeadline:      ms.RetentionDeadline,
			schedIdx:               -1,
		}
		if ms.Inflight {
			m.st = stateInflight
		} else {
			m.st = statePending
		}

		q.store.Insert(m)
		q.store.Reschedule(m, schedKey(m))

		switch bucket(m, now) {
		case 0:
			q.delayedCount++
		case 1:
			q.visibleCount++
		case 2:
			q.inflightCount++
			q.receiptOwner[m.receiptHandle] = m
			if q.cfg.Kind == Fifo {
				q.grplock.Acquire(m.MessageGroupId)
			}
		}
	}
	return q
}
