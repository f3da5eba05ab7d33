package broker

import "container/heap"

// MessageStore is the composite index described in spec.md §4.2: a
// primary id->Message map, an arrival-ordered list (used for FIFO scans
// and as a reasonable Standard-queue approximation of oldest-first), and
// a min-heap keyed by next-deadline (set by the scheduler to the earlier
// of a message's state deadline and its retention deadline) supporting
// O(log n) scheduling.
//
// All three indices are mutated together under the owning Queue's mutex;
// MessageStore itself holds no lock.
type MessageStore struct {
	byID    map[string]*Message
	byOrder []*Message // append-only; orderIndex ascending by construction
	sched   deadlineHeap
}

func newMessageStore() *MessageStore {
	return &MessageStore{
		byID: make(map[string]*Message),
	}
}

// Insert adds a newly-created message to all three indices.
func (s *MessageStore) Insert(m *Message) {
	s.byID[m.ID] = m
	s.byOrder = append(s.byOrder, m)
	heap.Push(&s.sched, &deadlineItem{msg: m, key: m.visibleAt})
}

// Get returns the message by id, or nil if absent (removed or never
// existed).
func (s *MessageStore) Get(id string) *Message {
	return s.byID[id]
}

// Remove deletes a message from every index.
func (s *MessageStore) Remove(m *Message) {
	delete(s.byID, m.ID)
	if m.schedIdx >= 0 {
		heap.Remove(&s.sched, m.schedIdx)
	}
	// byOrder entries are left in place and skipped by FIFO/Standard scans
	// once the message is gone from byID; compacting byOrder eagerly would
	// cost O(n) per delete for no behavioral benefit.
}

// Reschedule updates a message's position in the deadline heap after its
// visibleAt or visibilityDeadline changes.
func (s *MessageStore) Reschedule(m *Message, newKey int64) {
	if m.schedIdx < 0 {
		heap.Push(&s.sched, &deadlineItem{msg: m, key: newKey})
		return
	}
	s.sched.items[m.schedIdx].key = newKey
	heap.Fix(&s.sched, m.schedIdx)
}

// PeekMinDeadline returns the smallest scheduled deadline, or (0, false)
// if the store holds no messages.
func (s *MessageStore) PeekMinDeadline() (int64, bool) {
	if len(s.sched.items) == 0 {
		return 0, false
	}
	return s.sched.items[0].key, true
}

// Size returns the number of live messages (any state).
func (s *MessageStore) Size() int {
	return len(s.byID)
}

// deadlineItem is one entry in the scheduling heap.
type deadlineItem struct {
	msg *Message
	key int64
}

// deadlineHeap is a container/heap.Interface min-heap over deadlineItem,
// keeping each Message.schedIdx in sync so MessageStore.Remove/Reschedule
// can locate an arbitrary element in O(log n) rather than O(n).
type deadlineHeap struct {
	items []*deadlineItem
}

func (h deadlineHeap) Len() int            { return len(h.items) }
func (h deadlineHeap) Less(i, j int) bool  { return h.items[i].key < h.items[j].key }
func (h deadlineHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].msg.schedIdx = i
	h.items[j].msg.schedIdx = j
}

func (h *deadlineHeap) Push(x interface{}) {
	it := x.(*deadlineItem)
	it.msg.schedIdx = len(h.items)
	h.items = append(h.items, it)
}

func (h *deadlineHeap) Pop() interface{} {
	n := len(h.items)
	it := h.items[n-1]
	h.items[n-1] = nil
	h.items = h.items[:n-1]
	it.msg.schedIdx = -1
	return it
}
