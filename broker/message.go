package broker

// AttributeValue is the core representation of a message attribute value,
// per spec.md §3/§6: a String, Number, or Binary payload, each optionally
// carrying a custom subtype suffix (e.g. "Number.float").
type AttributeValue struct {
	DataType    string // "String", "Number", or "Binary"; may carry a ".customType" suffix
	StringValue string // used when DataType has prefix "String" or "Number"
	BinaryValue []byte // used when DataType has prefix "Binary"
}

// state is the message lifecycle state from spec.md §3.
type state int

const (
	statePending state = iota
	stateInflight
	stateRemoved
)

// Message is the internal representation of one message owned by exactly
// one Queue for its entire lifetime (spec.md §3 "Ownership").
type Message struct {
	ID         string
	Body       string
	Attributes map[string]AttributeValue

	CreatedAt     int64
	FirstReceived int64 // 0 until first receive
	ReceiveCount  int

	st                state
	visibleAt         int64 // valid when st == statePending
	receiptHandle     string
	visibilityDeadline int64 // valid when st == stateInflight

	// FIFO-only fields; zero value ("") on Standard queues.
	MessageGroupId         string
	MessageDeduplicationId string

	OrderIndex int64 // per-queue monotonically increasing arrival sequence

	MD5OfBody       string
	MD5OfAttributes string // empty when Attributes is empty

	RetentionDeadline int64 // CreatedAt + queue.messageRetentionMillis, fixed at insert

	schedIdx int // position in MessageStore's deadline heap; -1 when absent
}

// ReceivedView is the subset of Message state an adapter is allowed to see
// after a successful receive; it freezes the receipt handle and deadline
// at the moment of delivery so the caller can't observe later mutation.
type ReceivedView struct {
	Message       Message
	ReceiptHandle string
	VisibleAfter  int64 // visibilityDeadline snapshotted at delivery time
}
