package broker

import "github.com/google/uuid"

// newMessageID mints an opaque, URL-safe message identifier. SQS uses a
// UUID for this; we follow the teacher's lead (store/fdb.go) in reaching
// for google/uuid rather than hand-rolling a generator.
func newMessageID() string {
	return uuid.New().String()
}

// newReceiptHandle mints an opaque token for one inflight delivery of one
// message. It carries no structure callers should rely on; the engine
// keeps the mapping from handle to message internally.
func newReceiptHandle() string {
	return uuid.New().String()
}
