// Package persistence provides optional durability for a broker.Manager,
// grounded on the teacher's FoundationDB storage layer (store/fdb.go):
// the transaction/directory/tuple plumbing survives, repointed at saving
// and loading broker.Snapshot values instead of the teacher's own ad hoc
// queue/message records.
package persistence

import (
	"context"

	"github.com/nimbusmq/sqsd/broker"
)

// Snapshotter saves and loads a broker.Manager's entire state. Save is
// called periodically and on graceful shutdown; Load runs once at
// startup, before the HTTP server starts accepting traffic.
type Snapshotter interface {
	Save(ctx context.Context, snap broker.Snapshot) error
	Load(ctx context.Context) (broker.Snapshot, error)
}

// NullSnapshotter is the default when no persistence backend is
// configured: Save is a no-op and Load always returns an empty snapshot,
// so the engine runs standalone with no FoundationDB dependency.
type NullSnapshotter struct{}

func (NullSnapshotter) Save(ctx context.Context, snap broker.Snapshot) error { return nil }

func (NullSnapshotter) Load(ctx context.Context) (broker.Snapshot, error) { return broker.Snapshot{}, nil }
