package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nimbusmq/sqsd/broker"
	"github.com/nimbusmq/sqsd/persistence"
)

func main() {
	port := flag.String("port", "8080", "Port for the HTTP server to listen on")
	fdbClusterFile := flag.String("fdb-cluster-file", "", "FoundationDB cluster file; empty disables snapshot persistence")
	snapshotInterval := flag.Duration("snapshot-interval", 30*time.Second, "How often to save a snapshot when persistence is enabled")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var snapshotter persistence.Snapshotter = persistence.NullSnapshotter{}
	if *fdbClusterFile != "" {
		fdbSnap, err := persistence.NewFDBSnapshotter(*fdbClusterFile)
		if err != nil {
			log.Fatalf("Failed to open FoundationDB snapshotter: %v", err)
		}
		snapshotter = fdbSnap
	}

	mgr := broker.NewManager(broker.SystemClock{})

	snap, err := snapshotter.Load(ctx)
	if err != nil {
		log.Fatalf("Failed to load snapshot: %v", err)
	}
	if len(snap.Queues) > 0 {
		mgr.Restore(snap)
		log.Printf("Restored %d queues from snapshot", len(snap.Queues))
	}

	dispatcher := broker.NewDelayDispatcher(mgr, broker.SystemClock{}, time.Second)
	go dispatcher.Run(ctx)

	if _, ok := snapshotter.(persistence.NullSnapshotter); !ok {
		go runSnapshotLoop(ctx, mgr, snapshotter, *snapshotInterval)
	}

	app := &App{Manager: mgr}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	app.RegisterSQSHandlers(r)

	addr := fmt.Sprintf(":%s", *port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := snapshotter.Save(shutdownCtx, mgr.Snapshot()); err != nil {
			log.Printf("Failed to save snapshot on shutdown: %v", err)
		}
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("Starting server on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// runSnapshotLoop periodically saves the manager's state on a fixed
// timer, the same single-goroutine-per-process shape DelayDispatcher
// uses for visibility expiry, but sized for snapshot cost rather than
// message-latency precision.
func runSnapshotLoop(ctx context.Context, mgr *broker.Manager, snapshotter persistence.Snapshotter, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := snapshotter.Save(ctx, mgr.Snapshot()); err != nil {
				log.Printf("Failed to save snapshot: %v", err)
			}
		}
	}
}
