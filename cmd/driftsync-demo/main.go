// Command driftsync-demo runs a complete synchronization setup in one
// process: an in-memory authority behind the HTTP sync handler, a
// client engine backed by sqlite (or memory), and a connectivity
// prober driving the engine's online state.
//
// Configuration comes from the environment, optionally via a .env file:
//
//	DRIFTSYNC_SERVER_URL   use an external sync server instead of the
//	                       in-process one (conflict demo is skipped)
//	DRIFTSYNC_DEVICE_ID    device identifier (default demo-device)
//	DRIFTSYNC_DB_PATH      sqlite queue path (default: in-memory queue)
//	DRIFTSYNC_POLICY_FILE  yaml resolution policy (default: built-in)
//	DRIFTSYNC_LOG_LEVEL    debug, info, warn, error (default debug)
package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/driftsync/driftsync/conflict"
	"github.com/driftsync/driftsync/engine"
	"github.com/driftsync/driftsync/logging"
	"github.com/driftsync/driftsync/merge"
	"github.com/driftsync/driftsync/network"
	"github.com/driftsync/driftsync/storage"
	"github.com/driftsync/driftsync/storage/memory"
	"github.com/driftsync/driftsync/storage/sqlite"
	"github.com/driftsync/driftsync/transport"
	"github.com/driftsync/driftsync/transport/httptransport"
)

func main() {
	_ = godotenv.Load()

	logging.Init(logging.Config{
		Level:       envOr("DRIFTSYNC_LOG_LEVEL", "debug"),
		Format:      "text",
		Environment: "dev",
	})
	logger := logging.WithComponent("demo")

	if err := run(context.Background(), logger); err != nil {
		logger.LogError(context.Background(), err, "Demo failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *logging.Logger) error {
	serverURL := os.Getenv("DRIFTSYNC_SERVER_URL")

	// Without an external server, host the authority in-process.
	var authority *httptransport.MemoryAuthority
	if serverURL == "" {
		authority = httptransport.NewMemoryAuthority()
		handler := httptransport.NewSyncHandler(authority,
			logging.WithComponent("sync-server"), httptransport.DefaultServerOptions())

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return err
		}
		srv := &http.Server{Handler: handler.Router()}
		go srv.Serve(ln)
		defer srv.Shutdown(ctx)

		serverURL = "http://" + ln.Addr().String()
		logger.Info("In-process sync server listening", slog.String("url", serverURL))
	}

	store, err := openStore(logger)
	if err != nil {
		return err
	}

	cfg := conflict.DefaultPolicyConfig()
	if path := os.Getenv("DRIFTSYNC_POLICY_FILE"); path != "" {
		cfg, err = conflict.LoadPolicyConfig(path)
		if err != nil {
			return err
		}
	}
	policy := conflict.NewPolicy(cfg, merge.New())

	client := httptransport.NewClient(serverURL + "/sync")
	prober := network.NewHTTPProber(client.Probe,
		network.WithProbeInterval(5*time.Second))
	defer prober.Close()

	opts := engine.DefaultOptions(envOr("DRIFTSYNC_DEVICE_ID", "demo-device"))
	opts.StartOnline = false
	eng, err := engine.New(store, client, policy, opts, engine.WithObserver(prober))
	if err != nil {
		return err
	}
	defer eng.Close()

	unsub := eng.Subscribe(func(ev engine.Event) { logEvent(logger, ev) })
	defer unsub()

	// The first probe flips the engine online through the observer.
	prober.CheckNow(ctx)
	prober.Start(ctx)

	logger.Info("Queueing local edits")
	if _, err := eng.Create(ctx, "notes", "shopping", map[string]interface{}{
		"title": "Groceries",
		"items": []interface{}{"milk"},
	}); err != nil {
		return err
	}
	if !waitIdle(eng, 10*time.Second) {
		logger.Warn("Initial sync did not settle in time")
	}

	if authority != nil {
		if err := concurrentEditDemo(ctx, logger, eng, authority); err != nil {
			return err
		}
	}

	for _, op := range eng.GetPendingOperations() {
		logger.Warn("Operation left in queue",
			slog.String("operation_id", op.ID),
			slog.String("status", string(op.Status)))
	}
	logger.Info("Demo finished",
		slog.Int64("last_sync_at", eng.LastSyncAt()),
		slog.Int("parked_conflicts", len(eng.GetConflicts())))
	return nil
}

// concurrentEditDemo edits the same entity from a second device and
// from the local engine against the same base revision. The engine
// classifies the resulting conflict and the three-way merge combines
// both edits.
func concurrentEditDemo(ctx context.Context, logger *logging.Logger, eng *engine.Engine, authority *httptransport.MemoryAuthority) error {
	_, baseRev, ok := authority.Get("notes", "shopping")
	if !ok {
		logger.Warn("Entity missing at the authority, skipping conflict demo")
		return nil
	}

	logger.Info("Simulating a concurrent edit from another device")
	resp, err := authority.ApplyBatch(ctx, &transport.BatchRequest{
		DeviceID: "other-device",
		Operations: []transport.WireOperation{{
			ID:         uuid.NewString(),
			Kind:       transport.KindUpdate,
			Collection: "notes",
			EntityID:   "shopping",
			Payload: map[string]interface{}{
				"title": "Groceries",
				"items": []interface{}{"milk", "eggs"},
			},
			Timestamp:    time.Now().UnixMilli(),
			BaseRevision: baseRev,
		}},
	})
	if err != nil {
		return err
	}
	if !resp.Results[0].Success {
		logger.Warn("Remote edit did not commit, skipping conflict demo")
		return nil
	}

	// The local edit still references the pre-edit revision, so the
	// authority reports a conflict on sync.
	if _, err := eng.Update(ctx, "notes", "shopping", map[string]interface{}{
		"title": "Weekend groceries",
		"items": []interface{}{"milk"},
	}, baseRev); err != nil {
		return err
	}
	if !waitIdle(eng, 10*time.Second) {
		logger.Warn("Conflict resolution did not settle in time")
		return nil
	}

	value, _, _ := authority.Get("notes", "shopping")
	logger.Info("Both edits merged", slog.Any("value", value))
	return nil
}

func openStore(logger *logging.Logger) (storage.Store, error) {
	if path := os.Getenv("DRIFTSYNC_DB_PATH"); path != "" {
		logger.Info("Using sqlite operation queue", slog.String("path", path))
		st, err := sqlite.NewWithDataSource("file:" + path)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	return memory.New(), nil
}

func logEvent(logger *logging.Logger, ev engine.Event) {
	switch ev.Type {
	case engine.EventStateChanged:
		logger.Info("Engine state changed",
			slog.String("previous", string(ev.Previous)),
			slog.String("current", string(ev.Current)))
	case engine.EventSyncCompleted:
		logger.Info("Sync completed", slog.Int("item_count", ev.ItemCount))
	case engine.EventSyncFailed:
		logger.Warn("Sync failed", slog.String("error", ev.Err.Error()))
	case engine.EventItemSynced:
		logger.Info("Item synced",
			slog.String("collection", ev.Collection),
			slog.String("entity_id", ev.EntityID))
	case engine.EventConflictDetected:
		logger.Warn("Conflict parked for manual resolution",
			slog.String("collection", ev.Collection),
			slog.String("entity_id", ev.EntityID),
			slog.Int("complexity", ev.Conflict.Complexity))
	case engine.EventOfflineChange:
		logger.Info("Edit queued while offline",
			slog.String("collection", ev.Collection),
			slog.String("entity_id", ev.EntityID))
	case engine.EventOnlineStatusChanged:
		logger.Info("Connectivity changed", slog.Bool("online", ev.Online))
	default:
		logger.Debug("Engine event", slog.String("type", string(ev.Type)))
	}
}

func waitIdle(eng *engine.Engine, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if eng.State() == engine.StateIdle && len(eng.GetPendingOperations()) == 0 {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return false
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
