package redisevent

import (
	"context"
	"fmt"
	"sync"

	"github.com/raniellyferreira/redis-event-stream/replication"
	"github.com/raniellyferreira/redis-event-stream/sink"
)

// Listener attaches to a Redis master as a replica and delivers the
// snapshot and the replicated command stream to a Handler.
type Listener struct {
	// Configuration
	config *config

	// Components
	syncMgr *replication.SyncManager
	filter  *sink.Filter
	lua     *sink.LuaFilter
	sharded *sink.Sharded

	// State
	mu       sync.RWMutex
	started  bool
	closed   bool
	startErr error

	// Callbacks
	syncCallbacks []func()
}

// New creates a new Listener with the given options
//
// The listener is created but not started. Use Start() to begin replication.
//
// Example:
//
//	l, err := redisevent.New(
//		redisevent.WithMaster("localhost:6379"),
//		redisevent.WithHandler(redisevent.HandlerFunc(func(ev redisevent.Event) error {
//			fmt.Println(ev.Name(), ev.Offset)
//			return nil
//		})),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
func New(opts ...Option) (*Listener, error) {
	cfg := defaultConfig()

	// Apply options
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.handler == nil {
		return nil, &ConfigError{Option: "WithHandler", Reason: "a handler is required"}
	}
	if cfg.logger == nil {
		cfg.logger = newDefaultLogger()
	}

	l := &Listener{config: cfg}
	head, err := l.pipeline()
	if err != nil {
		return nil, err
	}

	syncMgr := replication.NewSyncManager(cfg.masterAddr, head)
	if cfg.masterPassword != "" {
		syncMgr.SetAuth(cfg.masterUser, cfg.masterPassword)
	}
	if cfg.masterTLS != nil {
		syncMgr.SetTLS(cfg.masterTLS)
	}
	syncMgr.SetLogger(&loggerAdapter{logger: cfg.logger})
	if cfg.metrics != nil {
		syncMgr.SetMetrics(cfg.metrics)
	}
	for name, parser := range cfg.moduleParsers {
		syncMgr.SetModuleParser(name, parser)
	}

	client := syncMgr.Client()
	client.SetSyncTimeout(cfg.syncTimeout)
	client.SetConnectTimeout(cfg.connectTimeout)
	client.SetReadTimeout(cfg.readTimeout)
	client.SetWriteTimeout(cfg.writeTimeout)
	client.SetAckInterval(cfg.ackInterval)
	client.SetWaitDelay(cfg.waitDelay)
	client.SetMaxBackoff(cfg.maxBackoff)
	client.SetListeningPort(cfg.listeningPort)
	client.SetAnnounceIP(cfg.announceIP)

	l.syncMgr = syncMgr

	// Register sync completion callback
	syncMgr.OnSyncComplete(func() {
		l.mu.RLock()
		callbacks := make([]func(), len(l.syncCallbacks))
		copy(callbacks, l.syncCallbacks)
		l.mu.RUnlock()

		for _, callback := range callbacks {
			callback()
		}
	})

	return l, nil
}

// pipeline wraps the user handler: filter, then Lua, then the sharded
// dispatcher. Cheap checks run first.
func (l *Listener) pipeline() (Handler, error) {
	cfg := l.config
	head := cfg.handler

	if cfg.workers > 0 {
		l.sharded = sink.NewSharded(context.Background(), head, cfg.workers, cfg.queueSize)
		head = l.sharded
	}

	if cfg.luaScript != "" {
		lua, err := sink.NewLuaFilter(head, cfg.luaScript)
		if err != nil {
			l.closeSinks()
			return nil, &ConfigError{Option: "WithLuaFilter", Reason: err.Error()}
		}
		l.lua = lua
		head = lua
	}

	if len(cfg.commandFilters) > 0 || len(cfg.databases) > 0 || len(cfg.keyPatterns) > 0 || cfg.dropControl {
		filter, err := sink.NewFilter(head, sink.FilterConfig{
			Commands:    cfg.commandFilters,
			Databases:   cfg.databases,
			Patterns:    cfg.keyPatterns,
			DropControl: cfg.dropControl,
		})
		if err != nil {
			l.closeSinks()
			return nil, &ConfigError{Option: "WithKeyPatterns", Reason: err.Error()}
		}
		l.filter = filter
		head = filter
	}
	return head, nil
}

// Start connects to the master and begins replication
//
// This method blocks until the first connection is established, the sync
// timeout elapses or ctx is cancelled. Use WaitForSync() to wait for the
// snapshot to be delivered.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	if l.started {
		err := l.startErr
		l.mu.Unlock()
		return err
	}
	l.started = true
	l.mu.Unlock()

	if err := l.syncMgr.Start(ctx); err != nil {
		l.config.logger.Error("Failed to start replication", Field{Key: "error", Value: err}, Field{Key: "master", Value: l.config.masterAddr})
		connErr := &ConnectionError{Addr: l.config.masterAddr, Err: err}
		l.mu.Lock()
		l.startErr = connErr
		l.mu.Unlock()
		return connErr
	}
	l.config.logger.Info("Listening to master", Field{Key: "master", Value: l.config.masterAddr})
	return nil
}

// WaitForSync blocks until the snapshot has been delivered or ctx is
// cancelled
func (l *Listener) WaitForSync(ctx context.Context) error {
	if !l.isStarted() {
		return ErrNotConnected
	}
	return l.syncMgr.WaitForSync(ctx)
}

// SyncStatus returns the current synchronization status
func (l *Listener) SyncStatus() SyncStatus {
	status := l.syncMgr.SyncStatus()

	return SyncStatus{
		InitialSyncCompleted: status.InitialSyncCompleted,
		Connected:            status.Connected,
		MasterHost:           status.MasterHost,
		ReplicationID:        status.ReplicationID,
		ReplicationOffset:    status.ReplicationOffset,
		LastSyncTime:         status.LastSyncTime,
		BytesReceived:        status.BytesReceived,
		CommandsProcessed:    status.CommandsProcessed,
		SnapshotObjects:      status.SnapshotObjects,
	}
}

// Close stops replication and releases the event pipeline. Events queued
// in workers are handled before Close returns.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	started := l.started
	l.mu.Unlock()

	// Stop waits for the replication loop, which may be running sync
	// callbacks that take l.mu.
	var stopErr error
	if started {
		stopErr = l.syncMgr.Stop()
	}
	if err := l.closeSinks(); err != nil && stopErr == nil {
		stopErr = err
	}
	return stopErr
}

func (l *Listener) closeSinks() error {
	var err error
	if l.sharded != nil {
		err = l.sharded.Close()
	}
	if l.lua != nil {
		l.lua.Close()
	}
	return err
}

// OnSyncComplete registers a callback run after every completed full or
// partial sync
func (l *Listener) OnSyncComplete(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.syncCallbacks = append(l.syncCallbacks, fn)
}

// IsConnected returns true if the listener is attached to the master
func (l *Listener) IsConnected() bool {
	return l.syncMgr.IsConnected()
}

// Offset returns the replication offset of the last handled command, -1
// before the first sync
func (l *Listener) Offset() int64 {
	return l.syncMgr.Client().Offset()
}

// GetInfo returns replication, pipeline and version information
func (l *Listener) GetInfo() map[string]interface{} {
	stats := l.syncMgr.GetStats()

	info := map[string]interface{}{
		"replication": map[string]interface{}{
			"connected":              stats.Connected,
			"master_host":            stats.MasterAddr,
			"master_replid":          stats.ReplicationID,
			"initial_sync_completed": stats.InitialSyncCompleted,
			"replication_offset":     stats.ReplicationOffset,
			"bytes_received":         stats.BytesReceived,
			"commands_processed":     stats.CommandsProcessed,
			"snapshot_objects":       stats.SnapshotObjects,
			"full_syncs":             stats.FullSyncs,
			"partial_syncs":          stats.PartialSyncs,
			"reconnects":             stats.ReconnectCount,
		},
		"version": VersionInfo(),
	}

	pipeline := map[string]interface{}{
		"workers": l.config.workers,
	}
	if l.filter != nil {
		pipeline["filtered"] = l.filter.Dropped()
	}
	if l.lua != nil {
		pipeline["lua_sha"] = l.lua.SHA()
	}
	info["pipeline"] = pipeline

	return info
}

// String identifies the listener in logs
func (l *Listener) String() string {
	return fmt.Sprintf("redisevent.Listener(%s)", l.config.masterAddr)
}

// isStarted returns true if the listener is started (thread-safe)
func (l *Listener) isStarted() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.started && !l.closed
}
