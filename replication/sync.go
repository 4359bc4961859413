package replication

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/raniellyferreira/redis-event-stream/rdb"
)

// ErrAlreadyActive is returned when another SyncManager in the process
// already replicates from the same master.
var ErrAlreadyActive = errors.New("a sync manager is already active for this master")

// Global sync coordination to prevent two managers from replicating the
// same master concurrently
var globalSyncCoordinator = &syncCoordinator{
	activeSyncs: make(map[string]bool),
}

type syncCoordinator struct {
	mu          sync.Mutex
	activeSyncs map[string]bool // masterAddr -> active
}

func (sc *syncCoordinator) tryAcquire(masterAddr string) bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.activeSyncs[masterAddr] {
		return false
	}
	sc.activeSyncs[masterAddr] = true
	return true
}

func (sc *syncCoordinator) release(masterAddr string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	delete(sc.activeSyncs, masterAddr)
}

// SyncManager wraps a Client with initial sync tracking
type SyncManager struct {
	client *Client

	mu              sync.RWMutex
	initialSyncDone bool
	syncCallbacks   []func()
	starting        int32 // atomic flag to prevent concurrent Start calls
	holdsLock       bool
}

// SyncStatus represents the current synchronization status
type SyncStatus struct {
	InitialSyncCompleted bool
	Connected            bool
	MasterHost           string
	ReplicationID        string
	ReplicationOffset    int64
	LastSyncTime         time.Time
	BytesReceived        int64
	CommandsProcessed    int64
	SnapshotObjects      int64
}

// NewSyncManager creates a new synchronization manager
func NewSyncManager(masterAddr string, handler Handler) *SyncManager {
	return &SyncManager{
		client: NewClient(masterAddr, handler),
	}
}

// Client returns the underlying replication client for further setup
func (sm *SyncManager) Client() *Client {
	return sm.client
}

// SetAuth configures authentication
func (sm *SyncManager) SetAuth(username, password string) {
	sm.client.SetAuth(username, password)
}

// SetTLS configures TLS
func (sm *SyncManager) SetTLS(config *tls.Config) {
	sm.client.SetTLS(config)
}

// SetLogger sets the logger
func (sm *SyncManager) SetLogger(logger Logger) {
	sm.client.SetLogger(logger)
}

// SetMetrics sets the metrics collector
func (sm *SyncManager) SetMetrics(metrics MetricsCollector) {
	sm.client.SetMetrics(metrics)
}

// SetModuleParser registers a module type parser for snapshots
func (sm *SyncManager) SetModuleParser(name string, p rdb.ModuleParser) {
	sm.client.SetModuleParser(name, p)
}

// Start begins synchronization
func (sm *SyncManager) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&sm.starting, 0, 1) {
		sm.client.logger.Debug("Sync manager start already in progress, skipping duplicate Start call")
		return nil
	}
	defer atomic.StoreInt32(&sm.starting, 0)

	masterAddr := sm.client.masterAddr
	if !globalSyncCoordinator.tryAcquire(masterAddr) {
		return fmt.Errorf("%w: %s", ErrAlreadyActive, masterAddr)
	}
	sm.mu.Lock()
	sm.holdsLock = true
	sm.mu.Unlock()

	sm.client.OnSyncComplete(sm.markSynced)

	if err := sm.client.Start(ctx); err != nil {
		sm.Stop()
		return fmt.Errorf("failed to start sync: %w", err)
	}
	sm.client.logger.Debug("Sync manager started", "master", masterAddr)
	return nil
}

func (sm *SyncManager) markSynced() {
	sm.mu.Lock()
	sm.initialSyncDone = true
	callbacks := sm.syncCallbacks
	sm.syncCallbacks = nil
	sm.mu.Unlock()

	for _, callback := range callbacks {
		callback()
	}
}

// Stop stops synchronization
func (sm *SyncManager) Stop() error {
	err := sm.client.Stop()

	sm.mu.Lock()
	if sm.holdsLock {
		globalSyncCoordinator.release(sm.client.masterAddr)
		sm.holdsLock = false
	}
	sm.mu.Unlock()
	return err
}

// WaitForSync blocks until initial synchronization is complete
func (sm *SyncManager) WaitForSync(ctx context.Context) error {
	syncDone := make(chan struct{})

	sm.mu.Lock()
	if sm.initialSyncDone {
		sm.mu.Unlock()
		return nil
	}
	sm.syncCallbacks = append(sm.syncCallbacks, func() {
		close(syncDone)
	})
	sm.mu.Unlock()

	select {
	case <-syncDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-sm.client.Done():
		return errors.New("replication stopped before the initial sync")
	}
}

// SyncStatus returns the current synchronization status
func (sm *SyncManager) SyncStatus() SyncStatus {
	stats := sm.client.Stats()

	sm.mu.RLock()
	initialSyncDone := sm.initialSyncDone
	sm.mu.RUnlock()

	return SyncStatus{
		InitialSyncCompleted: initialSyncDone,
		Connected:            stats.Connected,
		MasterHost:           stats.MasterAddr,
		ReplicationID:        stats.ReplicationID,
		ReplicationOffset:    stats.ReplicationOffset,
		LastSyncTime:         stats.LastSyncTime,
		BytesReceived:        stats.BytesReceived,
		CommandsProcessed:    stats.CommandsProcessed,
		SnapshotObjects:      stats.SnapshotObjects,
	}
}

// OnSyncComplete registers a callback for when initial sync completes
func (sm *SyncManager) OnSyncComplete(fn func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.initialSyncDone {
		go fn()
		return
	}
	sm.syncCallbacks = append(sm.syncCallbacks, fn)
}

// IsConnected returns true if connected to master
func (sm *SyncManager) IsConnected() bool {
	return sm.client.IsConnected()
}

// GetStats returns detailed replication statistics
func (sm *SyncManager) GetStats() ReplicationStats {
	return sm.client.Stats()
}
