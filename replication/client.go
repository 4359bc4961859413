package replication

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/raniellyferreira/redis-event-stream/rdb"
)

const (
	defaultWaitDelay  = time.Second
	defaultMinBackoff = 500 * time.Millisecond
	defaultMaxBackoff = 30 * time.Second
)

// Client keeps a replication link to a master alive and forwards every
// snapshot object and replicated command to a Handler.
type Client struct {
	// Configuration
	masterAddr     string
	masterUser     string
	masterPassword string
	tlsConfig      *tls.Config
	handler        Handler

	// Connection state
	mu        sync.RWMutex
	conn      net.Conn
	replayer  *Replayer
	connected bool

	// Resume point, kept across reconnections
	replID     string
	replOffset int64

	// Control channels
	ctx      context.Context
	cancel   context.CancelFunc
	doneChan chan struct{}
	started  int32
	stopped  int32 // atomic flag to prevent double stop
	runEnded int32 // atomic flag to prevent double doneChan close

	// Statistics
	stats *ReplicationStats

	// Callbacks
	onSyncComplete []func()

	// Configuration
	logger         Logger
	metrics        MetricsCollector
	syncTimeout    time.Duration
	connectTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	ackInterval    time.Duration
	waitDelay      time.Duration
	maxBackoff     time.Duration
	listeningPort  int
	announceIP     string
	decodeOptions  []rdb.Option
}

// ReplicationStats tracks replication statistics
type ReplicationStats struct {
	mu sync.RWMutex

	Connected         bool
	MasterAddr        string
	ReplicationID     string
	ReplicationOffset int64
	LastSyncTime      time.Time
	BytesReceived     int64
	CommandsProcessed int64
	SnapshotObjects   int64
	FullSyncs         int64
	PartialSyncs      int64
	ReconnectCount    int64

	InitialSyncCompleted bool
}

// NewClient creates a new replication client
func NewClient(masterAddr string, handler Handler) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	if handler == nil {
		handler = NopHandler
	}

	return &Client{
		masterAddr:     masterAddr,
		handler:        handler,
		replID:         "?",
		replOffset:     -1,
		ctx:            ctx,
		cancel:         cancel,
		doneChan:       make(chan struct{}),
		stats:          &ReplicationStats{MasterAddr: masterAddr, ReplicationOffset: -1},
		syncTimeout:    30 * time.Second,
		connectTimeout: 5 * time.Second,
		readTimeout:    60 * time.Second,
		writeTimeout:   10 * time.Second,
		ackInterval:    DefaultAckInterval,
		waitDelay:      defaultWaitDelay,
		maxBackoff:     defaultMaxBackoff,
		logger:         nopLogger{},
	}
}

// SetAuth configures authentication. An empty username uses the legacy
// single-argument AUTH form.
func (c *Client) SetAuth(username, password string) {
	c.masterUser = username
	c.masterPassword = password
}

// SetTLS configures TLS
func (c *Client) SetTLS(config *tls.Config) {
	c.tlsConfig = config
}

// SetLogger sets the logger
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = nopLogger{}
	}
	c.logger = logger
}

// SetMetrics sets the metrics collector
func (c *Client) SetMetrics(metrics MetricsCollector) {
	c.metrics = metrics
}

// SetSyncTimeout bounds how long Start waits for the first connection
func (c *Client) SetSyncTimeout(timeout time.Duration) {
	c.syncTimeout = timeout
}

// SetConnectTimeout sets the connection timeout
func (c *Client) SetConnectTimeout(timeout time.Duration) {
	c.connectTimeout = timeout
}

// SetReadTimeout sets the idle timeout for reads. The master pings its
// replicas periodically, so a silent link past this timeout is dead.
func (c *Client) SetReadTimeout(timeout time.Duration) {
	c.readTimeout = timeout
}

// SetWriteTimeout sets the write timeout for network operations
func (c *Client) SetWriteTimeout(timeout time.Duration) {
	c.writeTimeout = timeout
}

// SetAckInterval sets how often REPLCONF ACK is sent
func (c *Client) SetAckInterval(interval time.Duration) {
	c.ackInterval = interval
}

// SetWaitDelay sets the pause before PSYNC is retried when the master is
// not ready
func (c *Client) SetWaitDelay(delay time.Duration) {
	c.waitDelay = delay
}

// SetMaxBackoff caps the delay between reconnection attempts
func (c *Client) SetMaxBackoff(d time.Duration) {
	c.maxBackoff = d
}

// SetListeningPort sets the port announced with REPLCONF listening-port
func (c *Client) SetListeningPort(port int) {
	c.listeningPort = port
}

// SetAnnounceIP sets the address announced with REPLCONF ip-address
func (c *Client) SetAnnounceIP(ip string) {
	c.announceIP = ip
}

// SetModuleParser registers a parser for a module type in the snapshot
func (c *Client) SetModuleParser(name string, p rdb.ModuleParser) {
	c.decodeOptions = append(c.decodeOptions, rdb.WithModuleParser(name, p))
}

// Start begins replication and returns once connected to the master
func (c *Client) Start(ctx context.Context) error {
	if err := c.validateTimeoutConfiguration(); err != nil {
		return err
	}
	if !atomic.CompareAndSwapInt32(&c.started, 0, 1) {
		return errors.New("replication client already started")
	}

	c.logger.Info("Starting replication client", "master", c.masterAddr)
	go c.run()

	var deadline <-chan time.Time
	if c.syncTimeout > 0 {
		timer := time.NewTimer(c.syncTimeout)
		defer timer.Stop()
		deadline = timer.C
	}
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if c.IsConnected() {
			return nil
		}
		select {
		case <-deadline:
			return fmt.Errorf("connection timeout after %v", c.syncTimeout)
		case <-ctx.Done():
			return ctx.Err()
		case <-c.doneChan:
			return errors.New("replication stopped unexpectedly")
		case <-ticker.C:
		}
	}
}

// Stop tears down the link and waits for the replication loop to exit
func (c *Client) Stop() error {
	if !atomic.CompareAndSwapInt32(&c.stopped, 0, 1) {
		return nil
	}

	c.logger.Info("Stopping replication client")
	c.cancel()

	if atomic.LoadInt32(&c.started) == 0 {
		return nil
	}
	select {
	case <-c.doneChan:
		return nil
	case <-time.After(5 * time.Second):
		return errors.New("stop timeout")
	}
}

// Done is closed when the replication loop exits
func (c *Client) Done() <-chan struct{} {
	return c.doneChan
}

// IsConnected reports whether a link to the master is up
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Offset returns the last processed replication offset, -1 before the
// first sync.
func (c *Client) Offset() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.replayer != nil {
		return c.replayer.Offset()
	}
	return c.replOffset
}

// Stats returns a copy of the replication statistics
func (c *Client) Stats() ReplicationStats {
	c.stats.mu.RLock()
	defer c.stats.mu.RUnlock()

	return ReplicationStats{
		Connected:            c.stats.Connected,
		MasterAddr:           c.stats.MasterAddr,
		ReplicationID:        c.stats.ReplicationID,
		ReplicationOffset:    c.Offset(),
		LastSyncTime:         c.stats.LastSyncTime,
		BytesReceived:        c.stats.BytesReceived,
		CommandsProcessed:    c.stats.CommandsProcessed,
		SnapshotObjects:      c.stats.SnapshotObjects,
		FullSyncs:            c.stats.FullSyncs,
		PartialSyncs:         c.stats.PartialSyncs,
		ReconnectCount:       c.stats.ReconnectCount,
		InitialSyncCompleted: c.stats.InitialSyncCompleted,
	}
}

// OnSyncComplete registers a callback run after every completed sync
func (c *Client) OnSyncComplete(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSyncComplete = append(c.onSyncComplete, fn)
}

func (c *Client) run() {
	defer func() {
		if atomic.CompareAndSwapInt32(&c.runEnded, 0, 1) {
			close(c.doneChan)
		}
	}()

	backoff := defaultMinBackoff
	for {
		start := time.Now()
		err := c.session()
		if c.ctx.Err() != nil {
			return
		}

		var hsErr *HandshakeError
		switch {
		case errors.As(err, &hsErr) && errors.Is(err, ErrHandshake):
			c.logger.Error("Handshake rejected", "state", hsErr.State.String(), "error", err)
			c.recordMetricError("handshake")
		case errors.Is(err, ErrChangeMode):
			c.logger.Error("Master refused PSYNC, falling back to full sync", "error", err)
			c.resetResume()
			c.recordMetricError("psync")
		case err != nil:
			c.logger.Error("Replication link lost", "error", err)
			c.recordMetricError("connection")
		}

		// a session that stayed up for a while resets the backoff
		if time.Since(start) > c.maxBackoff {
			backoff = defaultMinBackoff
		}

		select {
		case <-time.After(backoff):
		case <-c.ctx.Done():
			return
		}
		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}

// session runs one connection from dial to teardown.
func (c *Client) session() error {
	netConn, err := c.connect()
	if err != nil {
		return err
	}
	defer c.disconnect()

	conn := NewConn(netConn, c.logger)

	c.mu.RLock()
	replID, offset := c.replID, c.replOffset
	c.mu.RUnlock()

	cfg := HandshakeConfig{
		Username:      c.masterUser,
		Password:      c.masterPassword,
		ListeningPort: c.listeningPort,
		AnnounceIP:    c.announceIP,
	}
	psyncID, psyncOffset := "?", int64(-1)
	if replID != "?" && offset >= 0 {
		cfg.ReplID, cfg.Offset = replID, offset
		// PSYNC names the first byte still needed
		psyncID, psyncOffset = replID, offset+1
	}

	outcome, err := Handshake(c.ctx, conn, cfg)
	for err == nil && outcome.NextStep == Wait {
		c.logger.Info("Master not ready, retrying PSYNC", "delay", c.waitDelay)
		select {
		case <-time.After(c.waitDelay):
		case <-c.ctx.Done():
			return c.ctx.Err()
		}
		outcome, err = conn.PSync(psyncID, psyncOffset)
	}
	if err != nil {
		return err
	}

	c.logger.Info("Replication handshake completed", "next", outcome.NextStep.String(), "replid", outcome.ReplID, "offset", outcome.ReplOffset)

	replayer := NewReplayer(conn, ReplayConfig{
		Handler:       c.countingHandler(outcome.ReplOffset),
		AckInterval:   c.ackInterval,
		DecodeOptions: c.decodeOptions,
		Logger:        c.logger,
		Metrics:       c.metrics,
	})

	synced := false
	c.mu.Lock()
	c.replayer = replayer
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if synced {
			c.replID = outcome.ReplID
			c.replOffset = replayer.Offset()
		} else {
			// a half-loaded snapshot cannot be resumed from
			c.replID, c.replOffset = "?", -1
		}
		c.replayer = nil
		c.mu.Unlock()
	}()

	switch outcome.NextStep {
	case FullSync:
		if err := replayer.LoadSnapshot(c.ctx, outcome); err != nil {
			return err
		}
		c.updateStats(func(s *ReplicationStats) { s.FullSyncs++ })
	case PartialResync:
		replayer.offset.Store(outcome.ReplOffset)
		c.updateStats(func(s *ReplicationStats) { s.PartialSyncs++ })
	default:
		return replayer.Run(c.ctx, outcome)
	}

	synced = true
	c.syncCompleted(outcome.ReplID)

	if err := conn.Ack(replayer.Offset()); err != nil {
		return fmt.Errorf("send ack: %w", err)
	}
	return replayer.Stream(c.ctx)
}

func (c *Client) syncCompleted(replID string) {
	c.updateStats(func(s *ReplicationStats) {
		s.ReplicationID = replID
		s.InitialSyncCompleted = true
		s.LastSyncTime = time.Now()
	})

	c.mu.RLock()
	callbacks := make([]func(), len(c.onSyncComplete))
	copy(callbacks, c.onSyncComplete)
	c.mu.RUnlock()

	for _, callback := range callbacks {
		callback()
	}
}

func (c *Client) connect() (net.Conn, error) {
	c.logger.Debug("Connecting to master", "addr", c.masterAddr)

	dialer := &net.Dialer{
		Timeout: c.connectTimeout,
	}

	var conn net.Conn
	var err error
	if c.tlsConfig != nil {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: c.tlsConfig}).DialContext(c.ctx, "tcp", c.masterAddr)
	} else {
		conn, err = dialer.DialContext(c.ctx, "tcp", c.masterAddr)
	}
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	conn = &deadlineConn{Conn: conn, readTimeout: c.readTimeout, writeTimeout: c.writeTimeout}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.updateStats(func(s *ReplicationStats) {
		s.Connected = true
		s.ReconnectCount++
	})
	if c.metrics != nil {
		c.metrics.RecordReconnection()
	}

	c.logger.Info("Connected to master", "addr", c.masterAddr)
	return conn, nil
}

func (c *Client) disconnect() {
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	c.mu.Unlock()

	c.updateStats(func(s *ReplicationStats) {
		s.Connected = false
	})
}

// resetResume forgets the resume point so the next session asks for a
// full resync.
func (c *Client) resetResume() {
	c.mu.Lock()
	c.replID = "?"
	c.replOffset = -1
	c.mu.Unlock()
}

// countingHandler wraps the user handler with statistics.
func (c *Client) countingHandler(start int64) Handler {
	last := start
	return HandlerFunc(func(ev Event) error {
		if err := c.handler.Handle(ev); err != nil {
			return err
		}
		c.updateStats(func(s *ReplicationStats) {
			if ev.Kind == EventObject {
				s.SnapshotObjects++
				return
			}
			s.CommandsProcessed++
			if last >= 0 {
				s.BytesReceived += ev.Offset - last
			}
		})
		last = ev.Offset
		return nil
	})
}

func (c *Client) updateStats(fn func(*ReplicationStats)) {
	c.stats.mu.Lock()
	defer c.stats.mu.Unlock()
	fn(c.stats)
}

func (c *Client) recordMetricError(errorType string) {
	if c.metrics != nil {
		c.metrics.RecordError(errorType)
	}
}

// validateTimeoutConfiguration validates all timeout settings
func (c *Client) validateTimeoutConfiguration() error {
	if c.connectTimeout > 0 {
		if c.connectTimeout < 100*time.Millisecond {
			return fmt.Errorf("connect timeout too small: %v (minimum: 100ms)", c.connectTimeout)
		}
		if c.connectTimeout > 5*time.Minute {
			return fmt.Errorf("connect timeout too large: %v (maximum: 5m)", c.connectTimeout)
		}
	}

	if c.syncTimeout > 0 {
		if c.syncTimeout < 100*time.Millisecond {
			return fmt.Errorf("sync timeout too small: %v (minimum: 100ms)", c.syncTimeout)
		}
		if c.syncTimeout > time.Hour {
			return fmt.Errorf("sync timeout too large: %v (maximum: 1h)", c.syncTimeout)
		}
	}

	for _, t := range []struct {
		name    string
		timeout time.Duration
	}{
		{"read", c.readTimeout},
		{"write", c.writeTimeout},
	} {
		if t.timeout <= 0 {
			continue
		}
		if t.timeout < time.Millisecond {
			return fmt.Errorf("%s timeout too small: %v (minimum: 1ms)", t.name, t.timeout)
		}
		if t.timeout > 24*time.Hour {
			return fmt.Errorf("%s timeout too large: %v (maximum: 24h)", t.name, t.timeout)
		}
	}

	if c.ackInterval > time.Minute {
		return fmt.Errorf("ack interval too large: %v (maximum: 1m)", c.ackInterval)
	}
	return nil
}

// deadlineConn refreshes the read and write deadlines before every call,
// turning them into idle timeouts.
type deadlineConn struct {
	net.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if c.readTimeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return 0, fmt.Errorf("failed to set read deadline: %w", err)
		}
	}
	return c.Conn.Read(p)
}

func (c *deadlineConn) Write(p []byte) (int, error) {
	if c.writeTimeout > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return 0, fmt.Errorf("failed to set write deadline: %w", err)
		}
	}
	return c.Conn.Write(p)
}
