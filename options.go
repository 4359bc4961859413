package redisevent

import (
	"crypto/tls"
	"strings"
	"time"

	"github.com/raniellyferreira/redis-event-stream/rdb"
)

// config holds the configuration for a Listener
type config struct {
	// Master connection settings
	masterAddr     string
	masterUser     string
	masterPassword string
	masterTLS      *tls.Config

	// Identity announced to the master
	listeningPort int
	announceIP    string

	// Timeouts and pacing
	syncTimeout    time.Duration
	connectTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	ackInterval    time.Duration
	waitDelay      time.Duration
	maxBackoff     time.Duration

	// Observability
	logger  Logger
	metrics MetricsCollector

	// Event pipeline
	handler        Handler
	commandFilters []string
	databases      []int // empty = all databases
	keyPatterns    []string
	dropControl    bool
	luaScript      string
	workers        int
	queueSize      int
	moduleParsers  map[string]rdb.ModuleParser
}

// defaultConfig returns a configuration with sensible defaults
func defaultConfig() *config {
	return &config{
		masterAddr:     "localhost:6379",
		syncTimeout:    30 * time.Second,
		connectTimeout: 5 * time.Second,
		readTimeout:    60 * time.Second,
		writeTimeout:   10 * time.Second,
		ackInterval:    time.Second,
		waitDelay:      time.Second,
		maxBackoff:     30 * time.Second,
		moduleParsers:  make(map[string]rdb.ModuleParser),
	}
}

// Option represents a configuration option for a Listener
type Option func(*config) error

// WithMaster sets the master Redis server address
//
// Example:
//
//	WithMaster("redis.example.com:6379")
func WithMaster(addr string) Option {
	return func(c *config) error {
		if addr == "" {
			return &ConnectionError{
				Addr: addr,
				Err:  ErrInvalidConfig,
			}
		}
		c.masterAddr = addr
		return nil
	}
}

// WithMasterAuth sets authentication credentials for the master connection.
// An empty username sends the single-argument AUTH form.
//
// Example:
//
//	WithMasterAuth("", "mypassword")
//	WithMasterAuth("replicator", "secret")
func WithMasterAuth(username, password string) Option {
	return func(c *config) error {
		if username != "" && password == "" {
			return &ConfigError{Option: "WithMasterAuth", Reason: "username without password"}
		}
		c.masterUser = username
		c.masterPassword = password
		return nil
	}
}

// WithTLS configures TLS for the master connection
func WithTLS(tlsConfig *tls.Config) Option {
	return func(c *config) error {
		c.masterTLS = tlsConfig
		return nil
	}
}

// WithSecureTLS configures TLS with certificate verification and TLS 1.2
// as the minimum version.
//
// Example:
//
//	WithSecureTLS("redis.example.com")
func WithSecureTLS(serverName string) Option {
	return func(c *config) error {
		if serverName == "" {
			return &ConfigError{Option: "WithSecureTLS", Reason: "empty server name"}
		}
		c.masterTLS = &tls.Config{
			ServerName: serverName,
			MinVersion: tls.VersionTLS12,
			CipherSuites: []uint16{
				tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
				tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
				tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			},
		}
		return nil
	}
}

// WithListeningPort sets the port sent in REPLCONF listening-port, 0 by
// default.
func WithListeningPort(port int) Option {
	return func(c *config) error {
		if port < 0 || port > 65535 {
			return &ConfigError{Option: "WithListeningPort", Reason: "port out of range"}
		}
		c.listeningPort = port
		return nil
	}
}

// WithAnnounceIP sets the address sent in REPLCONF ip-address
func WithAnnounceIP(ip string) Option {
	return func(c *config) error {
		c.announceIP = ip
		return nil
	}
}

// WithSyncTimeout bounds how long Start waits for the first connection
func WithSyncTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		if timeout <= 0 {
			return &ConfigError{Option: "WithSyncTimeout", Reason: "must be positive"}
		}
		c.syncTimeout = timeout
		return nil
	}
}

// WithConnectTimeout sets the dial timeout for the master connection
func WithConnectTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		if timeout <= 0 {
			return &ConfigError{Option: "WithConnectTimeout", Reason: "must be positive"}
		}
		c.connectTimeout = timeout
		return nil
	}
}

// WithReadTimeout sets the read timeout. The master pings replicas every
// repl-ping-replica-period (10s by default), keep it above that.
func WithReadTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		if timeout <= 0 {
			return &ConfigError{Option: "WithReadTimeout", Reason: "must be positive"}
		}
		c.readTimeout = timeout
		return nil
	}
}

// WithWriteTimeout sets the write timeout for handshake commands and ACKs
func WithWriteTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		if timeout <= 0 {
			return &ConfigError{Option: "WithWriteTimeout", Reason: "must be positive"}
		}
		c.writeTimeout = timeout
		return nil
	}
}

// WithAckInterval sets how often REPLCONF ACK is sent. A negative interval
// disables periodic ACKs; GETACK requests are still answered.
func WithAckInterval(interval time.Duration) Option {
	return func(c *config) error {
		if interval == 0 {
			return &ConfigError{Option: "WithAckInterval", Reason: "zero interval, use a negative value to disable"}
		}
		c.ackInterval = interval
		return nil
	}
}

// WithWaitDelay sets the pause before PSYNC is retried while the master
// is loading or has no link to its own master.
func WithWaitDelay(delay time.Duration) Option {
	return func(c *config) error {
		if delay <= 0 {
			return &ConfigError{Option: "WithWaitDelay", Reason: "must be positive"}
		}
		c.waitDelay = delay
		return nil
	}
}

// WithMaxBackoff caps the delay between reconnection attempts
func WithMaxBackoff(backoff time.Duration) Option {
	return func(c *config) error {
		if backoff <= 0 {
			return &ConfigError{Option: "WithMaxBackoff", Reason: "must be positive"}
		}
		c.maxBackoff = backoff
		return nil
	}
}

// WithLogger sets a custom logger
func WithLogger(logger Logger) Option {
	return func(c *config) error {
		if logger == nil {
			return ErrInvalidConfig
		}
		c.logger = logger
		return nil
	}
}

// WithMetrics enables metrics collection with the provided collector
func WithMetrics(collector MetricsCollector) Option {
	return func(c *config) error {
		c.metrics = collector
		return nil
	}
}

// WithHandler sets the handler receiving events. Required.
func WithHandler(handler Handler) Option {
	return func(c *config) error {
		if handler == nil {
			return &ConfigError{Option: "WithHandler", Reason: "nil handler"}
		}
		c.handler = handler
		return nil
	}
}

// WithCommandFilters sets which commands are delivered. Snapshot objects
// are always delivered. Empty slice means all commands.
//
// Example:
//
//	WithCommandFilters([]string{"SET", "DEL", "EXPIRE"})
func WithCommandFilters(commands []string) Option {
	return func(c *config) error {
		for _, cmd := range commands {
			if strings.TrimSpace(cmd) == "" {
				return &ConfigError{Option: "WithCommandFilters", Reason: "empty command name"}
			}
		}
		c.commandFilters = append([]string(nil), commands...)
		return nil
	}
}

// WithDatabases sets which databases are delivered.
// Empty slice means all databases (default)
//
// Example:
//
//	WithDatabases([]int{0, 1, 2})
func WithDatabases(databases []int) Option {
	return func(c *config) error {
		for _, db := range databases {
			if db < 0 {
				return &ConfigError{Option: "WithDatabases", Reason: "negative database index"}
			}
		}
		c.databases = append([]int(nil), databases...)
		return nil
	}
}

// WithKeyPatterns delivers only events touching a key that matches one of
// the globs. Keyless commands such as FLUSHALL are dropped.
//
// Example:
//
//	WithKeyPatterns("user:*", "session:[0-9]*")
func WithKeyPatterns(patterns ...string) Option {
	return func(c *config) error {
		c.keyPatterns = append(c.keyPatterns, patterns...)
		return nil
	}
}

// WithoutControlCommands drops PING, REPLCONF, SELECT, MULTI and EXEC
func WithoutControlCommands() Option {
	return func(c *config) error {
		c.dropControl = true
		return nil
	}
}

// WithLuaFilter delivers only events for which script returns a truthy
// value. The script sees KEYS, ARGV and EVENT (kind, name, db, offset).
//
// Example:
//
//	WithLuaFilter(`return EVENT.name ~= "DEL"`)
func WithLuaFilter(script string) Option {
	return func(c *config) error {
		if strings.TrimSpace(script) == "" {
			return &ConfigError{Option: "WithLuaFilter", Reason: "empty script"}
		}
		c.luaScript = script
		return nil
	}
}

// WithWorkers dispatches events to n goroutines sharded by key, keeping
// per-key order. The handler must then be safe for concurrent use. Zero
// handles events on the replication goroutine.
func WithWorkers(n, queueSize int) Option {
	return func(c *config) error {
		if n < 0 || queueSize < 0 {
			return &ConfigError{Option: "WithWorkers", Reason: "negative value"}
		}
		c.workers = n
		c.queueSize = queueSize
		return nil
	}
}

// WithModuleParser registers a decoder for snapshot values of a module
// type, keyed by the 9 character module type name.
func WithModuleParser(name string, parser rdb.ModuleParser) Option {
	return func(c *config) error {
		if len(name) != 9 || parser == nil {
			return &ConfigError{Option: "WithModuleParser", Reason: "module type names are 9 characters"}
		}
		c.moduleParsers[name] = parser
		return nil
	}
}
