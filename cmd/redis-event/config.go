package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config is the CLI configuration. Values are layered: defaults, the YAML
// file, the environment, then flags.
type Config struct {
	Master struct {
		Addr       string `yaml:"addr"`
		Username   string `yaml:"username"`
		Password   string `yaml:"password"`
		TLS        bool   `yaml:"tls"`
		ServerName string `yaml:"server_name"`
	} `yaml:"master"`

	Filter struct {
		Commands    []string `yaml:"commands"`
		Databases   []int    `yaml:"databases"`
		Keys        []string `yaml:"keys"`
		DropControl bool     `yaml:"drop_control"`
		LuaFile     string   `yaml:"lua_file"`
	} `yaml:"filter"`

	Output struct {
		Format          string `yaml:"format"`
		Color           bool   `yaml:"color"`
		Forward         string `yaml:"forward"`
		ForwardPassword string `yaml:"forward_password"`
		ForwardDB       int    `yaml:"forward_db"`
	} `yaml:"output"`

	Workers      int           `yaml:"workers"`
	MetricsAddr  string        `yaml:"metrics_addr"`
	LogLevel     string        `yaml:"log_level"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	SyncTimeout  time.Duration `yaml:"sync_timeout"`
	AckInterval  time.Duration `yaml:"ack_interval"`
	ListenPort   int           `yaml:"listening_port"`
	AnnounceAddr string        `yaml:"announce_ip"`
}

func defaultConfig() Config {
	var cfg Config
	cfg.Master.Addr = "localhost:6379"
	cfg.Output.Format = "text"
	cfg.LogLevel = "info"
	cfg.ReadTimeout = 60 * time.Second
	cfg.SyncTimeout = 30 * time.Second
	cfg.AckInterval = time.Second
	return cfg
}

// loadConfig builds the configuration for cmd
func loadConfig(cmd *cobra.Command) (Config, error) {
	cfg := defaultConfig()

	envFile, _ := cmd.Flags().GetString("env-file")
	if envFile != "" {
		// a missing .env is normal
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = os.Getenv("REDIS_EVENT_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return cfg, err
		}
	}

	if err := cfg.loadEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.applyFlags(cmd); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// loadEnv reads REDIS_EVENT_* variables
func (c *Config) loadEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}
	str("REDIS_EVENT_MASTER", &c.Master.Addr)
	str("REDIS_EVENT_USERNAME", &c.Master.Username)
	str("REDIS_EVENT_PASSWORD", &c.Master.Password)
	str("REDIS_EVENT_FORMAT", &c.Output.Format)
	str("REDIS_EVENT_FORWARD", &c.Output.Forward)
	str("REDIS_EVENT_FORWARD_PASSWORD", &c.Output.ForwardPassword)
	str("REDIS_EVENT_METRICS_ADDR", &c.MetricsAddr)
	str("REDIS_EVENT_LOG_LEVEL", &c.LogLevel)

	if v, ok := lookup("REDIS_EVENT_KEYS"); ok {
		c.Filter.Keys = splitList(v)
	}
	if v, ok := lookup("REDIS_EVENT_TLS"); ok {
		tls, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("REDIS_EVENT_TLS: %w", err)
		}
		c.Master.TLS = tls
	}
	if v, ok := lookup("REDIS_EVENT_WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDIS_EVENT_WORKERS: %w", err)
		}
		c.Workers = n
	}
	return nil
}

// applyFlags overrides the configuration with the flags set on cmd
func (c *Config) applyFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	var err error
	set := func(name string, apply func() error) {
		if err == nil && flags.Lookup(name) != nil && flags.Changed(name) {
			err = apply()
		}
	}

	set("master", func() (e error) { c.Master.Addr, e = flags.GetString("master"); return })
	set("user", func() (e error) { c.Master.Username, e = flags.GetString("user"); return })
	set("password", func() (e error) { c.Master.Password, e = flags.GetString("password"); return })
	set("tls", func() (e error) { c.Master.TLS, e = flags.GetBool("tls"); return })
	set("format", func() (e error) { c.Output.Format, e = flags.GetString("format"); return })
	set("color", func() (e error) { c.Output.Color, e = flags.GetBool("color"); return })
	set("forward", func() (e error) { c.Output.Forward, e = flags.GetString("forward"); return })
	set("commands", func() (e error) { c.Filter.Commands, e = flags.GetStringSlice("commands"); return })
	set("db", func() (e error) { c.Filter.Databases, e = flags.GetIntSlice("db"); return })
	set("keys", func() (e error) { c.Filter.Keys, e = flags.GetStringSlice("keys"); return })
	set("no-control", func() (e error) { c.Filter.DropControl, e = flags.GetBool("no-control"); return })
	set("lua", func() (e error) { c.Filter.LuaFile, e = flags.GetString("lua"); return })
	set("workers", func() (e error) { c.Workers, e = flags.GetInt("workers"); return })
	set("metrics-addr", func() (e error) { c.MetricsAddr, e = flags.GetString("metrics-addr"); return })
	set("log-level", func() (e error) { c.LogLevel, e = flags.GetString("log-level"); return })
	return err
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// newZap builds the process logger. It writes to stderr so stdout stays
// free for events.
func newZap(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(lvl)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.OutputPaths = []string{"stderr"}
	return config.Build()
}
