package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	redisevent "github.com/raniellyferreira/redis-event-stream"
	"github.com/raniellyferreira/redis-event-stream/metrics"
	"github.com/raniellyferreira/redis-event-stream/sink"
)

func listenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Attach to a master and stream its events",
		Example: `  redis-event listen --master localhost:6379 --keys 'user:*' --format json
  redis-event listen --forward localhost:6380 --no-control`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runListen(ctx, cfg, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.String("master", "", "master address (host:port)")
	f.String("user", "", "ACL username")
	f.String("password", "", "master password")
	f.Bool("tls", false, "connect with TLS")
	addOutputFlags(cmd)
	f.String("forward", "", "mirror events to this Redis address instead of printing")
	f.Int("workers", 0, "handle events on N goroutines sharded by key")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address")
	f.String("log-level", "", "debug, info or error")
	return cmd
}

// addOutputFlags registers the flags shared by listen and dump
func addOutputFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("format", "", "output format: text, json or resp")
	f.Bool("color", false, "colorize text output")
	f.StringSlice("commands", nil, "only deliver these commands")
	f.IntSlice("db", nil, "only deliver these databases")
	f.StringSlice("keys", nil, "only deliver events on keys matching these globs")
	f.Bool("no-control", false, "drop PING, REPLCONF, SELECT, MULTI and EXEC")
	f.String("lua", "", "Lua predicate script file")
}

func runListen(ctx context.Context, cfg Config, stdout io.Writer) error {
	zl, err := newZap(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer zl.Sync()
	logger := redisevent.NewZapLogger(zl)

	handler, closeSink, err := buildSink(cfg, stdout)
	if err != nil {
		return err
	}
	defer closeSink()

	opts := []redisevent.Option{
		redisevent.WithMaster(cfg.Master.Addr),
		redisevent.WithHandler(handler),
		redisevent.WithLogger(logger),
		redisevent.WithReadTimeout(cfg.ReadTimeout),
		redisevent.WithSyncTimeout(cfg.SyncTimeout),
		redisevent.WithAckInterval(cfg.AckInterval),
		redisevent.WithListeningPort(cfg.ListenPort),
		redisevent.WithAnnounceIP(cfg.AnnounceAddr),
		redisevent.WithWorkers(cfg.Workers, 0),
	}
	if cfg.Master.Password != "" {
		opts = append(opts, redisevent.WithMasterAuth(cfg.Master.Username, cfg.Master.Password))
	}
	if cfg.Master.TLS {
		serverName := cfg.Master.ServerName
		if serverName == "" {
			serverName = hostOf(cfg.Master.Addr)
		}
		opts = append(opts, redisevent.WithSecureTLS(serverName))
	}
	filterOpts, err := filterOptions(cfg)
	if err != nil {
		return err
	}
	opts = append(opts, filterOpts...)

	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, redisevent.WithMetrics(metrics.New(
			metrics.WithRegistry(reg),
			metrics.WithConstLabels(prometheus.Labels{"master": cfg.Master.Addr}),
		)))

		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zl.Error("Metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		zl.Info("Serving metrics", zap.String("addr", cfg.MetricsAddr))
	}

	l, err := redisevent.New(opts...)
	if err != nil {
		return err
	}
	defer l.Close()

	if err := l.Start(ctx); err != nil {
		return err
	}
	if err := l.WaitForSync(ctx); err != nil && ctx.Err() == nil {
		return err
	}

	<-ctx.Done()
	zl.Info("Shutting down", zap.Int64("offset", l.Offset()))
	return nil
}

// filterOptions turns the filter section into listener options
func filterOptions(cfg Config) ([]redisevent.Option, error) {
	var opts []redisevent.Option
	if len(cfg.Filter.Commands) > 0 {
		opts = append(opts, redisevent.WithCommandFilters(cfg.Filter.Commands))
	}
	if len(cfg.Filter.Databases) > 0 {
		opts = append(opts, redisevent.WithDatabases(cfg.Filter.Databases))
	}
	if len(cfg.Filter.Keys) > 0 {
		opts = append(opts, redisevent.WithKeyPatterns(cfg.Filter.Keys...))
	}
	if cfg.Filter.DropControl {
		opts = append(opts, redisevent.WithoutControlCommands())
	}
	if cfg.Filter.LuaFile != "" {
		script, err := os.ReadFile(cfg.Filter.LuaFile)
		if err != nil {
			return nil, fmt.Errorf("read lua filter: %w", err)
		}
		opts = append(opts, redisevent.WithLuaFilter(string(script)))
	}
	return opts, nil
}

// buildSink returns the printer, or a forwarder when a target is set
func buildSink(cfg Config, stdout io.Writer) (redisevent.Handler, func(), error) {
	if cfg.Output.Forward != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Output.Forward,
			Password: cfg.Output.ForwardPassword,
			DB:       cfg.Output.ForwardDB,
		})
		fwd := sink.NewForwarder(client, sink.ForwardConfig{})
		return fwd, func() {
			fwd.Close()
			client.Close()
		}, nil
	}

	format, err := sink.ParseFormat(cfg.Output.Format)
	if err != nil {
		return nil, nil, err
	}
	return sink.NewPrinter(stdout, format, cfg.Output.Color), func() {}, nil
}

func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
