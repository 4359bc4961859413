package replication

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/raniellyferreira/redis-event-stream/command"
	"github.com/raniellyferreira/redis-event-stream/protocol"
	"github.com/raniellyferreira/redis-event-stream/rdb"
)

// DefaultAckInterval is how often the processed offset is reported.
const DefaultAckInterval = time.Second

// MetricsCollector interface for replication metrics
type MetricsCollector interface {
	RecordSyncDuration(duration time.Duration)
	RecordCommandProcessed(cmd string, duration time.Duration)
	RecordSnapshotObject(kind string)
	RecordNetworkBytes(bytes int64)
	RecordOffset(offset int64)
	RecordReconnection()
	RecordError(errorType string)
}

// ReplayConfig configures a Replayer.
type ReplayConfig struct {
	Handler Handler

	// AckInterval between REPLCONF ACK messages. Zero uses
	// DefaultAckInterval, a negative value disables periodic acks.
	AckInterval time.Duration

	// Parse turns raw commands into typed ones. Defaults to command.Parse.
	Parse func(args [][]byte) (command.Command, error)

	// DecodeOptions are passed to the snapshot decoder.
	DecodeOptions []rdb.Option

	// OnSnapshotLoaded is called once the full sync snapshot is consumed.
	OnSnapshotLoaded func(objects int64, duration time.Duration)

	Logger  Logger
	Metrics MetricsCollector
}

// Replayer consumes the snapshot and the command stream that follow a
// handshake, forwarding everything to a Handler.
type Replayer struct {
	conn   *Conn
	cfg    ReplayConfig
	offset Offset
	db     int
	objs   int64
}

// NewReplayer creates a replayer for conn.
func NewReplayer(conn *Conn, cfg ReplayConfig) *Replayer {
	if cfg.Handler == nil {
		cfg.Handler = NopHandler
	}
	if cfg.AckInterval == 0 {
		cfg.AckInterval = DefaultAckInterval
	}
	if cfg.Parse == nil {
		cfg.Parse = command.Parse
	}
	if cfg.Logger == nil {
		cfg.Logger = conn.logger
	}
	return &Replayer{conn: conn, cfg: cfg}
}

// Offset returns the processed replication offset.
func (r *Replayer) Offset() int64 {
	return r.offset.Load()
}

// Run acts on a handshake outcome and blocks until the stream ends, ctx is
// cancelled or the handler fails.
func (r *Replayer) Run(ctx context.Context, outcome HandshakeOutcome) error {
	switch outcome.NextStep {
	case FullSync:
		if err := r.LoadSnapshot(ctx, outcome); err != nil {
			return err
		}
	case PartialResync:
		r.offset.Store(outcome.ReplOffset)
		r.cfg.Logger.Info("Partial resync accepted", "replid", outcome.ReplID, "offset", outcome.ReplOffset)
	case Wait:
		return ErrWait
	case ChangeMode:
		return ErrChangeMode
	default:
		return fmt.Errorf("unknown next step %d", outcome.NextStep)
	}

	// first ack right after the sync so the master sees us online
	if err := r.conn.Ack(r.offset.Load()); err != nil {
		return fmt.Errorf("send ack: %w", err)
	}
	return r.Stream(ctx)
}

// LoadSnapshot decodes the full sync payload and sets the offset to the
// one announced by the master.
func (r *Replayer) LoadSnapshot(ctx context.Context, outcome HandshakeOutcome) error {
	stop := context.AfterFunc(ctx, func() { r.conn.Close() })
	defer stop()

	start := time.Now()
	r.offset.Store(outcome.ReplOffset)
	sink := &snapshotSink{r: r, offset: outcome.ReplOffset}

	var err error
	if outcome.PayloadLength >= 0 {
		err = r.loadSized(sink, outcome.PayloadLength)
	} else {
		err = r.loadDiskless(sink, outcome.Delimiter)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		r.recordError("snapshot")
		return err
	}

	duration := time.Since(start)
	r.cfg.Logger.Info("Snapshot loaded", "objects", r.objs, "duration", duration, "offset", outcome.ReplOffset)
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.RecordSyncDuration(duration)
		r.cfg.Metrics.RecordOffset(outcome.ReplOffset)
		if outcome.PayloadLength > 0 {
			r.cfg.Metrics.RecordNetworkBytes(outcome.PayloadLength)
		}
	}
	if r.cfg.OnSnapshotLoaded != nil {
		r.cfg.OnSnapshotLoaded(r.objs, duration)
	}
	return nil
}

// loadSized decodes a length-prefixed payload and discards anything the
// decoder left unread inside it.
func (r *Replayer) loadSized(sink *snapshotSink, length int64) error {
	payload := io.LimitReader(r.conn.counter, length)
	if err := rdb.Decode(payload, sink, r.cfg.DecodeOptions...); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	n, err := io.Copy(io.Discard, payload)
	if err != nil {
		return fmt.Errorf("drain snapshot: %w", err)
	}
	if n > 0 {
		r.cfg.Logger.Debug("Discarded bytes after snapshot EOF", "bytes", n)
	}
	return nil
}

// loadDiskless decodes a payload of unknown size straight from the shared
// reader, then checks the delimiter that ends it.
func (r *Replayer) loadDiskless(sink *snapshotSink, delimiter []byte) error {
	if err := rdb.Decode(r.conn.counter, sink, r.cfg.DecodeOptions...); err != nil {
		return fmt.Errorf("decode diskless snapshot: %w", err)
	}
	mark := make([]byte, delimiterSize)
	if _, err := io.ReadFull(r.conn.counter, mark); err != nil {
		return fmt.Errorf("read snapshot delimiter: %w", err)
	}
	if !bytes.Equal(mark, delimiter) {
		return fmt.Errorf("%w: snapshot delimiter mismatch", protocol.ErrFraming)
	}
	return nil
}

// Stream runs the command loop and the periodic ack sender until one of
// them fails or ctx is cancelled.
func (r *Replayer) Stream(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(ctx, func() { r.conn.Close() })
	defer stop()

	if r.cfg.AckInterval > 0 {
		g.Go(func() error {
			return r.ackLoop(ctx)
		})
	}
	g.Go(func() error {
		return r.readLoop(ctx)
	})
	return g.Wait()
}

func (r *Replayer) ackLoop(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.AckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.conn.Ack(r.offset.Load()); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				r.recordError("ack")
				return fmt.Errorf("send ack: %w", err)
			}
		}
	}
}

func (r *Replayer) readLoop(ctx context.Context) error {
	cr := r.conn.counter
	for {
		cr.Mark()
		value, err := r.conn.reader.ReadNext()
		n, _ := cr.Reset()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			r.recordError("stream")
			return fmt.Errorf("read command: %w", err)
		}

		args, err := value.BulkArgs()
		if err != nil {
			r.recordError("protocol")
			return err
		}
		if err := r.apply(args, n); err != nil {
			return err
		}
	}
}

// apply forwards one command frame of n bytes and advances the offset.
func (r *Replayer) apply(args [][]byte, n int64) error {
	start := time.Now()

	cmd, err := r.cfg.Parse(args)
	if err != nil {
		if !errors.Is(err, command.ErrUnrecognized) {
			r.cfg.Logger.Debug("Forwarding command without typed form", "error", err)
		}
		cmd = nil
	}

	switch c := cmd.(type) {
	case *command.ReplConf:
		if c.IsGetAck() {
			// the ack reports the offset before the GETACK frame
			if err := r.conn.Ack(r.offset.Load()); err != nil {
				return fmt.Errorf("answer GETACK: %w", err)
			}
			r.offset.Add(n)
			return nil
		}
	case *command.Select:
		r.db = c.DB
	}

	ev := Event{
		Kind:    EventCommand,
		DB:      r.db,
		Args:    args,
		Command: cmd,
		Offset:  r.offset.Load() + n,
	}
	if err := r.cfg.Handler.Handle(ev); err != nil {
		r.recordError("handler")
		return fmt.Errorf("handle %s: %w", ev.Name(), err)
	}
	offset := r.offset.Add(n)

	if r.cfg.Metrics != nil {
		r.cfg.Metrics.RecordCommandProcessed(ev.Name(), time.Since(start))
		r.cfg.Metrics.RecordNetworkBytes(n)
		r.cfg.Metrics.RecordOffset(offset)
	}
	return nil
}

func (r *Replayer) recordError(errorType string) {
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.RecordError(errorType)
	}
}

// snapshotSink forwards decoded snapshot records as events.
type snapshotSink struct {
	rdb.BaseHandler
	r      *Replayer
	offset int64
}

func (s *snapshotSink) OnDatabase(index int) error {
	s.r.db = index
	return nil
}

func (s *snapshotSink) OnAux(key, value []byte) error {
	s.r.cfg.Logger.Debug("Snapshot aux field", "key", string(key), "value", string(value))
	return nil
}

func (s *snapshotSink) OnModuleAux(module string, when uint64, _ *rdb.RawModule) error {
	s.r.cfg.Logger.Debug("Snapshot module aux", "module", module, "when", when)
	return nil
}

func (s *snapshotSink) OnObject(obj rdb.Object) error {
	s.r.objs++
	if s.r.cfg.Metrics != nil {
		s.r.cfg.Metrics.RecordSnapshotObject(obj.Kind().String())
	}
	return s.r.cfg.Handler.Handle(Event{
		Kind:   EventObject,
		DB:     obj.Meta().DB,
		Object: obj,
		Offset: s.offset,
	})
}

func (s *snapshotSink) OnEnd(checksum uint64) error {
	s.r.cfg.Logger.Debug("Snapshot EOF", "checksum", checksum)
	return nil
}
