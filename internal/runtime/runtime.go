package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rzbill/pageq/internal/auditlog"
	cfgpkg "github.com/rzbill/pageq/internal/config"
	"github.com/rzbill/pageq/internal/mq"
	"github.com/rzbill/pageq/internal/notify"
	"github.com/rzbill/pageq/internal/processor"
	"github.com/rzbill/pageq/internal/scheduler"
	"github.com/rzbill/pageq/internal/service"
	pebblestore "github.com/rzbill/pageq/internal/storage/pebble"
	"github.com/rzbill/pageq/internal/telemetry"
	"github.com/rzbill/pageq/internal/weight"
	logpkg "github.com/rzbill/pageq/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	// Logger defaults to a logger built from Config.Log.
	Logger logpkg.Logger
	// Processor defaults to the weight-marker processor recording into the
	// audit log, wrapped in a tracing span.
	Processor processor.Processor
	// Notifier receives queue changes after the ready ring. Optional.
	Notifier notify.Notifier
	// Instruments defaults to telemetry.Default().
	Instruments *telemetry.Instruments
}

// Runtime wires storage, the queue store, the ready ring and the servicer
// for a single-node instance.
type Runtime struct {
	db       *pebblestore.DB
	config   cfgpkg.Config
	logger   logpkg.Logger
	store    *mq.Store
	ring     *scheduler.Ring
	audit    *auditlog.Log
	servicer *service.Servicer
}

// Open validates the configuration, opens storage and rebuilds the ready
// ring from the persisted queues.
func Open(opts Options) (*Runtime, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		l, err := logpkg.ApplyConfig(cfg.Log)
		if err != nil {
			return nil, err
		}
		logger = l
	}
	in := opts.Instruments
	if in == nil {
		in = telemetry.Default()
	}
	fsync := pebblestore.FsyncModeAlways
	if cfg.Fsync != "" {
		m, err := pebblestore.ParseFsyncMode(cfg.Fsync)
		if err != nil {
			return nil, err
		}
		fsync = m
	}
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}
	filter, err := scheduler.NewFilter(cfg.ScheduleFilter)
	if err != nil {
		return nil, fmt.Errorf("runtime: schedule filter: %w", err)
	}

	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       cfg.ResolveDataDir(),
		Fsync:         fsync,
		FsyncInterval: time.Duration(cfg.FsyncIntervalMs) * time.Millisecond,
		Metrics:       in,
	})
	if err != nil {
		return nil, err
	}
	ring := scheduler.NewRing(filter, logger)
	notifiers := notify.Multi{ring, notify.Logging{Logger: logger}, opts.Notifier}
	store, err := mq.Open(db, mq.Options{
		MaxMessageLen: cfg.MaxMessageLen,
		Policy:        policy,
		Notifier:      notifiers,
		Logger:        logger,
		Metrics:       in,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	audit := auditlog.Open(db)
	proc := opts.Processor
	if proc == nil {
		proc = telemetry.Tracing(processor.WeightMarker{
			Recorder: auditlog.Recorder{Log: audit},
			Logger:   logger.With(logpkg.Component("processor")),
		})
	}
	servicer, err := service.New(service.Options{
		Store:            store,
		Ring:             ring,
		Processor:        proc,
		MaxMessageWeight: cfg.MaxMessageWeightValue(),
		PeekBatch:        cfg.PeekBatch,
		Logger:           logger,
		Metrics:          in,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	rt := &Runtime{
		db:       db,
		config:   cfg,
		logger:   logger.With(logpkg.Component("runtime")),
		store:    store,
		ring:     ring,
		audit:    audit,
		servicer: servicer,
	}
	if err := rt.restoreRing(context.Background(), in); err != nil {
		_ = db.Close()
		return nil, err
	}
	return rt, nil
}

// restoreRing replays every known origin's footprint into the ring and the
// footprint gauges, since notifications are not persisted.
func (r *Runtime) restoreRing(ctx context.Context, in *telemetry.Instruments) error {
	for _, m := range r.store.Origins() {
		fp, err := r.store.Footprint(ctx, m.ID)
		if err != nil {
			return fmt.Errorf("runtime: restore origin %s: %w", m.ID, err)
		}
		r.ring.OnQueueChanged(ctx, m.ID, fp)
		in.ObserveFootprint(ctx, m.ID, fp)
	}
	r.logger.Info("queues restored",
		logpkg.Int("origins", len(r.store.Origins())),
		logpkg.Int("ready", r.ring.Len()),
	)
	return nil
}

// Close closes underlying resources.
func (r *Runtime) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// CheckHealth performs a simple health check.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	return it.Close()
}

// ServiceWeight is the per-pass budget from the configuration.
func (r *Runtime) ServiceWeight() weight.Weight { return r.config.ServiceWeight.Weight() }

// ServiceOnce runs one service pass with the configured budget.
func (r *Runtime) ServiceOnce(ctx context.Context) (service.Report, error) {
	return r.servicer.ServiceQueues(ctx, weight.NewMeter(r.ServiceWeight()))
}

// Run services the queues every interval until ctx is cancelled. Pass errors
// are logged and do not stop the loop.
func (r *Runtime) Run(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		return fmt.Errorf("runtime: interval must be positive, got %s", every)
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			rep, err := r.ServiceOnce(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				r.logger.Error("service pass failed", logpkg.Err(err))
				continue
			}
			if rep.Accepted+rep.Corrupt+rep.Overweight > 0 {
				r.logger.Debug("service pass",
					logpkg.Int("accepted", rep.Accepted),
					logpkg.Int("corrupt", rep.Corrupt),
					logpkg.Int("overweight", rep.Overweight),
					logpkg.Str("consumed", rep.Consumed.String()),
				)
			}
		}
	}
}

// Store returns the queue store.
func (r *Runtime) Store() *mq.Store { return r.store }

// Ring returns the ready ring.
func (r *Runtime) Ring() *scheduler.Ring { return r.ring }

// Servicer returns the servicer.
func (r *Runtime) Servicer() *service.Servicer { return r.servicer }

// AuditLog returns the log of accepted messages.
func (r *Runtime) AuditLog() *auditlog.Log { return r.audit }

// Logger returns the process logger.
func (r *Runtime) Logger() logpkg.Logger { return r.logger }

// DB exposes the underlying DB for advanced operations (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
