package serverrun

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	cfgpkg "github.com/rzbill/pageq/internal/config"
	"github.com/rzbill/pageq/internal/runtime"
	logpkg "github.com/rzbill/pageq/pkg/log"
)

// DefaultInterval is the pause between service passes.
const DefaultInterval = 100 * time.Millisecond

type Options struct {
	Config cfgpkg.Config
	// Interval between service passes; zero means DefaultInterval.
	Interval time.Duration
	// Logger defaults to one built from Config.Log.
	Logger logpkg.Logger
}

// Run opens the runtime and services the queues until ctx is cancelled or
// the process receives SIGINT/SIGTERM.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}

	procLogger := opts.Logger
	if procLogger == nil {
		l, err := logpkg.ApplyConfig(opts.Config.Log)
		if err != nil {
			lvl, _ := logpkg.ParseLevel(opts.Config.Log.Level)
			l = logpkg.NewLogger(logpkg.WithLevel(lvl), logpkg.WithFormatter(&logpkg.TextFormatter{}))
		}
		procLogger = l
	}
	// Pebble logs through the standard library logger.
	restore := logpkg.RedirectStdLog(procLogger)
	defer restore()

	rt, err := runtime.Open(runtime.Options{Config: opts.Config, Logger: procLogger})
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg := rt.Config()
	procLogger.Info("Starting pageq",
		logpkg.Str("data_dir", cfg.ResolveDataDir()),
		logpkg.Str("policy", cfg.PagePolicy),
		logpkg.F("total_pages_limit", cfg.TotalPagesLimit),
		logpkg.Str("service_weight", rt.ServiceWeight().String()),
		logpkg.Str("max_message_weight", cfg.MaxMessageWeightValue().String()),
		logpkg.Str("schedule_filter", cfg.ScheduleFilter),
		logpkg.Duration("interval", opts.Interval),
	)
	err = rt.Run(sctx, opts.Interval)
	procLogger.Info("pageq stopped")
	return err
}
