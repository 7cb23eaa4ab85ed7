// Package serverrun exposes the Run entrypoint used by `pageq run` to open
// the runtime and service the queues on a fixed interval until shutdown.
//
// Example:
//
//	cfg := config.Default()
//	cfg.DataDir = "./data"
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = serverrun.Run(ctx, serverrun.Options{Config: cfg, Interval: 50 * time.Millisecond})
package serverrun
