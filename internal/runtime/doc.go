// Package runtime wires storage, the queue store, the ready ring and the
// servicer into a single-node pageq instance.
//
// Example:
//
//	cfg := config.Default()
//	cfg.DataDir = "./data"
//	rt, err := runtime.Open(runtime.Options{Config: cfg})
//	if err != nil {
//	    return err
//	}
//	defer rt.Close()
//	msg, _ := rt.Store().Bound(processor.EncodeMarker(10, []byte("hello")))
//	_ = rt.Store().EnqueueMessage(ctx, 1, msg)
//	rep, _ := rt.ServiceOnce(ctx)
package runtime
