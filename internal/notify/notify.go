// Package notify defines the hook the queue store calls after every
// mutation, plus a few stock implementations.
package notify

import (
	"context"

	"github.com/rzbill/pageq/internal/footprint"
	"github.com/rzbill/pageq/internal/origin"
	logpkg "github.com/rzbill/pageq/pkg/log"
)

// Notifier observes queue changes. It is called once per store mutation, in
// mutation order, with the origin's footprint after the change. A Notifier
// may read from the store but must not mutate it.
type Notifier interface {
	OnQueueChanged(ctx context.Context, o origin.ID, fp footprint.Footprint)
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, o origin.ID, fp footprint.Footprint)

func (f Func) OnQueueChanged(ctx context.Context, o origin.ID, fp footprint.Footprint) {
	f(ctx, o, fp)
}

// Nop ignores every change.
type Nop struct{}

func (Nop) OnQueueChanged(context.Context, origin.ID, footprint.Footprint) {}

// Multi fans a change out to each notifier in order.
type Multi []Notifier

func (m Multi) OnQueueChanged(ctx context.Context, o origin.ID, fp footprint.Footprint) {
	for _, n := range m {
		if n != nil {
			n.OnQueueChanged(ctx, o, fp)
		}
	}
}

// Logging writes every change at debug level.
type Logging struct {
	Logger logpkg.Logger
}

func (l Logging) OnQueueChanged(_ context.Context, o origin.ID, fp footprint.Footprint) {
	if l.Logger == nil {
		return
	}
	l.Logger.Debug("queue changed",
		logpkg.F("origin", o),
		logpkg.F("count", fp.Count),
		logpkg.F("size", fp.Size),
		logpkg.F("pages", fp.Pages),
		logpkg.F("ready_pages", fp.ReadyPages),
	)
}

type inNotificationKey struct{}

// WithinNotification marks ctx as belonging to a notifier callback.
func WithinNotification(ctx context.Context) context.Context {
	return context.WithValue(ctx, inNotificationKey{}, true)
}

// InNotification reports whether ctx was handed to a notifier callback.
func InNotification(ctx context.Context) bool {
	v, _ := ctx.Value(inNotificationKey{}).(bool)
	return v
}
