// Package notify records notifications for committed care transitions and fans them out to
// real-time and external delivery sinks.
package notify

import (
	"context"

	"go.uber.org/zap"

	"kinhelp.org/internal/care"
	"kinhelp.org/internal/obs"
	"kinhelp.org/internal/stream"
)

// Sink receives a notification after it has been stored. Sinks must not block for long;
// delivery retries are the sink owner's concern.
type Sink interface {
	Deliver(ctx context.Context, n care.Notification) error
}

// Emitter implements care.Emitter. The store write is the commit point: once it succeeds the
// notification is returned even if a sink fails.
type Emitter struct {
	store care.Store
	newID func() string
	sinks []Sink
}

var _ care.Emitter = (*Emitter)(nil)

func New(store care.Store, newID func() string, sinks ...Sink) *Emitter {
	return &Emitter{store: store, newID: newID, sinks: sinks}
}

func (e *Emitter) Emit(ctx context.Context, ev care.Event) (care.Notification, error) {
	n, err := care.StoreEmitter{Store: e.store, NewID: e.newID}.Emit(ctx, ev)
	if err != nil {
		return care.Notification{}, err
	}
	for _, s := range e.sinks {
		if err := s.Deliver(ctx, n); err != nil {
			obs.Logger().Warn("notification_sink_failed",
				zap.String("notification_id", n.ID),
				zap.String("type", string(n.Type)),
				zap.Error(err))
		}
	}
	return n, nil
}

// HubSink publishes to in-process subscribers such as SSE streams.
type HubSink struct {
	Hub *stream.Hub[care.Notification]
}

func (s HubSink) Deliver(_ context.Context, n care.Notification) error {
	s.Hub.Publish(n)
	return nil
}
