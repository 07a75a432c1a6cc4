package telemetry

import (
	"context"
	"errors"
)

// EventEmitter emits login events (e.g. to Kafka or OTel Logs).
// Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}

// NoopEmitter discards events. Used when no sink is configured.
type NoopEmitter struct{}

func (NoopEmitter) Emit(context.Context, *Event) error { return nil }

// MultiEmitter fans one event out to several sinks. Emit tries every sink
// and joins the errors.
type MultiEmitter []EventEmitter

func (m MultiEmitter) Emit(ctx context.Context, event *Event) error {
	var errs []error
	for _, e := range m {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
