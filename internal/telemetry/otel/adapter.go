package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/lanstar128/jjds-auth-service/internal/telemetry"
)

// NewEventEmitter returns an emitter that writes login events as OTel log
// records through the given LoggerProvider. A nil provider yields a no-op.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return telemetry.NoopEmitter{}
	}
	return &logEmitter{logger: provider.Logger("jjds.auth.events")}
}

type logEmitter struct {
	logger otellog.Logger
}

func (e *logEmitter) Emit(ctx context.Context, event *telemetry.Event) error {
	if event == nil {
		return nil
	}
	rec := otellog.Record{}
	ts := event.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetBody(otellog.StringValue(event.EventType))
	rec.AddAttributes(otellog.String("event_type", event.EventType))
	if event.UserID != 0 {
		rec.AddAttributes(otellog.Int64("user_id", event.UserID))
	}
	if event.SessionID != "" {
		rec.AddAttributes(otellog.String("session_id", event.SessionID))
	}
	if event.DeviceClass != "" {
		rec.AddAttributes(otellog.String("device_class", event.DeviceClass))
	}
	if event.EvictedSessionID != "" {
		rec.AddAttributes(otellog.String("evicted_session_id", event.EvictedSessionID))
	}
	if event.IPAddress != "" {
		rec.AddAttributes(otellog.String("ip_address", event.IPAddress))
	}
	if event.FailureCode != 0 {
		rec.AddAttributes(otellog.Int64("failure_code", int64(event.FailureCode)))
	}
	e.logger.Emit(ctx, rec)
	return nil
}
