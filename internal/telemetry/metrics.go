package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the counters the auth service records per request.
type Metrics struct {
	logins    metric.Int64Counter
	evictions metric.Int64Counter
	refreshes metric.Int64Counter
}

// NewMetrics registers the service counters on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	logins, err := meter.Int64Counter("auth.logins",
		metric.WithDescription("Login attempts by result"))
	if err != nil {
		return nil, err
	}
	evictions, err := meter.Int64Counter("auth.session_evictions",
		metric.WithDescription("Sessions evicted by a same-class login"))
	if err != nil {
		return nil, err
	}
	refreshes, err := meter.Int64Counter("auth.token_refreshes",
		metric.WithDescription("Refresh token exchanges by result"))
	if err != nil {
		return nil, err
	}
	return &Metrics{logins: logins, evictions: evictions, refreshes: refreshes}, nil
}

// RecordLogin counts a login attempt. result is "success" or the business
// error code as a string.
func (m *Metrics) RecordLogin(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.logins.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordEviction counts a session evicted by a new same-class login.
func (m *Metrics) RecordEviction(ctx context.Context, deviceClass string) {
	if m == nil {
		return
	}
	m.evictions.Add(ctx, 1, metric.WithAttributes(attribute.String("device_class", deviceClass)))
}

// RecordRefresh counts a refresh token exchange.
func (m *Metrics) RecordRefresh(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.refreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
