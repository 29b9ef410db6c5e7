package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics groups the instruments recorded by the gateway and the relay.
type Metrics struct {
	storageOps   metric.Int64Counter
	failovers    metric.Int64Counter
	breakerTrans metric.Int64Counter
	relayEvents  metric.Int64Counter
	wsClients    metric.Int64UpDownCounter
}

// NewMetrics registers all instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)
	if m.storageOps, err = meter.Int64Counter("chatbot_storage_operations_total",
		metric.WithDescription("Chatbot storage operations by backend, operation and outcome")); err != nil {
		return nil, err
	}
	if m.failovers, err = meter.Int64Counter("chatbot_storage_failovers_total",
		metric.WithDescription("Operations served by the local store because the primary was unavailable")); err != nil {
		return nil, err
	}
	if m.breakerTrans, err = meter.Int64Counter("chatbot_storage_breaker_transitions_total",
		metric.WithDescription("Circuit breaker state transitions")); err != nil {
		return nil, err
	}
	if m.relayEvents, err = meter.Int64Counter("chat_relay_events_total",
		metric.WithDescription("Events emitted to chat clients by transport and type")); err != nil {
		return nil, err
	}
	if m.wsClients, err = meter.Int64UpDownCounter("chat_ws_connections",
		metric.WithDescription("Open websocket connections")); err != nil {
		return nil, err
	}
	return &m, nil
}

// NopMetrics records nothing.
func NopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter(InstrumentationName))
	return m
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) StorageOp(ctx context.Context, backend, op string, err error) {
	m.storageOps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("op", op),
		attribute.String("outcome", outcome(err)),
	))
}

func (m *Metrics) Failover(ctx context.Context, op string) {
	m.failovers.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

func (m *Metrics) BreakerTransition(ctx context.Context, name, to string) {
	m.breakerTrans.Add(ctx, 1, metric.WithAttributes(attribute.String("name", name), attribute.String("to", to)))
}

func (m *Metrics) RelayEvent(ctx context.Context, transport, eventType string) {
	m.relayEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("transport", transport),
		attribute.String("type", eventType),
	))
}

func (m *Metrics) WSConnections(ctx context.Context, delta int64) {
	m.wsClients.Add(ctx, delta)
}
