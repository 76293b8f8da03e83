package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/prperemyshlev/session-gateway"

// SessionMetrics counts session gate activity. A nil *SessionMetrics records nothing.
type SessionMetrics struct {
	verifications metric.Int64Counter
	decisions     metric.Int64Counter
	retryAttempts metric.Int64Counter
}

// NewSessionMetrics registers the session counters on the given provider
func NewSessionMetrics(provider metric.MeterProvider) (*SessionMetrics, error) {
	meter := provider.Meter(meterName)

	verifications, err := meter.Int64Counter("session_verifications_total",
		metric.WithDescription("Identity backend verifications by outcome"))
	if err != nil {
		return nil, fmt.Errorf("failed to create verifications counter: %w", err)
	}

	decisions, err := meter.Int64Counter("session_gate_decisions_total",
		metric.WithDescription("Page gate decisions by terminal state"))
	if err != nil {
		return nil, fmt.Errorf("failed to create decisions counter: %w", err)
	}

	retryAttempts, err := meter.Int64Counter("session_background_retry_attempts_total",
		metric.WithDescription("Background re-verification attempts by outcome"))
	if err != nil {
		return nil, fmt.Errorf("failed to create retry counter: %w", err)
	}

	return &SessionMetrics{
		verifications: verifications,
		decisions:     decisions,
		retryAttempts: retryAttempts,
	}, nil
}

func (m *SessionMetrics) RecordVerification(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.verifications.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *SessionMetrics) RecordDecision(ctx context.Context, state string) {
	if m == nil {
		return
	}
	m.decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state)))
}

func (m *SessionMetrics) RecordRetryAttempt(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.retryAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
