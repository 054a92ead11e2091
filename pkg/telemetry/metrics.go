// SPDX-License-Identifier: Apache-2.0
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/carebridge/concierge/pkg/core"
	"github.com/carebridge/concierge/pkg/errors"
)

// TurnMetrics tracks turn throughput, invocation outcomes, and capability
// health for production monitoring.
type TurnMetrics struct {
	// turnCounter tracks completed turns by outcome
	turnCounter metric.Int64Counter

	// invocationCounter tracks invocations by tool and status
	invocationCounter metric.Int64Counter

	// invocationLatency tracks per-invocation latency
	invocationLatency metric.Float64Histogram

	// healthGauge tracks capability health (0=unhealthy, 1=unknown, 2=healthy)
	healthGauge metric.Int64Gauge
}

// NewTurnMetrics creates a turn metrics tracker with OTEL meters.
func NewTurnMetrics() (*TurnMetrics, error) {
	meter := otel.Meter("concierge/agent")

	turnCounter, err := meter.Int64Counter(
		"concierge.turns.total",
		metric.WithDescription("Completed turns by outcome"),
	)
	if err != nil {
		return nil, err
	}

	invocationCounter, err := meter.Int64Counter(
		"concierge.invocations.total",
		metric.WithDescription("Tool invocations by tool name and status"),
	)
	if err != nil {
		return nil, err
	}

	invocationLatency, err := meter.Float64Histogram(
		"concierge.invocations.latency",
		metric.WithDescription("Invocation latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	healthGauge, err := meter.Int64Gauge(
		"concierge.capability.health",
		metric.WithDescription("Capability health (0=unhealthy, 1=unknown, 2=healthy)"),
	)
	if err != nil {
		return nil, err
	}

	return &TurnMetrics{
		turnCounter:       turnCounter,
		invocationCounter: invocationCounter,
		invocationLatency: invocationLatency,
		healthGauge:       healthGauge,
	}, nil
}

// RecordTurn counts one completed turn.
func (m *TurnMetrics) RecordTurn(ctx context.Context, invocations int, partialFailure bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if partialFailure {
		outcome = "degraded"
	}
	m.turnCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("outcome", outcome),
			attribute.Int("invocations", invocations),
		),
	)
}

// RecordInvocation counts one terminal invocation and its latency.
func (m *TurnMetrics) RecordInvocation(ctx context.Context, toolName string, latency time.Duration, err error) {
	if m == nil {
		return
	}
	status := "succeeded"
	code := ""
	if err != nil {
		status = "failed"
		code = string(errors.CodeOf(err))
	}
	attrs := metric.WithAttributes(
		attribute.String("tool", toolName),
		attribute.String("status", status),
		attribute.String("error.code", code),
	)
	m.invocationCounter.Add(ctx, 1, attrs)
	m.invocationLatency.Record(ctx, latency.Seconds(), attrs)
}

// RecordHealth reports a capability health state.
func (m *TurnMetrics) RecordHealth(ctx context.Context, capabilityID string, state core.HealthState) {
	if m == nil {
		return
	}
	var value int64
	switch state {
	case core.HealthHealthy:
		value = 2
	case core.HealthUnknown:
		value = 1
	default:
		value = 0
	}
	m.healthGauge.Record(ctx, value,
		metric.WithAttributes(attribute.String("capability_id", capabilityID)),
	)
}
