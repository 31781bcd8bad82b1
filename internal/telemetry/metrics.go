// Package telemetry holds the OpenTelemetry instruments recorded by the
// gateway and the rule engine.
//
// A nil *Metrics is valid and records nothing, so components can take one
// unconditionally.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of every ngat instrument.
const MeterName = "github.com/roach88/ngat"

// Command outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
)

// Metrics bundles the counters.
type Metrics struct {
	commands     metric.Int64Counter
	rulesApplied metric.Int64Counter
	rulesBlocked metric.Int64Counter
	ticks        metric.Int64Counter
}

// New creates the instruments on provider. A nil provider means the global
// otel provider.
func New(provider metric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(MeterName)

	var (
		m   Metrics
		err error
	)
	if m.commands, err = meter.Int64Counter(
		"ngat_commands_total",
		metric.WithDescription("Commands submitted to the gateway, by outcome and stage"),
	); err != nil {
		return nil, fmt.Errorf("create ngat_commands_total: %w", err)
	}
	if m.rulesApplied, err = meter.Int64Counter(
		"ngat_rules_applied_total",
		metric.WithDescription("Rules whose effects were applied by execute_tick"),
	); err != nil {
		return nil, fmt.Errorf("create ngat_rules_applied_total: %w", err)
	}
	if m.rulesBlocked, err = meter.Int64Counter(
		"ngat_rules_blocked_total",
		metric.WithDescription("Eligible rules excluded by write-key conflicts"),
	); err != nil {
		return nil, fmt.Errorf("create ngat_rules_blocked_total: %w", err)
	}
	if m.ticks, err = meter.Int64Counter(
		"ngat_ticks_total",
		metric.WithDescription("Executed rule engine ticks"),
	); err != nil {
		return nil, fmt.Errorf("create ngat_ticks_total: %w", err)
	}
	return &m, nil
}

// RecordCommand counts one gateway decision. stage is the pipeline stage
// that decided it ("edit_mode", "rules", "authority" or "executed").
func (m *Metrics) RecordCommand(ctx context.Context, outcome, stage string) {
	if m == nil {
		return
	}
	m.commands.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("stage", stage),
	))
}

// RecordTick counts one executed tick with its applied and blocked rules.
func (m *Metrics) RecordTick(ctx context.Context, applied, blocked int) {
	if m == nil {
		return
	}
	m.ticks.Add(ctx, 1)
	if applied > 0 {
		m.rulesApplied.Add(ctx, int64(applied))
	}
	if blocked > 0 {
		m.rulesBlocked.Add(ctx, int64(blocked))
	}
}
