package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Sum[int64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]metricdata.Sum[int64]{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				out[m.Name] = sum
			}
		}
	}
	return out
}

func total(sum metricdata.Sum[int64]) int64 {
	var n int64
	for _, dp := range sum.DataPoints {
		n += dp.Value
	}
	return n
}

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	m, err := New(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	require.NoError(t, err)
	return m, reader
}

func TestRecordCommand(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCommand(ctx, OutcomeAccepted, "executed")
	m.RecordCommand(ctx, OutcomeRejected, "edit_mode")
	m.RecordCommand(ctx, OutcomeRejected, "edit_mode")

	sums := collect(t, reader)
	cmds, ok := sums["ngat_commands_total"]
	require.True(t, ok)
	assert.Equal(t, int64(3), total(cmds))

	var rejected int64
	for _, dp := range cmds.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key("outcome")); ok && v.AsString() == OutcomeRejected {
			stage, _ := dp.Attributes.Value(attribute.Key("stage"))
			assert.Equal(t, "edit_mode", stage.AsString())
			rejected += dp.Value
		}
	}
	assert.Equal(t, int64(2), rejected)
}

func TestRecordTick(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTick(ctx, 2, 1)
	m.RecordTick(ctx, 1, 0)

	sums := collect(t, reader)
	assert.Equal(t, int64(2), total(sums["ngat_ticks_total"]))
	assert.Equal(t, int64(3), total(sums["ngat_rules_applied_total"]))
	assert.Equal(t, int64(1), total(sums["ngat_rules_blocked_total"]))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordCommand(context.Background(), OutcomeAccepted, "executed")
		m.RecordTick(context.Background(), 1, 1)
	})
}
