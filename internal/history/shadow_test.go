package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShadowLedger(t *testing.T) {
	sink := &memSink{}
	s := NewShadowLedger(func() time.Time { return t0 }, sink)

	cmd := map[string]any{"system": "weather", "events": []any{map[string]any{"type": "storm"}}}
	e, err := s.Record(Entry{Issuer: "npc1", Command: cmd, Reason: "frozen", Stage: "edit_mode", Scene: "intro"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), e.Seq)
	assert.Equal(t, t0, e.Timestamp)

	_, err = s.Record(Entry{Issuer: "gm", Reason: "denied", Stage: "authority"})
	require.NoError(t, err)

	cmd["system"] = "mutated"
	assert.Equal(t, "weather", s.Entries()[0].Command["system"])
	assert.Len(t, s.ForIssuer("npc1"), 1)
	assert.Empty(t, s.ForIssuer("nobody"))
	assert.Equal(t, 2, s.Len())
	assert.Len(t, sink.shadow, 2)

	require.NoError(t, s.Clear())
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, sink.shadow)
}

func TestShadowLedgerSinkFailure(t *testing.T) {
	s := NewShadowLedger(nil, &memSink{fail: true})
	_, err := s.Record(Entry{Issuer: "x"})
	require.Error(t, err)
	assert.Equal(t, 0, s.Len())
}
