package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ngat/internal/protocol"
)

const snapshotPayload = `{
  "world": {"time": 12.5},
  "entities": {
    "scout": {"position": [1, 2, 0], "velocity": [0, 0.5, 0], "flags": {"alert": true}}
  }
}`

func TestEnvelope_WrapThenVerify(t *testing.T) {
	dir := t.TempDir()
	payloadPath := writeFile(t, dir, "world.json", snapshotPayload)
	envPath := filepath.Join(dir, "world.env.json")

	_, err := execute(NewEnvelopeCommand(&RootOptions{Format: "text"}),
		"wrap", payloadPath, "--tick", "42", "--out", envPath)
	require.NoError(t, err)

	data, err := os.ReadFile(envPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"protocol":"NGAT-RT"`)
	assert.Contains(t, string(data), `"tick":42`)

	out, err := execute(NewEnvelopeCommand(&RootOptions{Format: "json"}), "verify", envPath, "--type", "snapshot")
	require.NoError(t, err)
	result := decodeData(t, out)
	assert.Equal(t, protocol.TypeSnapshot, result["type"])
	assert.Equal(t, float64(42), result["tick"])
	assert.Equal(t, []any{"entities", "world"}, result["payload_keys"])
	assert.Regexp(t, `^sha256:[0-9a-f]{64}$`, result["hash"])
}

func TestEnvelope_WrapToStdoutIsCanonical(t *testing.T) {
	dir := t.TempDir()
	payloadPath := writeFile(t, dir, "delta.json", `{"changes": [], "applied_rules": ["a"]}`)

	out, err := execute(NewEnvelopeCommand(&RootOptions{Format: "text"}), "wrap", payloadPath, "--type", "delta", "--tick", "3")
	require.NoError(t, err)
	line := strings.TrimSpace(out)
	assert.True(t, strings.HasPrefix(line, `{"epoch":"epoch-0","hash":"`), line)
	assert.Contains(t, line, `"payload":{"applied_rules":["a"],"changes":[]}`)
}

func TestEnvelope_VerifyRejectsTampering(t *testing.T) {
	dir := t.TempDir()
	payloadPath := writeFile(t, dir, "world.json", snapshotPayload)
	envPath := filepath.Join(dir, "world.env.json")
	_, err := execute(NewEnvelopeCommand(&RootOptions{Format: "text"}), "wrap", payloadPath, "--out", envPath)
	require.NoError(t, err)

	data, err := os.ReadFile(envPath)
	require.NoError(t, err)
	tampered := strings.Replace(string(data), `"time":12.5`, `"time":13.5`, 1)
	require.NotEqual(t, string(data), tampered)
	writeFile(t, dir, "world.env.json", tampered)

	out, err := execute(NewEnvelopeCommand(&RootOptions{Format: "text"}), "verify", envPath)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [HASH_MISMATCH]")
}

func TestEnvelope_VerifyTypeMismatch(t *testing.T) {
	dir := t.TempDir()
	payloadPath := writeFile(t, dir, "world.json", snapshotPayload)
	envPath := filepath.Join(dir, "world.env.json")
	_, err := execute(NewEnvelopeCommand(&RootOptions{Format: "text"}), "wrap", payloadPath, "--out", envPath)
	require.NoError(t, err)

	out, err := execute(NewEnvelopeCommand(&RootOptions{Format: "text"}), "verify", envPath, "--type", "command")
	require.Error(t, err)
	assert.Contains(t, out, "TYPE_MISMATCH")
}

func TestEnvelope_WrapRejectsBadPayloads(t *testing.T) {
	dir := t.TempDir()

	t.Run("snapshot without velocity", func(t *testing.T) {
		p := writeFile(t, dir, "bad.json", `{"world":{"time":1},"entities":{"a":{"position":[0,0,0]}}}`)
		out, err := execute(NewEnvelopeCommand(&RootOptions{Format: "text"}), "wrap", p)
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Contains(t, out, "MALFORMED_PAYLOAD")
	})

	t.Run("command without events", func(t *testing.T) {
		p := writeFile(t, dir, "cmd.json", `{"issuer":"gm","authority_level":4,"system":"weather"}`)
		out, err := execute(NewEnvelopeCommand(&RootOptions{Format: "text"}), "wrap", p, "--type", "command")
		require.Error(t, err)
		assert.Contains(t, out, "MISSING_FIELD")
	})

	t.Run("unknown type", func(t *testing.T) {
		p := writeFile(t, dir, "any.json", `{}`)
		_, err := execute(NewEnvelopeCommand(&RootOptions{Format: "text"}), "wrap", p, "--type", "gossip")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})
}
