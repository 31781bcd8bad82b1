package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ngat/internal/boundary"
	"github.com/roach88/ngat/internal/rules"
)

func TestValidate_ReportsKeySets(t *testing.T) {
	dir := t.TempDir()
	rulesPath := writeFile(t, dir, "rules.yaml", doorRules)

	out, err := execute(NewValidateCommand(&RootOptions{Format: "text"}), rulesPath)
	require.NoError(t, err)
	assert.Contains(t, out, "unlock_with_key (priority 10)")
	assert.Contains(t, out, "flag.player.has_key")
	assert.Contains(t, out, "writes: flag.door.locked")
	assert.Contains(t, out, "2 rule(s), valid")
}

func TestValidate_JSON(t *testing.T) {
	dir := t.TempDir()
	rulesPath := writeFile(t, dir, "rules.yaml", doorRules)

	out, err := execute(NewValidateCommand(&RootOptions{Format: "json"}), rulesPath)
	require.NoError(t, err)
	data := decodeData(t, out)
	assert.Equal(t, true, data["valid"])
	rs := data["rules"].([]any)
	require.Len(t, rs, 2)
	first := rs[0].(map[string]any)
	assert.Equal(t, "unlock_with_key", first["id"])
	assert.Equal(t, []any{"flag.door.locked"}, first["write_set"])
}

func TestValidate_InvalidExpressionFails(t *testing.T) {
	dir := t.TempDir()
	rulesPath := writeFile(t, dir, "rules.yaml", `rules:
  - id: broken
    requires: ['flag(player']
    effects: ['set_flag(door,"locked",false)']
`)

	out, err := execute(NewValidateCommand(&RootOptions{Format: "text"}), rulesPath)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "invalid: flag(player")
	assert.Contains(t, out, "INVALID")
}

func TestValidate_LoadErrorCode(t *testing.T) {
	dir := t.TempDir()
	rulesPath := writeFile(t, dir, "rules.yaml", "rules: []\n")

	out, err := execute(NewValidateCommand(&RootOptions{Format: "json"}), rulesPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, rules.ErrCodeNoRules)
}

func TestValidate_MissingFile(t *testing.T) {
	_, err := execute(NewValidateCommand(&RootOptions{Format: "text"}), "/nonexistent/rules.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSimulate_LeavesNothingBehind(t *testing.T) {
	dir := t.TempDir()
	rulesPath := writeFile(t, dir, "rules.yaml", doorRules)
	statePath := writeFile(t, dir, "world.json", doorState)

	out, err := execute(NewSimulateCommand(&RootOptions{Format: "json"}), rulesPath, "--state", statePath, "--tick", "7")
	require.NoError(t, err)

	data := decodeData(t, out)
	assert.Equal(t, float64(7), data["tick"])
	assert.Equal(t, []any{"unlock_with_key"}, data["would_apply"])
	blocked := data["would_block"].([]any)
	require.Len(t, blocked, 1)
	assert.Equal(t, "hallway_lockdown", blocked[0].(map[string]any)["rule_id"])
	delta := data["state_delta"].([]any)
	require.Len(t, delta, 1)
	assert.Equal(t, "flag.door.locked", delta[0].(map[string]any)["key"])

	// The state file is input only.
	after, err := os.ReadFile(statePath)
	require.NoError(t, err)
	assert.Equal(t, doorState, string(after))
}

func TestSimulate_TextAndVars(t *testing.T) {
	dir := t.TempDir()
	rulesPath := writeFile(t, dir, "rules.yaml", `rules:
  - id: close_market
    inputs: ["closing=true"]
    effects: ['set_location(player,"street")']
`)
	statePath := writeFile(t, dir, "world.json", doorState)

	out, err := execute(NewSimulateCommand(&RootOptions{Format: "text"}), rulesPath, "--state", statePath)
	require.NoError(t, err)
	assert.NotContains(t, out, "apply  close_market")

	out, err = execute(NewSimulateCommand(&RootOptions{Format: "text"}), rulesPath, "--state", statePath, "--var", "closing=true")
	require.NoError(t, err)
	assert.Contains(t, out, "apply  close_market")
	assert.Contains(t, out, "location.player: hallway -> street")
}

func TestSimulate_BadState(t *testing.T) {
	dir := t.TempDir()
	rulesPath := writeFile(t, dir, "rules.yaml", doorRules)
	statePath := writeFile(t, dir, "world.json", `{"entities":{"door":{"flags":{"locked":"yes"}}}}`)

	out, err := execute(NewSimulateCommand(&RootOptions{Format: "text"}), rulesPath, "--state", statePath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeState)
}

func TestTick_AppendsLedgerAndContinuesNumbering(t *testing.T) {
	dir := t.TempDir()
	rulesPath := writeFile(t, dir, "rules.yaml", doorRules)
	statePath := writeFile(t, dir, "world.json", doorState)
	ledgerPath := filepath.Join(dir, "ticks.jsonl")
	outState := filepath.Join(dir, "next.json")

	out, err := execute(NewTickCommand(&RootOptions{Format: "text"}),
		rulesPath, "--state", statePath, "--ledger", ledgerPath, "--ticks", "2", "--out-state", outState)
	require.NoError(t, err)
	assert.Contains(t, out, "Tick 1: applied unlock_with_key, blocked 1")
	assert.Contains(t, out, "flag.door.locked: true -> false")
	assert.Contains(t, out, "2 record(s) appended")

	recs, err := rules.ReadLedger(ledgerPath)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(1), recs[0].Tick)
	assert.Equal(t, int64(2), recs[1].Tick)
	assert.Empty(t, recs[1].Delta)

	data, err := os.ReadFile(outState)
	require.NoError(t, err)
	raw, err := boundary.Parse(data)
	require.NoError(t, err)
	state, err := boundary.WorldView(raw)
	require.NoError(t, err)
	assert.False(t, state["door"].Flags["locked"])

	_, err = execute(NewTickCommand(&RootOptions{Format: "text"}),
		rulesPath, "--state", outState, "--ledger", ledgerPath)
	require.NoError(t, err)
	recs, err = rules.ReadLedger(ledgerPath)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, int64(3), recs[2].Tick)
}

func TestTick_OutStateStaysAValidSnapshot(t *testing.T) {
	dir := t.TempDir()
	rulesPath := writeFile(t, dir, "rules.yaml", doorRules)
	statePath := writeFile(t, dir, "world.json", `{
  "world": {"time": 12.5},
  "entities": {
    "player": {"position": [0, 0, 0], "velocity": [1, 0, 0], "flags": {"has_key": true}, "location": "hallway"},
    "door": {"position": [2, 0, 0], "velocity": [0, 0, 0], "flags": {"locked": true}}
  }
}`)
	outState := filepath.Join(dir, "next.json")

	_, err := execute(NewTickCommand(&RootOptions{Format: "text"}),
		rulesPath, "--state", statePath, "--out-state", outState)
	require.NoError(t, err)

	data, err := os.ReadFile(outState)
	require.NoError(t, err)
	raw, err := boundary.Parse(data)
	require.NoError(t, err)
	require.NoError(t, boundary.ValidateSnapshot(raw))
	state, err := boundary.WorldView(raw)
	require.NoError(t, err)
	assert.False(t, state["door"].Flags["locked"])
	k, err := boundary.EntityKinematics(raw, "player")
	require.NoError(t, err)
	assert.Equal(t, boundary.Vec3{1, 0, 0}, k.Velocity)

	out, err := execute(NewEnvelopeCommand(&RootOptions{Format: "text"}), "wrap", outState, "--tick", "1")
	require.NoError(t, err)
	assert.Contains(t, out, `"world":{"time":12.5}`)
}

func TestTick_RejectsZeroTicks(t *testing.T) {
	_, err := execute(NewTickCommand(&RootOptions{Format: "text"}), "rules.yaml", "--ticks", "0")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestReplay(t *testing.T) {
	dir := t.TempDir()
	rulesPath := writeFile(t, dir, "rules.yaml", doorRules)
	statePath := writeFile(t, dir, "world.json", doorState)
	keyless := writeFile(t, dir, "keyless.json", keylessState)
	ledgerPath := filepath.Join(dir, "ticks.jsonl")

	_, err := execute(NewTickCommand(&RootOptions{Format: "text"}),
		rulesPath, "--state", statePath, "--ledger", ledgerPath, "--ticks", "3", "--scene", "hallway")
	require.NoError(t, err)

	t.Run("same start reproduces", func(t *testing.T) {
		out, err := execute(NewReplayCommand(&RootOptions{Format: "text"}),
			rulesPath, "--state", statePath, "--ledger", ledgerPath)
		require.NoError(t, err)
		assert.Contains(t, out, "Replayed 3 tick(s)")
		assert.Contains(t, out, "deterministic")
	})

	t.Run("different start diverges", func(t *testing.T) {
		out, err := execute(NewReplayCommand(&RootOptions{Format: "json"}),
			rulesPath, "--state", keyless, "--ledger", ledgerPath)
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		data := decodeData(t, out)
		assert.Equal(t, false, data["deterministic"])
		assert.Len(t, data["mismatches"], 3)
	})
}

func TestReplay_MissingLedger(t *testing.T) {
	dir := t.TempDir()
	rulesPath := writeFile(t, dir, "rules.yaml", doorRules)

	_, err := execute(NewReplayCommand(&RootOptions{Format: "text"}), rulesPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
