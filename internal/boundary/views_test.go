package boundary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ngat/internal/world"
)

const snapshotJSON = `{
	"entities": {
		"player": {
			"position": [0, 0, 0],
			"velocity": [1, 0, 0],
			"heading": 90,
			"flags": {"has_key": true},
			"stats": {"hp": 12.5},
			"location": "hallway",
			"inventory": {"key": 1, "torch": 0}
		},
		"rat": {"position": [3, 4, 0]},
		"dragon": {"position": [100, 0, 0], "velocity": [0, 0, 0]}
	},
	"world": {"time": 42.5}
}`

func mustParse(t *testing.T, data string) Raw {
	t.Helper()
	raw, err := Parse([]byte(data))
	require.NoError(t, err)
	return raw
}

func TestEntityKinematics(t *testing.T) {
	raw := mustParse(t, snapshotJSON)

	k, err := EntityKinematics(raw, "player")
	require.NoError(t, err)
	assert.Equal(t, Kinematics{Entity: "player", Position: Vec3{0, 0, 0}, Velocity: Vec3{1, 0, 0}, Heading: 90}, k)
}

func TestEntityKinematics_DefaultsVelocity(t *testing.T) {
	raw := mustParse(t, snapshotJSON)

	k, err := EntityKinematics(raw, "rat")
	require.NoError(t, err)
	assert.Equal(t, Vec3{3, 4, 0}, k.Position)
	assert.Equal(t, Vec3{}, k.Velocity)
}

func TestEntityKinematics_CoercesShapes(t *testing.T) {
	raw := Raw{"entities": map[string]any{
		"a": map[string]any{"position": []float64{1, 2, 3}, "velocity": [3]float64{4, 5, 6}},
		"b": map[string]any{"position": []int{7, 8, 9}, "velocity": []any{1, int64(2), 3.5}},
	}}

	a, err := EntityKinematics(raw, "a")
	require.NoError(t, err)
	assert.Equal(t, Vec3{1, 2, 3}, a.Position)
	assert.Equal(t, Vec3{4, 5, 6}, a.Velocity)

	b, err := EntityKinematics(raw, "b")
	require.NoError(t, err)
	assert.Equal(t, Vec3{7, 8, 9}, b.Position)
	assert.Equal(t, Vec3{1, 2, 3.5}, b.Velocity)
}

func TestEntityKinematics_Violations(t *testing.T) {
	tests := []struct {
		name   string
		entity map[string]any
		field  string
	}{
		{"missing position", map[string]any{}, "position"},
		{"short position", map[string]any{"position": []any{1, 2}}, "position"},
		{"non-numeric position", map[string]any{"position": []any{1, "x", 3}}, "position"},
		{"bad velocity", map[string]any{"position": []any{1, 2, 3}, "velocity": "fast"}, "velocity"},
		{"bad heading", map[string]any{"position": []any{1, 2, 3}, "heading": true}, "heading"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := Raw{"entities": map[string]any{"e1": tt.entity}}
			_, err := EntityKinematics(raw, "e1")
			require.Error(t, err)
			require.True(t, IsContractViolation(err))

			var cv *ContractViolation
			require.ErrorAs(t, err, &cv)
			assert.Equal(t, "e1", cv.Entity)
			assert.Equal(t, tt.field, cv.Field)
			assert.Contains(t, err.Error(), "e1")
		})
	}
}

func TestEntityKinematics_UnknownEntity(t *testing.T) {
	raw := mustParse(t, snapshotJSON)
	_, err := EntityKinematics(raw, "ghost")
	assert.True(t, IsContractViolation(err))
}

func TestMissingEntities(t *testing.T) {
	_, err := AllKinematics(Raw{"world": map[string]any{"time": 1}})
	var cv *ContractViolation
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, "entities", cv.Field)
}

func TestNearbyEntities(t *testing.T) {
	raw := mustParse(t, snapshotJSON)

	near, err := NearbyEntities(raw, "player", 10)
	require.NoError(t, err)
	require.Len(t, near, 1)
	assert.Equal(t, "rat", near[0].Entity)
	assert.InDelta(t, 5.0, near[0].Distance, 1e-9)

	far, err := NearbyEntities(raw, "player", 1000)
	require.NoError(t, err)
	assert.Equal(t, []string{"rat", "dragon"}, []string{far[0].Entity, far[1].Entity})

	_, err = NearbyEntities(raw, "player", -1)
	assert.True(t, IsContractViolation(err))
}

func TestPerceptionFor(t *testing.T) {
	raw := mustParse(t, snapshotJSON)

	p, err := PerceptionFor(raw, "player", 10)
	require.NoError(t, err)
	assert.Equal(t, 42.5, p.Time)
	assert.Equal(t, "player", p.Self.Entity)
	assert.Len(t, p.Visible, 1)
	assert.Equal(t, map[string]bool{"has_key": true}, p.Flags)

	_, err = PerceptionFor(Raw{"entities": raw["entities"]}, "player", 10)
	var cv *ContractViolation
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, "world", cv.Field)
}

func TestValidateSnapshot(t *testing.T) {
	raw := mustParse(t, snapshotJSON)

	err := ValidateSnapshot(raw)
	var cv *ContractViolation
	require.ErrorAs(t, err, &cv, "rat has no velocity")
	assert.Equal(t, "rat", cv.Entity)
	assert.Equal(t, "velocity", cv.Field)

	ok := mustParse(t, `{"entities":{"a":{"position":[1,2,3],"velocity":[0,0,0]}},"world":{"time":0}}`)
	assert.NoError(t, ValidateSnapshot(ok))

	noTime := mustParse(t, `{"entities":{},"world":{}}`)
	require.ErrorAs(t, ValidateSnapshot(noTime), &cv)
	assert.Equal(t, "world.time", cv.Field)
}

func TestWorldView(t *testing.T) {
	raw := mustParse(t, snapshotJSON)

	state, err := WorldView(raw)
	require.NoError(t, err)
	require.Contains(t, state, "player")

	player := state["player"]
	assert.Equal(t, map[string]bool{"has_key": true}, player.Flags)
	assert.Equal(t, map[string]float64{"hp": 12.5}, player.Stats)
	require.NotNil(t, player.Location)
	assert.Equal(t, "hallway", *player.Location)
	assert.Equal(t, map[string]int{"key": 1}, player.Inventory)
	assert.Nil(t, state["rat"].Location)
}

func TestWorldView_Violations(t *testing.T) {
	tests := []struct {
		name   string
		entity map[string]any
		field  string
	}{
		{"flag not bool", map[string]any{"flags": map[string]any{"locked": "yes"}}, "flags.locked"},
		{"stat not number", map[string]any{"stats": map[string]any{"hp": "lots"}}, "stats.hp"},
		{"location not string", map[string]any{"location": 5}, "location"},
		{"fractional inventory", map[string]any{"inventory": map[string]any{"gold": 1.5}}, "inventory.gold"},
		{"negative inventory", map[string]any{"inventory": map[string]any{"gold": -1}}, "inventory.gold"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := WorldView(Raw{"entities": map[string]any{"e": tt.entity}})
			var cv *ContractViolation
			require.ErrorAs(t, err, &cv)
			assert.Equal(t, tt.field, cv.Field)
		})
	}
}

func TestFromStateRoundTrip(t *testing.T) {
	raw := mustParse(t, snapshotJSON)
	state, err := WorldView(raw)
	require.NoError(t, err)

	back, err := WorldView(FromState(state))
	require.NoError(t, err)
	assert.Equal(t, state, back)
}

func TestOverlayKeepsUnkeyedFields(t *testing.T) {
	raw := mustParse(t, snapshotJSON)
	state, err := WorldView(raw)
	require.NoError(t, err)

	state["player"].Flags["has_key"] = false
	state["player"].Stats["hp"] = 3
	gate := world.NewEntity()
	gate.Flags["open"] = true
	state["gate"] = gate

	out := Overlay(raw, state)
	assert.Equal(t, raw["world"], out["world"])

	k, err := EntityKinematics(out, "player")
	require.NoError(t, err)
	assert.Equal(t, Vec3{1, 0, 0}, k.Velocity)
	assert.Equal(t, 90.0, k.Heading)

	view, err := WorldView(out)
	require.NoError(t, err)
	assert.Equal(t, state, view)

	// base is untouched.
	before, err := WorldView(raw)
	require.NoError(t, err)
	assert.True(t, before["player"].Flags["has_key"])
	_, hasGate := before["gate"]
	assert.False(t, hasGate)
}

func TestOverlayOnEmptyBase(t *testing.T) {
	state := world.State{"door": world.NewEntity()}
	state["door"].Flags["locked"] = true

	out := Overlay(Raw{}, state)
	assert.Equal(t, FromState(state), out)
}

func TestParseRejectsNonObject(t *testing.T) {
	_, err := Parse([]byte(`[1,2,3]`))
	assert.True(t, IsContractViolation(err))

	_, err = Parse([]byte(`null`))
	assert.True(t, IsContractViolation(err))
}
