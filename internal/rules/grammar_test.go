package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ngat/internal/world"
)

func TestParsePredicate(t *testing.T) {
	tests := []struct {
		src  string
		want Predicate
		key  string
	}{
		{
			src:  `flag(player,"has_key")`,
			want: Predicate{Kind: PredFlag, Entity: "player", Name: "has_key"},
			key:  "flag.player.has_key",
		},
		{
			src:  `not flag("door", "locked")`,
			want: Predicate{Kind: PredFlag, Negate: true, Entity: "door", Name: "locked"},
			key:  "flag.door.locked",
		},
		{
			src:  `!flag(door,'open')`,
			want: Predicate{Kind: PredFlag, Negate: true, Entity: "door", Name: "open"},
			key:  "flag.door.open",
		},
		{
			src:  `stat(player,"hp") >= 10`,
			want: Predicate{Kind: PredStat, Entity: "player", Name: "hp", Op: OpGE, Number: 10},
			key:  "stat.player.hp",
		},
		{
			src:  `stat(player,"hp")<2.5`,
			want: Predicate{Kind: PredStat, Entity: "player", Name: "hp", Op: OpLT, Number: 2.5},
			key:  "stat.player.hp",
		},
		{
			src:  `location(player)=="hallway"`,
			want: Predicate{Kind: PredLocation, Entity: "player", Op: OpEQ, Text: "hallway"},
			key:  "location.player",
		},
		{
			src:  `location(player) != "cellar, east"`,
			want: Predicate{Kind: PredLocation, Entity: "player", Op: OpNE, Text: "cellar, east"},
			key:  "location.player",
		},
		{
			src:  `inventory_has(player,"torch") > 0`,
			want: Predicate{Kind: PredInventory, Entity: "player", Name: "torch", Op: OpGT, Number: 0},
			key:  "inventory.player.torch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got := ParsePredicate(tt.src)
			require.NoError(t, got.Err)
			tt.want.Source = tt.src
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.key, got.Key())
		})
	}
}

func TestParsePredicate_Malformed(t *testing.T) {
	for _, src := range []string{
		``,
		`flag(player)`,
		`flag(player,"x"`,
		`flag(player,"x) `,
		`stat(player,"hp")`,
		`stat(player,"hp") ~ 3`,
		`stat(player,"hp") > lots`,
		`location(player) > "a"`,
		`location(player) == hallway`,
		`teleport(player)`,
		`not stat(player,"hp") > 1`,
		`flag(player,"x") extra`,
		`flag(,"x")`,
		`stat(player,"hp") > NaN`,
		`stat(player,"hp") < Inf`,
		`inventory_has(player,"torch") >= -Infinity`,
	} {
		t.Run(src, func(t *testing.T) {
			p := ParsePredicate(src)
			assert.Equal(t, PredInvalid, p.Kind)
			assert.Error(t, p.Err)
			assert.Equal(t, src, p.Source)
			assert.Empty(t, p.Key())
			assert.False(t, p.Eval(world.NewProvider(nil)))
		})
	}
}

func TestParseEffect(t *testing.T) {
	tests := []struct {
		src  string
		want Effect
		key  string
	}{
		{`set_flag(door,"locked",false)`, Effect{Kind: EffSetFlag, Entity: "door", Name: "locked", Bool: false}, "flag.door.locked"},
		{`set_flag(door,"locked",true)`, Effect{Kind: EffSetFlag, Entity: "door", Name: "locked", Bool: true}, "flag.door.locked"},
		{`set_stat(player,"hp",20)`, Effect{Kind: EffSetStat, Entity: "player", Name: "hp", Number: 20}, "stat.player.hp"},
		{`change_stat(player,"hp",-2.5)`, Effect{Kind: EffChangeStat, Entity: "player", Name: "hp", Number: -2.5}, "stat.player.hp"},
		{`set_location(player,"cellar")`, Effect{Kind: EffSetLocation, Entity: "player", Text: "cellar"}, "location.player"},
		{`add_inventory(player,"torch",-1)`, Effect{Kind: EffAddInventory, Entity: "player", Name: "torch", Count: -1}, "inventory.player.torch"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got := ParseEffect(tt.src)
			require.NoError(t, got.Err)
			tt.want.Source = tt.src
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.key, got.Key())
		})
	}
}

func TestParseEffect_Malformed(t *testing.T) {
	for _, src := range []string{
		`set_flag(door,"locked")`,
		`set_flag(door,"locked",maybe)`,
		`set_stat(player,"hp",high)`,
		`set_stat(npc,"hp",NaN)`,
		`set_stat(npc,"hp",+Inf)`,
		`change_stat(npc,"hp",-infinity)`,
		`change_stat(npc,"hp",1e400)`,
		`add_inventory(player,"torch",1.5)`,
		`explode(door)`,
		`set_location(player,"cellar") now`,
		`set_location player`,
	} {
		t.Run(src, func(t *testing.T) {
			e := ParseEffect(src)
			assert.Equal(t, EffInvalid, e.Kind)
			assert.Error(t, e.Err)

			w := world.NewProvider(nil)
			assert.NoError(t, e.Apply(w))
			assert.Empty(t, w.Snapshot())
		})
	}
}

func TestPredicateEval(t *testing.T) {
	hall := "hallway"
	w := world.NewProvider(world.State{
		"player": {
			Flags:     map[string]bool{"has_key": true},
			Stats:     map[string]float64{"hp": 10},
			Location:  &hall,
			Inventory: map[string]int{"torch": 2},
		},
	})

	cases := map[string]bool{
		`flag(player,"has_key")`:          true,
		`not flag(player,"has_key")`:      false,
		`flag(player,"missing")`:          false,
		`!flag(player,"missing")`:         true,
		`stat(player,"hp") == 10`:         true,
		`stat(player,"hp") != 10`:         false,
		`stat(player,"hp") > 10`:          false,
		`stat(player,"hp") <= 10`:         true,
		`stat(ghost,"hp") == 0`:           true,
		`location(player)=="hallway"`:     true,
		`location(player)!="hallway"`:     false,
		`location(ghost)!="hallway"`:      true,
		`location(ghost)=="hallway"`:      false,
		`inventory_has(player,"torch")>1`: true,
		`inventory_has(player,"rope")>0`:  false,
	}
	for src, want := range cases {
		p := ParsePredicate(src)
		require.NoError(t, p.Err, src)
		assert.Equal(t, want, p.Eval(w), src)
	}
}

func TestEffectApply(t *testing.T) {
	w := world.NewProvider(nil)

	for _, src := range []string{
		`set_stat(player,"hp",10)`,
		`change_stat(player,"hp",-3)`,
		`set_flag(door,"locked",true)`,
		`set_location(player,"cellar")`,
		`add_inventory(player,"coin",5)`,
		`add_inventory(player,"coin",-7)`,
	} {
		require.NoError(t, ParseEffect(src).Apply(w), src)
	}

	assert.Equal(t, 7.0, w.Stat("player", "hp"))
	assert.True(t, w.Flag("door", "locked"))
	loc, ok := w.Location("player")
	assert.True(t, ok)
	assert.Equal(t, "cellar", loc)
	assert.Equal(t, 0, w.InventoryCount("player", "coin"))
}

func TestEffectApply_ChangeStatOverflow(t *testing.T) {
	w := world.NewProvider(nil)
	require.NoError(t, ParseEffect(`set_stat(npc,"hp",1.7e308)`).Apply(w))

	grow := ParseEffect(`change_stat(npc,"hp",1.7e308)`)
	require.NoError(t, grow.Err)
	err := grow.Apply(w)
	require.ErrorIs(t, err, ErrNonFinite)
	assert.Contains(t, err.Error(), "stat.npc.hp")
	assert.Equal(t, 1.7e308, w.Stat("npc", "hp"))

	require.NoError(t, ParseEffect(`change_stat(npc,"hp",-0.7e308)`).Apply(w))
	assert.InEpsilon(t, 1.0e308, w.Stat("npc", "hp"), 1e-9)
}
