package world

import (
	"maps"
	"slices"
	"strings"
)

// Entity is the keyed state of one entity.
type Entity struct {
	Flags     map[string]bool    `json:"flags,omitempty" yaml:"flags,omitempty"`
	Stats     map[string]float64 `json:"stats,omitempty" yaml:"stats,omitempty"`
	Location  *string            `json:"location,omitempty" yaml:"location,omitempty"`
	Inventory map[string]int     `json:"inventory,omitempty" yaml:"inventory,omitempty"`
}

// NewEntity returns an entity with all maps allocated.
func NewEntity() *Entity {
	return &Entity{
		Flags:     map[string]bool{},
		Stats:     map[string]float64{},
		Inventory: map[string]int{},
	}
}

// Clone returns a deep, independent copy of e.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	c := &Entity{
		Flags:     maps.Clone(e.Flags),
		Stats:     maps.Clone(e.Stats),
		Inventory: maps.Clone(e.Inventory),
	}
	if c.Flags == nil {
		c.Flags = map[string]bool{}
	}
	if c.Stats == nil {
		c.Stats = map[string]float64{}
	}
	if c.Inventory == nil {
		c.Inventory = map[string]int{}
	}
	if e.Location != nil {
		loc := *e.Location
		c.Location = &loc
	}
	return c
}

// State maps entity id to entity state.
type State map[string]*Entity

// Clone returns a deep, independent copy of s.
func (s State) Clone() State {
	out := make(State, len(s))
	for id, e := range s {
		if e == nil {
			continue
		}
		out[id] = e.Clone()
	}
	return out
}

// EntityIDs returns entity ids in sorted order.
func (s State) EntityIDs() []string {
	return slices.Sorted(maps.Keys(s))
}

// Equal reports whether two states hold the same keyed values.
// Empty maps and missing entities compare equal to absent ones.
func Equal(a, b State) bool {
	return len(Diff(a, b)) == 0
}

// Key constructors for the dotted read/write keys.

// FlagKey returns "flag.<entity>.<flag>".
func FlagKey(entity, flag string) string { return "flag." + entity + "." + flag }

// StatKey returns "stat.<entity>.<stat>".
func StatKey(entity, stat string) string { return "stat." + entity + "." + stat }

// LocationKey returns "location.<entity>".
func LocationKey(entity string) string { return "location." + entity }

// InventoryKey returns "inventory.<entity>.<item>".
func InventoryKey(entity, item string) string { return "inventory." + entity + "." + item }

// KeyKind returns the leading segment of a dotted key ("flag", "stat", ...).
func KeyKind(key string) string {
	kind, _, _ := strings.Cut(key, ".")
	return kind
}
