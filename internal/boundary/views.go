package boundary

import (
	"cmp"
	"maps"
	"slices"

	"github.com/roach88/ngat/internal/world"
)

// Kinematics is the validated kinematic state of one entity.
type Kinematics struct {
	Entity   string  `json:"entity"`
	Position Vec3    `json:"position"`
	Velocity Vec3    `json:"velocity"`
	Heading  float64 `json:"heading"`
}

// Neighbor is another entity within a perception radius.
type Neighbor struct {
	Entity   string  `json:"entity"`
	Position Vec3    `json:"position"`
	Distance float64 `json:"distance"`
}

// Perception is what one entity can observe at an instant.
type Perception struct {
	Time    float64         `json:"time"`
	Self    Kinematics      `json:"self"`
	Visible []Neighbor      `json:"visible"`
	Flags   map[string]bool `json:"flags"`
}

// EntityKinematics reads position (required), velocity (default zero) and
// heading (default 0) for one entity.
func EntityKinematics(raw Raw, id string) (Kinematics, error) {
	e, err := entityOf(raw, id)
	if err != nil {
		return Kinematics{}, err
	}
	return kinematicsOf(id, e, false)
}

func kinematicsOf(id string, e map[string]any, strict bool) (Kinematics, error) {
	k := Kinematics{Entity: id}

	pos, ok := e["position"]
	if !ok {
		return Kinematics{}, violation(id, "position", "required")
	}
	if k.Position, ok = toVec3(pos); !ok {
		return Kinematics{}, violation(id, "position", "expected 3-element numeric array, got %T", pos)
	}

	vel, ok := e["velocity"]
	switch {
	case !ok && strict:
		return Kinematics{}, violation(id, "velocity", "required")
	case ok:
		if k.Velocity, ok = toVec3(vel); !ok {
			return Kinematics{}, violation(id, "velocity", "expected 3-element numeric array, got %T", vel)
		}
	}

	if h, present := e["heading"]; present {
		f, ok := toFloat(h)
		if !ok {
			return Kinematics{}, violation(id, "heading", "expected number, got %T", h)
		}
		k.Heading = f
	}
	return k, nil
}

// AllKinematics returns kinematics for every entity, sorted by id.
func AllKinematics(raw Raw) ([]Kinematics, error) {
	ids, err := EntityIDs(raw)
	if err != nil {
		return nil, err
	}
	out := make([]Kinematics, 0, len(ids))
	for _, id := range ids {
		k, err := EntityKinematics(raw, id)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

// NearbyEntities returns the entities within radius of id, nearest first.
// Ties are broken by entity id.
func NearbyEntities(raw Raw, id string, radius float64) ([]Neighbor, error) {
	if radius < 0 {
		return nil, violation(id, "radius", "must be non-negative, got %v", radius)
	}
	self, err := EntityKinematics(raw, id)
	if err != nil {
		return nil, err
	}
	all, err := AllKinematics(raw)
	if err != nil {
		return nil, err
	}

	var out []Neighbor
	for _, other := range all {
		if other.Entity == id {
			continue
		}
		d := other.Position.Sub(self.Position).Len()
		if d <= radius {
			out = append(out, Neighbor{Entity: other.Entity, Position: other.Position, Distance: d})
		}
	}
	slices.SortFunc(out, func(a, b Neighbor) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.Entity, b.Entity)
	})
	return out, nil
}

// WorldTime reads the required world.time field.
func WorldTime(raw Raw) (float64, error) {
	w, ok := raw["world"]
	if !ok {
		return 0, violation("", "world", "required")
	}
	wm, ok := toMap(w)
	if !ok {
		return 0, violation("", "world", "expected an object, got %T", w)
	}
	t, ok := wm["time"]
	if !ok {
		return 0, violation("", "world.time", "required")
	}
	f, ok := toFloat(t)
	if !ok {
		return 0, violation("", "world.time", "expected number, got %T", t)
	}
	return f, nil
}

// PerceptionFor builds the perception snapshot of id within radius.
func PerceptionFor(raw Raw, id string, radius float64) (Perception, error) {
	now, err := WorldTime(raw)
	if err != nil {
		return Perception{}, err
	}
	self, err := EntityKinematics(raw, id)
	if err != nil {
		return Perception{}, err
	}
	visible, err := NearbyEntities(raw, id, radius)
	if err != nil {
		return Perception{}, err
	}
	e, err := entityOf(raw, id)
	if err != nil {
		return Perception{}, err
	}
	flags, err := flagsOf(id, e)
	if err != nil {
		return Perception{}, err
	}
	if visible == nil {
		visible = []Neighbor{}
	}
	return Perception{Time: now, Self: self, Visible: visible, Flags: flags}, nil
}

// ValidateSnapshot checks the structure of a snapshot payload: "entities"
// is an object, "world" is an object containing a numeric "time", and every
// entity carries both position and velocity as 3-element numeric arrays.
func ValidateSnapshot(raw Raw) error {
	if _, err := WorldTime(raw); err != nil {
		return err
	}
	ids, err := EntityIDs(raw)
	if err != nil {
		return err
	}
	for _, id := range ids {
		e, err := entityOf(raw, id)
		if err != nil {
			return err
		}
		if _, err := kinematicsOf(id, e, true); err != nil {
			return err
		}
	}
	return nil
}

// WorldView projects the keyed world state (flags, stats, location,
// inventory) out of the raw container. Unrelated entity fields such as
// position are ignored.
func WorldView(raw Raw) (world.State, error) {
	ids, err := EntityIDs(raw)
	if err != nil {
		return nil, err
	}
	state := make(world.State, len(ids))
	for _, id := range ids {
		e, err := entityOf(raw, id)
		if err != nil {
			return nil, err
		}
		ent, err := entityStateOf(id, e)
		if err != nil {
			return nil, err
		}
		state[id] = ent
	}
	return state, nil
}

func entityStateOf(id string, e map[string]any) (*world.Entity, error) {
	ent := world.NewEntity()

	flags, err := flagsOf(id, e)
	if err != nil {
		return nil, err
	}
	ent.Flags = flags

	if v, ok := e["stats"]; ok {
		m, ok := toMap(v)
		if !ok {
			return nil, violation(id, "stats", "expected an object, got %T", v)
		}
		for name, sv := range m {
			f, ok := toFloat(sv)
			if !ok {
				return nil, violation(id, "stats."+name, "expected number, got %T", sv)
			}
			ent.Stats[name] = f
		}
	}

	if v, ok := e["location"]; ok && v != nil {
		loc, ok := v.(string)
		if !ok {
			return nil, violation(id, "location", "expected string, got %T", v)
		}
		ent.Location = &loc
	}

	if v, ok := e["inventory"]; ok {
		m, ok := toMap(v)
		if !ok {
			return nil, violation(id, "inventory", "expected an object, got %T", v)
		}
		for item, iv := range m {
			n, ok := toInt(iv)
			if !ok || n < 0 {
				return nil, violation(id, "inventory."+item, "expected non-negative integer, got %v", iv)
			}
			if n > 0 {
				ent.Inventory[item] = n
			}
		}
	}
	return ent, nil
}

func flagsOf(id string, e map[string]any) (map[string]bool, error) {
	flags := map[string]bool{}
	v, ok := e["flags"]
	if !ok {
		return flags, nil
	}
	m, ok := toMap(v)
	if !ok {
		return nil, violation(id, "flags", "expected an object, got %T", v)
	}
	for name, fv := range m {
		b, ok := fv.(bool)
		if !ok {
			return nil, violation(id, "flags."+name, "expected bool, got %T", fv)
		}
		flags[name] = b
	}
	return flags, nil
}

// FromState renders a typed world state back into a raw container, for
// handing to collaborators that speak the wire shape.
func FromState(state world.State) Raw {
	entities := make(map[string]any, len(state))
	for _, id := range state.EntityIDs() {
		e := state[id]
		out := map[string]any{}
		if len(e.Flags) > 0 {
			flags := make(map[string]any, len(e.Flags))
			for k, v := range e.Flags {
				flags[k] = v
			}
			out["flags"] = flags
		}
		if len(e.Stats) > 0 {
			stats := make(map[string]any, len(e.Stats))
			for k, v := range e.Stats {
				stats[k] = v
			}
			out["stats"] = stats
		}
		if e.Location != nil {
			out["location"] = *e.Location
		}
		if len(e.Inventory) > 0 {
			inv := make(map[string]any, len(e.Inventory))
			for k, v := range e.Inventory {
				inv[k] = v
			}
			out["inventory"] = inv
		}
		entities[id] = out
	}
	return Raw{"entities": entities}
}

// keyedFields are the entity fields owned by the world view.
var keyedFields = []string{"flags", "stats", "location", "inventory"}

// Overlay returns a copy of base whose keyed entity fields are replaced by
// state's. Every other field, such as world and entity kinematics, is kept
// from base. Entities present only in state are added. base is not
// modified.
func Overlay(base Raw, state world.State) Raw {
	out := make(Raw, len(base)+1)
	maps.Copy(out, base)

	prev, _ := toMap(base["entities"])
	entities := make(map[string]any, len(prev)+len(state))
	maps.Copy(entities, prev)

	keyed, _ := FromState(state)["entities"].(map[string]any)
	for id, v := range keyed {
		fields, _ := v.(map[string]any)
		old, _ := toMap(entities[id])
		merged := make(map[string]any, len(old)+len(fields))
		for k, val := range old {
			if !slices.Contains(keyedFields, k) {
				merged[k] = val
			}
		}
		maps.Copy(merged, fields)
		entities[id] = merged
	}
	out["entities"] = entities
	return out
}
