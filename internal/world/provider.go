package world

// Provider owns the world state. It is the single owner of State at any
// instant; callers receive copies, never the live maps.
type Provider struct {
	state State
}

// NewProvider creates a provider holding a deep copy of initial.
// A nil initial state yields an empty world.
func NewProvider(initial State) *Provider {
	if initial == nil {
		initial = State{}
	}
	return &Provider{state: initial.Clone()}
}

func (p *Provider) entity(id string) *Entity {
	e, ok := p.state[id]
	if !ok || e == nil {
		e = NewEntity()
		p.state[id] = e
	}
	return e
}

// HasEntity reports whether id has any recorded state.
func (p *Provider) HasEntity(id string) bool {
	_, ok := p.state[id]
	return ok
}

// Entities returns entity ids in sorted order.
func (p *Provider) Entities() []string {
	return p.state.EntityIDs()
}

// Flag returns the flag value; missing flags read as false.
func (p *Provider) Flag(entity, flag string) bool {
	if e, ok := p.state[entity]; ok && e != nil {
		return e.Flags[flag]
	}
	return false
}

// SetFlag sets a flag, creating the entity if needed.
func (p *Provider) SetFlag(entity, flag string, value bool) {
	p.entity(entity).Flags[flag] = value
}

// Stat returns the stat value; missing stats read as 0.
func (p *Provider) Stat(entity, stat string) float64 {
	if e, ok := p.state[entity]; ok && e != nil {
		return e.Stats[stat]
	}
	return 0
}

// SetStat sets a stat, creating the entity if needed.
func (p *Provider) SetStat(entity, stat string, value float64) {
	p.entity(entity).Stats[stat] = value
}

// Location returns the entity location and whether one is set.
func (p *Provider) Location(entity string) (string, bool) {
	if e, ok := p.state[entity]; ok && e != nil && e.Location != nil {
		return *e.Location, true
	}
	return "", false
}

// SetLocation sets the entity location.
func (p *Provider) SetLocation(entity, location string) {
	loc := location
	p.entity(entity).Location = &loc
}

// ClearLocation removes the entity location.
func (p *Provider) ClearLocation(entity string) {
	if e, ok := p.state[entity]; ok && e != nil {
		e.Location = nil
	}
}

// InventoryCount returns the item count; missing items read as 0.
func (p *Provider) InventoryCount(entity, item string) int {
	if e, ok := p.state[entity]; ok && e != nil {
		return e.Inventory[item]
	}
	return 0
}

// SetInventoryCount sets an item count. Counts at or below zero remove the item.
func (p *Provider) SetInventoryCount(entity, item string, count int) {
	e := p.entity(entity)
	if count <= 0 {
		delete(e.Inventory, item)
		return
	}
	e.Inventory[item] = count
}

// AddInventory adjusts an item count by delta and returns the new count.
// Counts never go below zero.
func (p *Provider) AddInventory(entity, item string, delta int) int {
	next := p.InventoryCount(entity, item) + delta
	if next < 0 {
		next = 0
	}
	p.SetInventoryCount(entity, item, next)
	return next
}

// Snapshot returns a deep, independent copy of the current state.
func (p *Provider) Snapshot() State {
	return p.state.Clone()
}

// Restore replaces the current state wholesale with a copy of snap.
func (p *Provider) Restore(snap State) {
	if snap == nil {
		snap = State{}
	}
	p.state = snap.Clone()
}

// Speculate runs fn between a snapshot and a guaranteed restore.
// The restore runs whether fn returns an error, succeeds or panics.
func Speculate(p *Provider, fn func() error) error {
	snap := p.Snapshot()
	defer p.Restore(snap)
	return fn()
}
