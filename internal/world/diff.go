package world

import (
	"maps"
	"slices"
)

// Change records one keyed value that differs between two states.
// Before or After is nil when the key is absent on that side.
type Change struct {
	Key    string `json:"key"`
	Before any    `json:"before"`
	After  any    `json:"after"`
}

// Delta is a structural diff sorted by key.
type Delta []Change

// Keys returns the changed keys in order.
func (d Delta) Keys() []string {
	keys := make([]string, len(d))
	for i, c := range d {
		keys[i] = c.Key
	}
	return keys
}

// Diff computes the structural difference from before to after.
func Diff(before, after State) Delta {
	var delta Delta
	ids := make(map[string]struct{}, len(before)+len(after))
	for id := range before {
		ids[id] = struct{}{}
	}
	for id := range after {
		ids[id] = struct{}{}
	}

	for _, id := range slices.Sorted(maps.Keys(ids)) {
		b, a := before[id], after[id]
		if b == nil {
			b = &Entity{}
		}
		if a == nil {
			a = &Entity{}
		}
		delta = diffMap(delta, b.Flags, a.Flags, func(k string) string { return FlagKey(id, k) })
		delta = diffMap(delta, b.Stats, a.Stats, func(k string) string { return StatKey(id, k) })
		delta = diffMap(delta, b.Inventory, a.Inventory, func(k string) string { return InventoryKey(id, k) })
		delta = diffLocation(delta, id, b.Location, a.Location)
	}

	slices.SortStableFunc(delta, func(x, y Change) int {
		switch {
		case x.Key < y.Key:
			return -1
		case x.Key > y.Key:
			return 1
		}
		return 0
	})
	return delta
}

func diffMap[V comparable](delta Delta, before, after map[string]V, key func(string) string) Delta {
	for k, bv := range before {
		av, ok := after[k]
		switch {
		case !ok:
			delta = append(delta, Change{Key: key(k), Before: bv})
		case av != bv:
			delta = append(delta, Change{Key: key(k), Before: bv, After: av})
		}
	}
	for k, av := range after {
		if _, ok := before[k]; !ok {
			delta = append(delta, Change{Key: key(k), After: av})
		}
	}
	return delta
}

func diffLocation(delta Delta, id string, before, after *string) Delta {
	switch {
	case before == nil && after == nil:
		return delta
	case before == nil:
		return append(delta, Change{Key: LocationKey(id), After: *after})
	case after == nil:
		return append(delta, Change{Key: LocationKey(id), Before: *before})
	case *before != *after:
		return append(delta, Change{Key: LocationKey(id), Before: *before, After: *after})
	}
	return delta
}
