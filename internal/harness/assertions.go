package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/ngat/internal/canon"
	"github.com/roach88/ngat/internal/rules"
	"github.com/roach88/ngat/internal/world"
)

// AssertionError is returned when a scenario does not pass.
type AssertionError struct {
	Scenario string
	Failures []string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "scenario %s failed:\n", e.Scenario)
	for _, f := range e.Failures {
		fmt.Fprintf(&buf, "  - %s\n", f)
	}
	return buf.String()
}

// Err returns an *AssertionError when r did not pass.
func (r *Result) Err(scenario string) error {
	if r.Pass {
		return nil
	}
	return &AssertionError{Scenario: scenario, Failures: slices.Clone(r.Errors)}
}

func checkTick(rec rules.TickRecord, want TickExpect) []string {
	var out []string
	if want.Applied != nil && !slices.Equal(rec.Applied, want.Applied) {
		out = append(out, fmt.Sprintf("applied %v, want %v", rec.Applied, want.Applied))
	}
	if want.Blocked != nil {
		got := make([]string, len(rec.Blocked))
		for i, b := range rec.Blocked {
			got[i] = b.RuleID
		}
		if !slices.Equal(got, want.Blocked) {
			out = append(out, fmt.Sprintf("blocked %v, want %v", got, want.Blocked))
		}
	}
	return out
}

func checkState(w *world.Provider, want StateExpect) []string {
	var out []string
	for _, id := range canon.SortedKeys(want.Flags) {
		for _, name := range canon.SortedKeys(want.Flags[id]) {
			if got := w.Flag(id, name); got != want.Flags[id][name] {
				out = append(out, fmt.Sprintf("%s = %v, want %v", world.FlagKey(id, name), got, want.Flags[id][name]))
			}
		}
	}
	for _, id := range canon.SortedKeys(want.Stats) {
		for _, name := range canon.SortedKeys(want.Stats[id]) {
			if got := w.Stat(id, name); got != want.Stats[id][name] {
				out = append(out, fmt.Sprintf("%s = %v, want %v", world.StatKey(id, name), got, want.Stats[id][name]))
			}
		}
	}
	for _, id := range canon.SortedKeys(want.Locations) {
		got, ok := w.Location(id)
		if !ok {
			out = append(out, fmt.Sprintf("%s unset, want %q", world.LocationKey(id), want.Locations[id]))
		} else if got != want.Locations[id] {
			out = append(out, fmt.Sprintf("%s = %q, want %q", world.LocationKey(id), got, want.Locations[id]))
		}
	}
	for _, id := range canon.SortedKeys(want.Inventory) {
		for _, item := range canon.SortedKeys(want.Inventory[id]) {
			if got := w.InventoryCount(id, item); got != want.Inventory[id][item] {
				out = append(out, fmt.Sprintf("%s = %d, want %d", world.InventoryKey(id, item), got, want.Inventory[id][item]))
			}
		}
	}
	return out
}
