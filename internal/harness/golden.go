package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/ngat/internal/canon"
	"github.com/roach88/ngat/internal/rules"
)

// TraceSnapshot is the golden-file form of a scenario run. Timestamps are
// left out so the trace depends only on rules and state.
type TraceSnapshot struct {
	ScenarioName string
	Records      []rules.TickRecord
}

// toCanonicalMap renders the snapshot with every list present, so empty
// ticks read as [] rather than null.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	ticks := make([]any, len(s.Records))
	for i, rec := range s.Records {
		applied := make([]any, len(rec.Applied))
		for j, id := range rec.Applied {
			applied[j] = id
		}
		blocked := make([]any, len(rec.Blocked))
		for j, b := range rec.Blocked {
			keys := make([]any, len(b.Keys))
			for k, key := range b.Keys {
				keys[k] = key
			}
			blocked[j] = map[string]any{"rule_id": b.RuleID, "keys": keys, "blocked_by": b.BlockedBy}
		}
		conflicts := make([]any, len(rec.Conflicts))
		for j, c := range rec.Conflicts {
			conflicts[j] = map[string]any{"key": c.Key, "winner": c.Winner, "loser": c.Loser}
		}
		delta := make([]any, len(rec.Delta))
		for j, c := range rec.Delta {
			delta[j] = map[string]any{"key": c.Key, "before": c.Before, "after": c.After}
		}
		tick := map[string]any{
			"tick":      rec.Tick,
			"applied":   applied,
			"blocked":   blocked,
			"conflicts": conflicts,
			"delta":     delta,
		}
		if rec.Context.Scene != "" {
			tick["scene"] = rec.Context.Scene
		}
		ticks[i] = tick
	}
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"ticks":         ticks,
	}
}

// MarshalTrace returns the canonical JSON golden content for a result.
func MarshalTrace(name string, result *Result) ([]byte, error) {
	snap := TraceSnapshot{ScenarioName: name, Records: result.Records}
	return canon.Marshal(snap.toCanonicalMap())
}

// RunWithGolden executes a scenario, fails t on unmet expectations and
// compares the trace against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	if err := result.Err(scenario.Name); err != nil {
		t.Error(err)
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result's trace against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
