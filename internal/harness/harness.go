package harness

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/ngat/internal/rules"
	"github.com/roach88/ngat/internal/world"
)

// Run executes a scenario on a fresh world and returns the result.
//
// Execution flow:
//  1. Build the world from the scenario state
//  2. Load inline rules, then the rules file
//  3. Execute each tick, checking its applied and blocked rules
//  4. Check the final world
//
// An error is returned only when the scenario cannot run at all; failed
// expectations are reported in the result.
func Run(s *Scenario) (*Result, error) {
	return run(s, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunWithLogger is Run with engine logging sent to logger.
func RunWithLogger(s *Scenario, logger *slog.Logger) (*Result, error) {
	return run(s, logger)
}

func run(s *Scenario, logger *slog.Logger) (*Result, error) {
	var ledger bytes.Buffer
	writer := rules.NewLedgerWriter(&ledger)

	eng := rules.NewEngine(world.NewProvider(s.State),
		rules.WithLogger(logger),
		rules.WithNow(func() time.Time { return time.Time{} }),
		rules.WithLedger(writer),
	)

	specs := append([]rules.RuleSpec(nil), s.Rules...)
	if s.RulesFile != "" {
		fromFile, err := rules.LoadFile(s.RulesFile)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
		}
		specs = append(specs, fromFile...)
	}
	if err := eng.Load(specs...); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}

	result := NewResult()
	for i, step := range s.Ticks {
		rec, err := eng.ExecuteTick(rules.TickContext{Tick: step.Tick, Scene: step.Scene, Vars: step.Vars})
		if err != nil {
			return nil, fmt.Errorf("scenario %s: ticks[%d]: %w", s.Name, i, err)
		}
		result.Records = append(result.Records, rec)
		if step.Expect != nil {
			for _, msg := range checkTick(rec, *step.Expect) {
				result.AddError(fmt.Sprintf("tick %d: %s", rec.Tick, msg))
			}
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	result.Ledger = ledger.Bytes()
	result.Final = eng.World().Snapshot()

	if s.Expect != nil {
		for _, msg := range checkState(eng.World(), *s.Expect) {
			result.AddError(msg)
		}
	}
	return result, nil
}
