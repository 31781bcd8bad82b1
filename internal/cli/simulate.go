package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/ngat/internal/rules"
	"github.com/roach88/ngat/internal/world"
)

// TickFlags are the tick-context flags shared by simulate and tick.
type TickFlags struct {
	State string
	Scene string
	Tick  int64
	Vars  []string
}

func (f *TickFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.State, "state", "", "raw snapshot JSON to start from (empty world when omitted)")
	cmd.Flags().StringVar(&f.Scene, "scene", "", "scene id (defaults to the configured scene)")
	cmd.Flags().Int64Var(&f.Tick, "tick", 0, "tick number (0 continues from the last tick)")
	cmd.Flags().StringArrayVar(&f.Vars, "var", nil, "tick var as key=value (repeatable)")
}

func (f *TickFlags) context(defaultScene string) (rules.TickContext, error) {
	vars, err := parseVars(f.Vars)
	if err != nil {
		return rules.TickContext{}, err
	}
	scene := f.Scene
	if scene == "" {
		scene = defaultScene
	}
	return rules.TickContext{Tick: f.Tick, Scene: scene, Vars: vars}, nil
}

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	TickFlags
}

type simulateResult struct {
	rules.Simulation
}

func (r simulateResult) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "Tick %d\n", r.Tick)
	for _, id := range r.WouldApply {
		fmt.Fprintf(w, "  apply  %s\n", id)
	}
	for _, b := range r.WouldBlock {
		fmt.Fprintf(w, "  block  %s by %s on %s\n", b.RuleID, b.BlockedBy, joinOrDash(b.Keys))
	}
	writeDelta(w, r.Delta)
	return nil
}

// writeDelta prints one line per changed key.
func writeDelta(w io.Writer, delta world.Delta) {
	for _, c := range delta {
		fmt.Fprintf(w, "  %s: %v -> %v\n", c.Key, displayValue(c.Before), displayValue(c.After))
	}
}

func displayValue(v any) any {
	if v == nil {
		return "(unset)"
	}
	return v
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate [rules]",
		Short: "Show what one tick would do without changing anything",
		Long: `Evaluate a tick against a snapshot and report the rules that would
apply, the rules that would be blocked and the resulting state delta.

Examples:
  ngat simulate rules.yaml --state world.json --scene market
  ngat simulate rules.cue --state world.json --var closing=true --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(opts, args, cmd)
		},
	}
	opts.register(cmd)
	return cmd
}

func runSimulate(opts *SimulateOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	path, err := rulesPathArg(args, cfg)
	if err != nil {
		return err
	}
	state, err := loadState(opts.State)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeState, "failed to load state", err)
	}
	tc, err := opts.context(cfg.Scene)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --var", err)
	}

	engine, err := loadEngine(path, state, newEngineLogger(opts.RootOptions, cmd))
	if err != nil {
		return failRules(formatter, path, err)
	}
	sim, err := engine.SimulateTick(tc)
	if err != nil {
		return WrapExitError(ExitFailure, "simulation failed", err)
	}
	return formatter.Success(simulateResult{sim})
}
