package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/ngat/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	TraceDir string
}

// ScenarioOutcome is the result of one scenario file.
type ScenarioOutcome struct {
	File   string   `json:"file"`
	Name   string   `json:"name,omitempty"`
	Pass   bool     `json:"pass"`
	Ticks  int      `json:"ticks"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult aggregates scenario outcomes.
type TestResult struct {
	Scenarios []ScenarioOutcome `json:"scenarios"`
	Passed    int               `json:"passed"`
	Failed    int               `json:"failed"`
}

// WriteText renders the result for the text format.
func (r TestResult) WriteText(w io.Writer) error {
	for _, s := range r.Scenarios {
		status := "PASS"
		if !s.Pass {
			status = "FAIL"
		}
		name := s.Name
		if name == "" {
			name = s.File
		}
		fmt.Fprintf(w, "%s %s (%d tick(s))\n", status, name, s.Ticks)
		for _, e := range s.Errors {
			fmt.Fprintf(w, "    %s\n", e)
		}
	}
	_, err := fmt.Fprintf(w, "%d passed, %d failed\n", r.Passed, r.Failed)
	return err
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenario.yaml>...",
		Short: "Run YAML scenarios",
		Long: `Run scenario files: each builds a fresh world, loads its rules, executes
its ticks and checks the expected applied and blocked rules and the final
state. Exits 1 when any scenario fails.

With --trace-dir the canonical trace of each scenario is written to
<dir>/<name>.golden, the format golden tests compare against.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTest(opts, args, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.TraceDir, "trace-dir", "", "write canonical traces to this directory")
	return cmd
}

func runTest(opts *TestOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	result := TestResult{Scenarios: []ScenarioOutcome{}}
	for _, path := range paths {
		outcome := ScenarioOutcome{File: path}
		scenario, err := harness.LoadScenario(path)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeScenario, fmt.Sprintf("failed to load scenario %s", path), err)
		}
		outcome.Name = scenario.Name
		formatter.VerboseLog("Running scenario: %s", scenario.Name)

		res, err := harness.RunWithLogger(scenario, logger)
		if err != nil {
			outcome.Errors = []string{err.Error()}
		} else {
			outcome.Pass = res.Pass
			outcome.Ticks = len(res.Records)
			outcome.Errors = res.Errors
			if opts.TraceDir != "" {
				if err := writeTrace(opts.TraceDir, scenario.Name, res); err != nil {
					return WrapExitError(ExitCommandError, "failed to write trace", err)
				}
			}
		}

		if outcome.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Scenarios = append(result.Scenarios, outcome)
	}

	if err := formatter.Success(result); err != nil {
		return err
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

func writeTrace(dir, name string, res *harness.Result) error {
	data, err := harness.MarshalTrace(name, res)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name+".golden"), data, 0o644)
}
