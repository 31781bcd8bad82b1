package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ngat/internal/boundary"
	"github.com/roach88/ngat/internal/canon"
	"github.com/roach88/ngat/internal/config"
	"github.com/roach88/ngat/internal/rules"
	"github.com/roach88/ngat/internal/world"
)

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// newLogger writes text logs to w: warnings and up by default, everything
// with --verbose.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

// rulesPathArg returns the positional rules path, falling back to the
// configured rules_path.
func rulesPathArg(args []string, cfg config.Config) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	if cfg.RulesPath != "" {
		return cfg.RulesPath, nil
	}
	return "", NewExitError(ExitCommandError, "no rules file given and rules_path is not configured")
}

// loadState reads a raw snapshot JSON file and projects its world view.
func loadState(path string) (world.State, error) {
	_, state, err := loadSnapshot(path)
	return state, err
}

// loadSnapshot is loadState that also returns the raw container, so
// writeState can carry its non-keyed fields through.
func loadSnapshot(path string) (boundary.Raw, world.State, error) {
	if path == "" {
		return boundary.Raw{}, world.State{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	raw, err := boundary.Parse(data)
	if err != nil {
		return nil, nil, err
	}
	state, err := boundary.WorldView(raw)
	if err != nil {
		return nil, nil, err
	}
	return raw, state, nil
}

// writeState writes state over base as canonical raw snapshot JSON. Fields
// of base outside the keyed world view are kept.
func writeState(path string, base boundary.Raw, state world.State) error {
	data, err := canon.Marshal(map[string]any(boundary.Overlay(base, state)))
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// loadEngine builds an engine over state and loads the rules at path.
// Load failures are returned as-is so callers can report the LoadError code.
func loadEngine(path string, state world.State, opts ...rules.Option) (*rules.Engine, error) {
	specs, err := rules.LoadFile(path)
	if err != nil {
		return nil, err
	}
	engine := rules.NewEngine(world.NewProvider(state), opts...)
	if err := engine.Load(specs...); err != nil {
		return nil, err
	}
	return engine, nil
}

// failRules reports a rule load failure, preferring the LoadError code.
func failRules(f *OutputFormatter, path string, err error) error {
	code := ErrCodeGeneric
	var le *rules.LoadError
	if errors.As(err, &le) {
		code = le.Code
	}
	return f.Fail(ExitCommandError, code, fmt.Sprintf("failed to load rules from %s", path), err)
}

// parseVars turns k=v pairs into tick vars. true, false and numbers are
// typed; everything else stays a string.
func parseVars(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	vars := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("var %q is not key=value", pair)
		}
		vars[k] = parseScalar(v)
	}
	return vars, nil
}

func parseScalar(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func newEngineLogger(opts *RootOptions, cmd *cobra.Command) rules.Option {
	return rules.WithLogger(newLogger(opts, cmd.ErrOrStderr()))
}
