// Package config loads runtime settings from a TOML file with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/roach88/ngat/internal/history"
	"github.com/roach88/ngat/internal/protocol"
)

// Edit modes.
const (
	EditMutable = "mutable"
	EditFrozen  = "frozen"
)

// Merge modes.
const (
	MergeKeyed   = "keyed"
	MergeReplace = "replace"
)

// Config is the runtime configuration.
type Config struct {
	ProtocolVersion string `env:"NGAT_PROTOCOL_VERSION"`
	Epoch           string `env:"NGAT_EPOCH"`
	LedgerPath      string `env:"NGAT_LEDGER_PATH"`
	DatabasePath    string `env:"NGAT_DB_PATH"`
	RulesPath       string `env:"NGAT_RULES_PATH"`
	HistoryMode     string `env:"NGAT_HISTORY_MODE"`
	RecordNonCanon  bool   `env:"NGAT_RECORD_NON_CANON"`
	EditMode        string `env:"NGAT_EDIT_MODE"`
	MergeMode       string `env:"NGAT_MERGE_MODE"`
	Scene           string `env:"NGAT_SCENE"`
}

// Default returns a configuration that needs no files: in-memory history,
// no tick ledger, canonical mode, mutable world.
func Default() Config {
	return Config{
		ProtocolVersion: protocol.Version,
		Epoch:           "epoch-0",
		HistoryMode:     string(history.ModeCanon),
		EditMode:        EditMutable,
		MergeMode:       MergeKeyed,
		Scene:           "default",
	}
}

// config.toml key mapping.
type fileConfig struct {
	ProtocolVersion string `toml:"protocol_version"`
	Epoch           string `toml:"epoch"`
	LedgerPath      string `toml:"ledger_path"`
	DatabasePath    string `toml:"database_path"`
	RulesPath       string `toml:"rules_path"`
	HistoryMode     string `toml:"history_mode"`
	RecordNonCanon  bool   `toml:"record_non_canon"`
	EditMode        string `toml:"edit_mode"`
	MergeMode       string `toml:"merge_mode"`
	Scene           string `toml:"scene"`
}

// Load reads path (skipped when empty) over Default, applies NGAT_*
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	return load(path, env.Options{})
}

// LoadWithEnv is Load with an explicit environment instead of the
// process environment.
func LoadWithEnv(path string, environ map[string]string) (Config, error) {
	return load(path, env.Options{Environment: environ})
}

func load(path string, opts env.Options) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := overlayFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func overlayFile(cfg *Config, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("protocol_version") {
		cfg.ProtocolVersion = strings.TrimSpace(raw.ProtocolVersion)
	}
	if meta.IsDefined("epoch") {
		cfg.Epoch = strings.TrimSpace(raw.Epoch)
	}
	if meta.IsDefined("ledger_path") {
		cfg.LedgerPath = strings.TrimSpace(raw.LedgerPath)
	}
	if meta.IsDefined("database_path") {
		cfg.DatabasePath = strings.TrimSpace(raw.DatabasePath)
	}
	if meta.IsDefined("rules_path") {
		cfg.RulesPath = strings.TrimSpace(raw.RulesPath)
	}
	if meta.IsDefined("history_mode") {
		cfg.HistoryMode = strings.TrimSpace(raw.HistoryMode)
	}
	if meta.IsDefined("record_non_canon") {
		cfg.RecordNonCanon = raw.RecordNonCanon
	}
	if meta.IsDefined("edit_mode") {
		cfg.EditMode = strings.TrimSpace(raw.EditMode)
	}
	if meta.IsDefined("merge_mode") {
		cfg.MergeMode = strings.TrimSpace(raw.MergeMode)
	}
	if meta.IsDefined("scene") {
		cfg.Scene = strings.TrimSpace(raw.Scene)
	}
	return nil
}

// Validate rejects malformed versions and unknown modes.
func (c Config) Validate() error {
	if _, _, err := protocol.ParseVersion(c.ProtocolVersion); err != nil {
		return fmt.Errorf("config protocol_version: %w", err)
	}
	if c.Epoch == "" {
		return fmt.Errorf("config epoch: must not be empty")
	}
	if _, err := history.ParseMode(c.HistoryMode); err != nil {
		return fmt.Errorf("config history_mode: %w", err)
	}
	switch c.EditMode {
	case EditMutable, EditFrozen:
	default:
		return fmt.Errorf("config edit_mode: %q is not %q or %q", c.EditMode, EditMutable, EditFrozen)
	}
	switch c.MergeMode {
	case MergeKeyed, MergeReplace:
	default:
		return fmt.Errorf("config merge_mode: %q is not %q or %q", c.MergeMode, MergeKeyed, MergeReplace)
	}
	return nil
}

// Mode is the parsed history mode. Call after Validate.
func (c Config) Mode() history.Mode {
	m, _ := history.ParseMode(c.HistoryMode)
	return m
}
