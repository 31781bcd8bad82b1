package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"
)

// Load error codes.
const (
	ErrCodeNotFound    = "E_NOT_FOUND"
	ErrCodeParse       = "E_PARSE"
	ErrCodeBuildFailed = "E_BUILD"
	ErrCodeInvalidRule = "E_INVALID_RULE"
	ErrCodeNoRules     = "E_NO_RULES"
	ErrCodeFormat      = "E_FORMAT"
)

// LoadError describes a rule file that could not be loaded.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsLoadError reports whether err is or wraps a *LoadError.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}

type yamlRuleFile struct {
	Rules []RuleSpec `yaml:"rules"`
}

// LoadFile loads rule specs from a YAML file (.yaml, .yml), a CUE file
// (.cue) or a directory of CUE files.
func LoadFile(path string) ([]RuleSpec, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: err.Error()}
	}
	if info.IsDir() {
		return LoadCUE(path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(path)
	case ".cue":
		return LoadCUE(path)
	}
	return nil, &LoadError{Code: ErrCodeFormat, Message: fmt.Sprintf("unsupported rule file %s (want .yaml, .yml or .cue)", path)}
}

// LoadYAML reads a YAML document of the form `rules: [ {id: ..., ...} ]`.
func LoadYAML(path string) ([]RuleSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: err.Error()}
	}
	return ParseYAML(data)
}

// ParseYAML parses YAML rule text. Unknown fields are rejected.
func ParseYAML(data []byte) ([]RuleSpec, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file yamlRuleFile
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, &LoadError{Code: ErrCodeParse, Message: fmt.Sprintf("parse YAML rules: %v", err)}
	}
	if len(file.Rules) == 0 {
		return nil, &LoadError{Code: ErrCodeNoRules, Message: "no rules found"}
	}
	for _, spec := range file.Rules {
		if err := spec.Validate(); err != nil {
			return nil, &LoadError{Code: ErrCodeInvalidRule, Message: err.Error()}
		}
	}
	return file.Rules, nil
}

// LoadCUE loads rules from a .cue file or from the CUE package in a
// directory. Rules live under a top-level `rule` struct keyed by id:
//
//	rule: open_door: {
//		requires: ["flag(player,\"has_key\")"]
//		effects:  ["set_flag(door,\"locked\",false)"]
//		priority: 10
//	}
//
// Rules are returned in declaration order.
func LoadCUE(path string) ([]RuleSpec, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: err.Error()}
	}

	ctx := cuecontext.New()
	var value cue.Value
	if info.IsDir() {
		instances := load.Instances([]string{"."}, &load.Config{Dir: path})
		if len(instances) == 0 {
			return nil, &LoadError{Code: ErrCodeParse, Message: "no CUE instances loaded"}
		}
		inst := instances[0]
		if inst.Err != nil {
			return nil, &LoadError{Code: ErrCodeParse, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
		}
		value = ctx.BuildInstance(inst)
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: err.Error()}
		}
		value = ctx.CompileBytes(data, cue.Filename(path))
	}
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}
	return rulesFromCUE(value)
}

// ParseCUE compiles CUE source text and extracts its rules.
func ParseCUE(src string) ([]RuleSpec, error) {
	value := cuecontext.New().CompileString(src)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}
	return rulesFromCUE(value)
}

func rulesFromCUE(value cue.Value) ([]RuleSpec, error) {
	rulesVal := value.LookupPath(cue.ParsePath("rule"))
	if !rulesVal.Exists() {
		return nil, &LoadError{Code: ErrCodeNoRules, Message: "no top-level rule struct"}
	}
	iter, err := rulesVal.Fields()
	if err != nil {
		return nil, &LoadError{Code: ErrCodeParse, Message: fmt.Sprintf("iterating rules: %v", err), Pos: rulesVal.Pos()}
	}

	var specs []RuleSpec
	for iter.Next() {
		label := iter.Selector().Unquoted()
		v := iter.Value()
		if err := v.Validate(cue.Concrete(true)); err != nil {
			return nil, &LoadError{Code: ErrCodeInvalidRule, Message: fmt.Sprintf("rule.%s: %v", label, err), Pos: v.Pos()}
		}

		var spec RuleSpec
		if err := v.Decode(&spec); err != nil {
			return nil, &LoadError{Code: ErrCodeInvalidRule, Message: fmt.Sprintf("rule.%s: %v", label, err), Pos: v.Pos()}
		}
		switch {
		case spec.ID == "":
			spec.ID = label
		case spec.ID != label:
			return nil, &LoadError{
				Code:    ErrCodeInvalidRule,
				Message: fmt.Sprintf("rule.%s: id %q does not match its label", label, spec.ID),
				Pos:     v.Pos(),
			}
		}
		if err := spec.Validate(); err != nil {
			return nil, &LoadError{Code: ErrCodeInvalidRule, Message: err.Error(), Pos: v.Pos()}
		}
		specs = append(specs, spec)
	}
	if len(specs) == 0 {
		return nil, &LoadError{Code: ErrCodeNoRules, Message: "rule struct is empty"}
	}
	return specs, nil
}
