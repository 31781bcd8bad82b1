package gateway

import (
	"fmt"
	"slices"

	"github.com/roach88/ngat/internal/authority"
	"github.com/roach88/ngat/internal/rules"
)

// EditPolicy decides whether the world may change at all.
type EditPolicy interface {
	AllowMutation(cmd authority.Command) (bool, string)
}

// EditPolicyFunc adapts a function to EditPolicy.
type EditPolicyFunc func(cmd authority.Command) (bool, string)

func (f EditPolicyFunc) AllowMutation(cmd authority.Command) (bool, string) { return f(cmd) }

// AlwaysMutable allows every mutation.
type AlwaysMutable struct{}

func (AlwaysMutable) AllowMutation(authority.Command) (bool, string) { return true, "" }

// Frozen rejects every mutation with Reason.
type Frozen struct {
	Reason string
}

func (f Frozen) AllowMutation(authority.Command) (bool, string) {
	if f.Reason == "" {
		return false, "world is frozen"
	}
	return false, f.Reason
}

// Violation is one rule's objection to a command.
type Violation struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// RuleChecker inspects a command against the current world state.
type RuleChecker interface {
	Check(cmd authority.Command, state map[string]any) []Violation
}

// CheckerFunc adapts a function to RuleChecker.
type CheckerFunc func(cmd authority.Command, state map[string]any) []Violation

func (f CheckerFunc) Check(cmd authority.Command, state map[string]any) []Violation {
	return f(cmd, state)
}

// NoViolations never objects.
type NoViolations struct{}

func (NoViolations) Check(authority.Command, map[string]any) []Violation { return nil }

// VetoTag marks rules that RuleEngineChecker treats as vetoes.
const VetoTag = "veto"

// RuleEngineChecker vetoes a command when any rule tagged VetoTag is
// eligible for it. The command is presented to the engine as a tick
// context in Scene with vars issuer, system, authority_level and every
// string-valued metadata entry under "meta.<key>".
type RuleEngineChecker struct {
	Engine *rules.Engine
	Scene  string
}

func (c RuleEngineChecker) Check(cmd authority.Command, _ map[string]any) []Violation {
	if c.Engine == nil {
		return nil
	}
	tc := rules.TickContext{Scene: c.Scene, Vars: commandVars(cmd)}
	var out []Violation
	for _, r := range c.Engine.Rules() {
		if !slices.Contains(r.Tags, VetoTag) {
			continue
		}
		if c.Engine.IsEligible(r, tc) {
			out = append(out, Violation{Rule: r.ID, Message: fmt.Sprintf("vetoed by rule %s", r.ID)})
		}
	}
	return out
}

func commandVars(cmd authority.Command) map[string]any {
	vars := map[string]any{
		"issuer":          cmd.Issuer,
		"system":          cmd.System,
		"authority_level": int(cmd.Level),
		"source":          cmd.Source(),
	}
	for k, v := range cmd.Metadata {
		if s, ok := v.(string); ok {
			vars["meta."+k] = s
		}
	}
	return vars
}
