package rules

import (
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// RuleSpec is the declarative, textual form of a rule as written in YAML
// or CUE rule files.
type RuleSpec struct {
	ID        string   `yaml:"id" json:"id" validate:"required"`
	Tags      []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	Inputs    []string `yaml:"inputs,omitempty" json:"inputs,omitempty" validate:"dive,required"`
	Requires  []string `yaml:"requires,omitempty" json:"requires,omitempty"`
	Conflicts []string `yaml:"conflicts,omitempty" json:"conflicts,omitempty"`
	Effects   []string `yaml:"effects,omitempty" json:"effects,omitempty"`
	Priority  int      `yaml:"priority" json:"priority"`
}

// Validate checks the structural fields. Expression text is not checked
// here: malformed expressions load as invalid and degrade at evaluation.
func (s RuleSpec) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("rule %q: %w", s.ID, err)
	}
	return nil
}

// Rule is a compiled rule. Its read and write sets are fixed at compile
// time.
type Rule struct {
	ID        string
	Tags      []string
	Inputs    []string
	Requires  []Predicate
	Conflicts []Predicate
	Effects   []Effect
	Priority  int

	spec     RuleSpec
	order    int
	readSet  []string
	writeSet []string
}

// Compile tokenizes spec and derives its key sets.
func Compile(spec RuleSpec) (*Rule, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	r := &Rule{
		ID:       spec.ID,
		Tags:     slices.Clone(spec.Tags),
		Inputs:   slices.Clone(spec.Inputs),
		Priority: spec.Priority,
		spec:     cloneSpec(spec),
	}

	var reads, writes []string
	for _, src := range spec.Requires {
		p := ParsePredicate(src)
		r.Requires = append(r.Requires, p)
		if k := p.Key(); k != "" {
			reads = append(reads, k)
		}
	}
	for _, src := range spec.Conflicts {
		p := ParsePredicate(src)
		r.Conflicts = append(r.Conflicts, p)
		if k := p.Key(); k != "" {
			reads = append(reads, k)
		}
	}
	for _, src := range spec.Effects {
		e := ParseEffect(src)
		r.Effects = append(r.Effects, e)
		if k := e.Key(); k != "" {
			writes = append(writes, k)
		}
	}
	r.readSet = uniqueSorted(reads)
	r.writeSet = uniqueSorted(writes)
	return r, nil
}

// ReadSet returns a copy of the keys the rule's predicates read.
func (r *Rule) ReadSet() []string { return slices.Clone(r.readSet) }

// WriteSet returns a copy of the keys the rule's effects write.
func (r *Rule) WriteSet() []string { return slices.Clone(r.writeSet) }

// Spec returns a copy of the text the rule was compiled from.
func (r *Rule) Spec() RuleSpec { return cloneSpec(r.spec) }

// Order is the rule's position in load order, the priority tie-breaker.
func (r *Rule) Order() int { return r.order }

// Invalid returns the source text of every malformed predicate or effect.
func (r *Rule) Invalid() []string {
	var out []string
	for _, p := range slices.Concat(r.Requires, r.Conflicts) {
		if p.Kind == PredInvalid {
			out = append(out, p.Source)
		}
	}
	for _, e := range r.Effects {
		if e.Kind == EffInvalid {
			out = append(out, e.Source)
		}
	}
	return out
}

// inputSatisfied reports whether a declared input is present in ctx.
// "name" requires ctx.Vars[name]; "name=value" also requires equality,
// and "scene=value" matches ctx.Scene.
func inputSatisfied(input string, ctx TickContext) bool {
	name, want, hasValue := strings.Cut(input, "=")
	if name == "scene" && hasValue {
		return ctx.Scene == want
	}
	v, ok := ctx.Vars[name]
	if !ok {
		return false
	}
	return !hasValue || fmt.Sprint(v) == want
}

func uniqueSorted(keys []string) []string {
	out := slices.Clone(keys)
	slices.Sort(out)
	return slices.Compact(out)
}

func cloneSpec(s RuleSpec) RuleSpec {
	s.Tags = slices.Clone(s.Tags)
	s.Inputs = slices.Clone(s.Inputs)
	s.Requires = slices.Clone(s.Requires)
	s.Conflicts = slices.Clone(s.Conflicts)
	s.Effects = slices.Clone(s.Effects)
	return s
}
