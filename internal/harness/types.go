package harness

import (
	"github.com/roach88/ngat/internal/rules"
	"github.com/roach88/ngat/internal/world"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation held.
	Pass bool `json:"pass"`

	// Records are the executed ticks with their timestamps zeroed.
	Records []rules.TickRecord `json:"records"`

	// Errors holds one message per failed expectation.
	Errors []string `json:"errors,omitempty"`

	// Final is the world after the last tick.
	Final world.State `json:"final"`

	// Ledger is the JSONL the ticks appended.
	Ledger []byte `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Records: []rules.TickRecord{},
		Errors:  []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
