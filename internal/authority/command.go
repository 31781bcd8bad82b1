package authority

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/ngat/internal/kernel"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Level is an authority tier.
type Level int

const (
	PhysicalLaw     Level = 0
	AutonomousActor Level = 1
	SoftOverride    Level = 2
	HardOverride    Level = 3
	Debug           Level = 4
)

func (l Level) String() string {
	switch l {
	case PhysicalLaw:
		return "physical_law"
	case AutonomousActor:
		return "autonomous_actor"
	case SoftOverride:
		return "soft_override"
	case HardOverride:
		return "hard_override"
	case Debug:
		return "debug"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// Valid reports whether l is one of the five tiers.
func (l Level) Valid() bool {
	return l >= PhysicalLaw && l <= Debug
}

// Command is a request to run one kernel with a batch of events.
type Command struct {
	ID       string         `json:"command_id,omitempty"`
	Issuer   string         `json:"issuer" validate:"required"`
	Level    Level          `json:"authority_level" validate:"gte=0,lte=4"`
	System   string         `json:"system" validate:"required"`
	Events   []kernel.Event `json:"events"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Validate checks the command's required fields and tier range.
func (c Command) Validate() error {
	return validate.Struct(c)
}

// Clone returns a deep copy of c.
func (c Command) Clone() Command {
	c.Events = kernel.CloneEvents(c.Events)
	c.Metadata = kernel.CloneState(c.Metadata)
	return c
}

// Source is metadata["source"] when it is a non-empty string, else "direct".
func (c Command) Source() string {
	if s, ok := c.Metadata["source"].(string); ok && s != "" {
		return s
	}
	return "direct"
}

// LoggedCommand is one command-log entry.
type LoggedCommand struct {
	Seq       int64     `json:"seq"`
	Command   Command   `json:"command"`
	Timestamp time.Time `json:"timestamp"`
}

// Result describes one executed command.
type Result struct {
	CommandID string         `json:"command_id"`
	Seq       int64          `json:"seq"`
	Issuer    string         `json:"issuer"`
	Level     Level          `json:"authority_level"`
	System    string         `json:"system"`
	Alerts    []kernel.Alert `json:"alerts,omitempty"`

	// State is a copy of the world state after the command.
	State map[string]any `json:"state"`
}

// TickOutcome pairs a command from TickWorld with what happened to it.
type TickOutcome struct {
	Command Command
	Result  Result
	Err     error
}
