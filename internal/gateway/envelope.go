package gateway

import (
	"fmt"

	"github.com/roach88/ngat/internal/authority"
	"github.com/roach88/ngat/internal/kernel"
	"github.com/roach88/ngat/internal/protocol"
)

// CommandFromPayload builds a command from an unwrapped command envelope
// payload. Optional keys are command_id and metadata.
func CommandFromPayload(payload map[string]any) (authority.Command, error) {
	bad := func(field, format string, args ...any) error {
		return &protocol.ProtocolError{Code: protocol.ErrCodeMalformedPayload, Field: "payload." + field, Message: fmt.Sprintf(format, args...)}
	}

	issuer, _ := payload["issuer"].(string)
	system, _ := payload["system"].(string)
	lvl, ok := payload["authority_level"].(float64)
	if !ok {
		return authority.Command{}, bad("authority_level", "expected a number")
	}
	cmd := authority.Command{
		Issuer: issuer,
		Level:  authority.Level(int(lvl)),
		System: system,
	}
	if id, ok := payload["command_id"].(string); ok {
		cmd.ID = id
	}
	raw, ok := payload["events"].([]any)
	if !ok {
		return authority.Command{}, bad("events", "expected an array")
	}
	for i, e := range raw {
		m, ok := e.(map[string]any)
		if !ok {
			return authority.Command{}, bad(fmt.Sprintf("events[%d]", i), "expected an object, got %T", e)
		}
		cmd.Events = append(cmd.Events, kernel.Event(m))
	}
	if md, present := payload["metadata"]; present {
		m, ok := md.(map[string]any)
		if !ok {
			return authority.Command{}, bad("metadata", "expected an object, got %T", md)
		}
		cmd.Metadata = m
	}
	return cmd.Clone(), nil
}
