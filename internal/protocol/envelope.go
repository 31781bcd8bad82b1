package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/ngat/internal/boundary"
	"github.com/roach88/ngat/internal/canon"
)

const (
	// Name is the protocol identifier carried by every envelope.
	Name = "NGAT-RT"

	// Version is the protocol version this package writes.
	Version = "1.0"
)

// Envelope types.
const (
	TypeSnapshot = "snapshot"
	TypeCommand  = "command"
	TypeDelta    = "delta"
)

// Mandatory keys of a command payload.
var commandKeys = []string{"issuer", "authority_level", "system", "events"}

// Envelope is the wire wrapper.
type Envelope struct {
	Protocol string         `json:"protocol"`
	Version  string         `json:"version"`
	Tick     int64          `json:"tick"`
	Epoch    string         `json:"epoch"`
	Type     string         `json:"type"`
	Hash     string         `json:"hash,omitempty"`
	Payload  map[string]any `json:"payload"`
}

// Encode returns the canonical JSON bytes of e.
func (e Envelope) Encode() ([]byte, error) {
	return canon.Marshal(e)
}

// ParseVersion splits "MAJOR.MINOR".
func ParseVersion(v string) (major, minor int, err error) {
	majStr, minStr, ok := strings.Cut(v, ".")
	if !ok {
		return 0, 0, fmt.Errorf("version %q is not MAJOR.MINOR", v)
	}
	if major, err = strconv.Atoi(majStr); err != nil || major < 0 {
		return 0, 0, fmt.Errorf("version %q has a bad major part", v)
	}
	if minor, err = strconv.Atoi(minStr); err != nil || minor < 0 {
		return 0, 0, fmt.Errorf("version %q has a bad minor part", v)
	}
	return major, minor, nil
}

// Codec wraps and unwraps envelopes for one protocol version and epoch.
type Codec struct {
	Version string
	Epoch   string
}

// NewCodec validates version and returns a codec.
func NewCodec(version, epoch string) (Codec, error) {
	if _, _, err := ParseVersion(version); err != nil {
		return Codec{}, err
	}
	return Codec{Version: version, Epoch: epoch}, nil
}

func (c Codec) version() string {
	if c.Version == "" {
		return Version
	}
	return c.Version
}

// WrapSnapshot validates payload as a snapshot, canonicalizes it and
// wraps it with its content hash.
func (c Codec) WrapSnapshot(payload map[string]any, tick int64) (Envelope, error) {
	norm, data, err := normalize(payload)
	if err != nil {
		return Envelope{}, err
	}
	if err := boundary.ValidateSnapshot(boundary.Raw(norm)); err != nil {
		return Envelope{}, &ProtocolError{Code: ErrCodeMalformedPayload, Field: "payload", Message: err.Error(), Err: err}
	}
	return c.envelope(TypeSnapshot, tick, canon.HashBytes(data), norm), nil
}

// WrapDelta wraps a delta payload with its content hash.
func (c Codec) WrapDelta(payload map[string]any, tick int64) (Envelope, error) {
	norm, data, err := normalize(payload)
	if err != nil {
		return Envelope{}, err
	}
	return c.envelope(TypeDelta, tick, canon.HashBytes(data), norm), nil
}

// WrapCommand wraps a command payload. Commands carry no hash; the
// mandatory keys are checked instead.
func (c Codec) WrapCommand(payload map[string]any, tick int64) (Envelope, error) {
	norm, _, err := normalize(payload)
	if err != nil {
		return Envelope{}, err
	}
	if err := checkCommand(norm); err != nil {
		return Envelope{}, err
	}
	return c.envelope(TypeCommand, tick, "", norm), nil
}

func (c Codec) envelope(typ string, tick int64, hash string, payload map[string]any) Envelope {
	return Envelope{
		Protocol: Name,
		Version:  c.version(),
		Tick:     tick,
		Epoch:    c.Epoch,
		Type:     typ,
		Hash:     hash,
		Payload:  payload,
	}
}

// Unwrap verifies env and returns its payload. expected may be empty to
// accept any type.
func (c Codec) Unwrap(env Envelope, expected string) (map[string]any, error) {
	switch {
	case env.Protocol == "":
		return nil, protoErr(ErrCodeMissingField, "protocol", "required")
	case env.Version == "":
		return nil, protoErr(ErrCodeMissingField, "version", "required")
	case env.Epoch == "":
		return nil, protoErr(ErrCodeMissingField, "epoch", "required")
	case env.Type == "":
		return nil, protoErr(ErrCodeMissingField, "type", "required")
	case env.Payload == nil:
		return nil, protoErr(ErrCodeMissingField, "payload", "required")
	}

	if env.Protocol != Name {
		return nil, protoErr(ErrCodeProtocolMismatch, "protocol", "got %q, want %q", env.Protocol, Name)
	}
	gotMajor, _, err := ParseVersion(env.Version)
	if err != nil {
		return nil, &ProtocolError{Code: ErrCodeVersionMismatch, Field: "version", Message: err.Error(), Err: err}
	}
	wantMajor, _, err := ParseVersion(c.version())
	if err != nil {
		return nil, &ProtocolError{Code: ErrCodeVersionMismatch, Field: "version", Message: err.Error(), Err: err}
	}
	if gotMajor != wantMajor {
		return nil, protoErr(ErrCodeVersionMismatch, "version", "major version %d, want %d", gotMajor, wantMajor)
	}

	switch env.Type {
	case TypeSnapshot, TypeCommand, TypeDelta:
	default:
		return nil, protoErr(ErrCodeTypeMismatch, "type", "unknown type %q", env.Type)
	}
	if expected != "" && env.Type != expected {
		return nil, protoErr(ErrCodeTypeMismatch, "type", "got %q, want %q", env.Type, expected)
	}

	payload, data, err := normalize(env.Payload)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case TypeSnapshot, TypeDelta:
		if env.Hash == "" {
			return nil, protoErr(ErrCodeMissingField, "hash", "required for %s envelopes", env.Type)
		}
		if got := canon.HashBytes(data); !canon.Equal(got, env.Hash) {
			return nil, protoErr(ErrCodeHashMismatch, "hash", "payload hashes to %s, envelope says %s", got, env.Hash)
		}
		if env.Type == TypeSnapshot {
			if err := boundary.ValidateSnapshot(boundary.Raw(payload)); err != nil {
				return nil, &ProtocolError{Code: ErrCodeMalformedPayload, Field: "payload", Message: err.Error(), Err: err}
			}
		}
	case TypeCommand:
		if err := checkCommand(payload); err != nil {
			return nil, err
		}
	}
	return payload, nil
}

// Decode parses envelope JSON, checks that every required field is
// present with the right JSON type, and unwraps it.
func (c Codec) Decode(data []byte, expected string) (Envelope, map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil || raw == nil {
		return Envelope{}, nil, &ProtocolError{Code: ErrCodeMalformedPayload, Message: fmt.Sprintf("envelope is not a JSON object: %v", err), Err: err}
	}

	var env Envelope
	var err error
	if env.Protocol, err = stringField(raw, "protocol"); err != nil {
		return Envelope{}, nil, err
	}
	if env.Version, err = stringField(raw, "version"); err != nil {
		return Envelope{}, nil, err
	}
	if env.Epoch, err = stringField(raw, "epoch"); err != nil {
		return Envelope{}, nil, err
	}
	if env.Type, err = stringField(raw, "type"); err != nil {
		return Envelope{}, nil, err
	}
	tick, ok := raw["tick"]
	if !ok {
		return Envelope{}, nil, protoErr(ErrCodeMissingField, "tick", "required")
	}
	n, ok := tick.(json.Number)
	if !ok {
		return Envelope{}, nil, protoErr(ErrCodeMalformedPayload, "tick", "expected an integer, got %T", tick)
	}
	if env.Tick, err = n.Int64(); err != nil {
		return Envelope{}, nil, protoErr(ErrCodeMalformedPayload, "tick", "expected an integer, got %s", n)
	}
	if h, present := raw["hash"]; present {
		s, ok := h.(string)
		if !ok {
			return Envelope{}, nil, protoErr(ErrCodeMalformedPayload, "hash", "expected a string, got %T", h)
		}
		env.Hash = s
	}
	p, ok := raw["payload"]
	if !ok {
		return Envelope{}, nil, protoErr(ErrCodeMissingField, "payload", "required")
	}
	if env.Payload, ok = p.(map[string]any); !ok {
		return Envelope{}, nil, protoErr(ErrCodeMalformedPayload, "payload", "expected an object, got %T", p)
	}

	payload, err := c.Unwrap(env, expected)
	if err != nil {
		return Envelope{}, nil, err
	}
	env.Payload = payload
	return env, payload, nil
}

func stringField(raw map[string]any, key string) (string, error) {
	v, ok := raw[key]
	if !ok {
		return "", protoErr(ErrCodeMissingField, key, "required")
	}
	s, ok := v.(string)
	if !ok {
		return "", protoErr(ErrCodeMalformedPayload, key, "expected a string, got %T", v)
	}
	return s, nil
}

func checkCommand(payload map[string]any) error {
	for _, k := range commandKeys {
		if _, ok := payload[k]; !ok {
			return protoErr(ErrCodeMissingField, "payload."+k, "required for command envelopes")
		}
	}
	if _, ok := payload["issuer"].(string); !ok {
		return protoErr(ErrCodeMalformedPayload, "payload.issuer", "expected a string")
	}
	if _, ok := payload["system"].(string); !ok {
		return protoErr(ErrCodeMalformedPayload, "payload.system", "expected a string")
	}
	lvl, ok := payload["authority_level"].(float64)
	if !ok || lvl != float64(int(lvl)) || lvl < 0 || lvl > 4 {
		return protoErr(ErrCodeMalformedPayload, "payload.authority_level", "expected an integer 0..4")
	}
	events, ok := payload["events"].([]any)
	if !ok {
		return protoErr(ErrCodeMalformedPayload, "payload.events", "expected an array")
	}
	for i, e := range events {
		if err := boundary.GuardRaw(fmt.Sprintf("protocol.command.events[%d]", i), e); err != nil {
			return err
		}
	}
	return nil
}

// normalize converts payload to plain JSON shapes with float64 numbers
// and returns its canonical bytes.
func normalize(payload map[string]any) (map[string]any, []byte, error) {
	if payload == nil {
		return nil, nil, protoErr(ErrCodeMissingField, "payload", "required")
	}
	data, err := canon.Marshal(payload)
	if err != nil {
		return nil, nil, &ProtocolError{Code: ErrCodeMalformedPayload, Field: "payload", Message: err.Error(), Err: err}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, nil, &ProtocolError{Code: ErrCodeMalformedPayload, Field: "payload", Message: err.Error(), Err: err}
	}
	return out, data, nil
}
