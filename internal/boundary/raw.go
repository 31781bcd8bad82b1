package boundary

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"slices"
)

// Raw is the weakly-typed incoming state container. Only this package
// indexes into it.
type Raw map[string]any

// Top-level keys that identify a raw state container.
var contaminationKeys = []string{"entities", "world"}

// Parse decodes JSON bytes into a Raw container. Numbers are kept exact
// until a view coerces them.
func Parse(data []byte) (Raw, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, violation("", "$", "invalid JSON object: %v", err)
	}
	if raw == nil {
		return nil, violation("", "$", "expected a JSON object")
	}
	return Raw(raw), nil
}

// GuardRaw fails with a *ContaminationError when v still has the shape of
// the raw container. where names the receiving code path for the log.
//
// Call it at deserialization seams that accept untyped values; code that
// takes typed views cannot receive the raw container at all.
func GuardRaw(where string, v any) error {
	m, ok := toMap(v)
	if !ok {
		return nil
	}
	var found []string
	for _, key := range contaminationKeys {
		if _, present := m[key]; present {
			found = append(found, key)
		}
	}
	if len(found) == 0 {
		return nil
	}
	slog.Error("raw state container crossed the typed boundary",
		"where", where,
		"keys", found)
	return &ContaminationError{Where: where, Keys: found}
}

// EntityIDs returns the sorted ids under "entities".
func EntityIDs(raw Raw) ([]string, error) {
	entities, err := entitiesOf(raw)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entities))
	for id := range entities {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func entitiesOf(raw Raw) (map[string]any, error) {
	v, ok := raw["entities"]
	if !ok {
		return nil, violation("", "entities", "required")
	}
	m, ok := toMap(v)
	if !ok {
		return nil, violation("", "entities", "expected an object, got %T", v)
	}
	return m, nil
}

func entityOf(raw Raw, id string) (map[string]any, error) {
	entities, err := entitiesOf(raw)
	if err != nil {
		return nil, err
	}
	v, ok := entities[id]
	if !ok {
		return nil, violation(id, "entities."+id, "unknown entity")
	}
	m, ok := toMap(v)
	if !ok {
		return nil, violation(id, "entities."+id, "expected an object, got %T", v)
	}
	return m, nil
}
