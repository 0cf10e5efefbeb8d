// Package envelope normalizes arbitrary inbound payloads into the canonical
// envelope every downstream component operates on.
package envelope

import (
	"encoding/json"
	"fmt"
)

// Envelope is the canonical payload shape produced once at intake.
// Downstream components never see raw request bodies.
type Envelope struct {
	TriggerKey string         `json:"trigger_key"`
	Data       map[string]any `json:"data"`
}

// ValidationError reports a payload that could not be normalized.
type ValidationError struct {
	TriggerKey string
	Reason     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid payload for trigger %s: %s", e.TriggerKey, e.Reason)
}

// Normalize coerces a raw payload body into an Envelope. Objects pass
// through, scalars and arrays are wrapped under "value", and anything
// that is not valid JSON is rejected.
//
// This is deliberately schema-light: per-trigger schema validation, when
// it arrives, slots in here.
func Normalize(triggerKey string, raw []byte) (*Envelope, error) {
	if len(raw) == 0 {
		return &Envelope{TriggerKey: triggerKey, Data: map[string]any{}}, nil
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, &ValidationError{TriggerKey: triggerKey, Reason: err.Error()}
	}

	switch v := value.(type) {
	case map[string]any:
		return &Envelope{TriggerKey: triggerKey, Data: v}, nil
	case nil:
		return &Envelope{TriggerKey: triggerKey, Data: map[string]any{}}, nil
	default:
		return &Envelope{TriggerKey: triggerKey, Data: map[string]any{"value": v}}, nil
	}
}

// StableID returns the payload's stable identifier, if it carries one.
// Used to synthesize idempotency keys when the sender supplies no header.
func (e *Envelope) StableID() (string, bool) {
	raw, ok := e.Data["id"]
	if !ok {
		return "", false
	}

	switch v := raw.(type) {
	case string:
		if v == "" {
			return "", false
		}
		return v, true
	case float64:
		return fmt.Sprintf("%v", v), true
	default:
		return "", false
	}
}

// EncodeData returns the envelope data as a JSON string for storage.
func (e *Envelope) EncodeData() (string, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return "", fmt.Errorf("marshaling envelope data: %w", err)
	}
	return string(data), nil
}

// DecodeData parses stored envelope data back into a map.
func DecodeData(stored string) (map[string]any, error) {
	if stored == "" {
		return map[string]any{}, nil
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(stored), &data); err != nil {
		return nil, fmt.Errorf("unmarshaling envelope data: %w", err)
	}
	return data, nil
}
