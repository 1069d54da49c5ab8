package domain

import (
	"encoding/json"
	"fmt"
)

// marshalTagged encodes v as a JSON object with an extra "type" member.
func marshalTagged(kind string, v any) (json.RawMessage, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	fields["type"], _ = json.Marshal(kind)
	return json.Marshal(fields)
}

// peekType reads the "type" discriminator of a tagged JSON object.
func peekType(raw json.RawMessage) (string, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return "", err
	}
	if head.Type == "" {
		return "", fmt.Errorf("missing type discriminator")
	}
	return head.Type, nil
}

// decodeTagged unmarshals raw into target, ignoring the "type" member.
func decodeTagged(raw json.RawMessage, target any) error {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return err
	}
	delete(fields, "type")
	body, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, target)
}
