package domain

import (
	"encoding/json"
	"fmt"
)

// marshalTagged serializes a union case as a flat object with a "case"
// discriminator merged in: {"case": "...", ...caseFields}.
func marshalTagged(caseName string, v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	tag, err := json.Marshal(caseName)
	if err != nil {
		return nil, err
	}
	fields["case"] = tag
	return json.Marshal(fields)
}

// taggedCase extracts the "case" discriminator from a serialized union.
func taggedCase(data []byte) (string, error) {
	var env struct {
		Case string `json:"case"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return "", err
	}
	if env.Case == "" {
		return "", fmt.Errorf("%w: missing case discriminator", ErrInvalidInput)
	}
	return env.Case, nil
}
