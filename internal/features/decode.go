package features

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DecodeVector parses a POST /predict body. Every generic field is
// required and must be a JSON number; unknown fields are ignored.
func DecodeVector(payload []byte) (Vector, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return Vector{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return Vector{}, fmt.Errorf("%w: body must be a JSON object", ErrSchema)
	}

	values := make([]float64, len(GenericNames))
	var absent, invalid []string
	for i, name := range GenericNames {
		field, ok := raw[name]
		if !ok || bytes.Equal(bytes.TrimSpace(field), []byte("null")) {
			absent = append(absent, name)
			continue
		}
		if err := json.Unmarshal(field, &values[i]); err != nil {
			invalid = append(invalid, name)
		}
	}

	if len(absent) > 0 || len(invalid) > 0 {
		var parts []string
		if len(absent) > 0 {
			parts = append(parts, fmt.Sprintf("missing fields [%s]", strings.Join(absent, ", ")))
		}
		if len(invalid) > 0 {
			parts = append(parts, fmt.Sprintf("fields must be numbers [%s]", strings.Join(invalid, ", ")))
		}
		return Vector{}, fmt.Errorf("%w: %s", ErrSchema, strings.Join(parts, "; "))
	}

	return Vector{
		Feature1: values[0],
		Feature2: values[1],
		Feature3: values[2],
		Feature4: values[3],
		Feature5: values[4],
	}, nil
}
