// Package features translates the generically named request schema
// (feature1..feature5) into the ordered vector the classifier was trained on.
package features

import (
	"errors"
	"fmt"
	"strings"
)

// Canonical names of the model's input columns, in training order.
const (
	SepalLength = "sepal length (cm)"
	SepalWidth  = "sepal width (cm)"
	PetalLength = "petal length (cm)"
	PetalWidth  = "petal width (cm)"
)

var (
	// ErrSchema reports input that is well-formed but does not carry the
	// fields the model needs.
	ErrSchema = errors.New("input does not match the feature schema")
	// ErrMalformed reports a payload that could not be parsed at all.
	ErrMalformed = errors.New("malformed request payload")
)

// CanonicalNames lists the model schema in column order.
var CanonicalNames = [4]string{SepalLength, SepalWidth, PetalLength, PetalWidth}

// GenericNames lists the request schema. feature5 is accepted for
// compatibility and never reaches the model.
var GenericNames = [5]string{"feature1", "feature2", "feature3", "feature4", "feature5"}

// Vector is the request body of POST /predict.
type Vector struct {
	Feature1 float64 `json:"feature1"`
	Feature2 float64 `json:"feature2"`
	Feature3 float64 `json:"feature3"`
	Feature4 float64 `json:"feature4"`
	Feature5 float64 `json:"feature5"`
}

// Input returns the vector keyed by its generic names.
func (v Vector) Input() Input {
	return Input{
		"feature1": v.Feature1,
		"feature2": v.Feature2,
		"feature3": v.Feature3,
		"feature4": v.Feature4,
		"feature5": v.Feature5,
	}
}

// Input is a loosely keyed feature record, named either generically or canonically.
type Input map[string]float64

// ModelVector holds the four model inputs in canonical order.
type ModelVector [4]float64

// Slice returns a copy of the vector as a slice.
func (m ModelVector) Slice() []float64 {
	out := make([]float64, len(m))
	copy(out, m[:])
	return out
}

// Map converts in to the model's schema. Canonically named input passes
// through unchanged; otherwise feature1..feature4 are renamed in order.
func Map(in Input) (ModelVector, error) {
	var out ModelVector

	if hasAll(in, CanonicalNames[:]) {
		for i, name := range CanonicalNames {
			out[i] = in[name]
		}
		return out, nil
	}

	generic := GenericNames[:len(CanonicalNames)]
	if hasAll(in, generic) {
		for i, name := range generic {
			out[i] = in[name]
		}
		return out, nil
	}

	canonicalSeen := countPresent(in, CanonicalNames[:])
	genericSeen := countPresent(in, GenericNames[:])
	switch {
	case canonicalSeen == 0 && genericSeen == 0:
		return out, fmt.Errorf("%w: no recognized feature fields", ErrSchema)
	case canonicalSeen > genericSeen:
		return out, fmt.Errorf("%w: missing fields [%s]", ErrSchema, strings.Join(missing(in, CanonicalNames[:]), ", "))
	default:
		return out, fmt.Errorf("%w: missing fields [%s]", ErrSchema, strings.Join(missing(in, generic), ", "))
	}
}

func hasAll(in Input, names []string) bool {
	for _, name := range names {
		if _, ok := in[name]; !ok {
			return false
		}
	}
	return true
}

func countPresent(in Input, names []string) int {
	n := 0
	for _, name := range names {
		if _, ok := in[name]; ok {
			n++
		}
	}
	return n
}

func missing(in Input, names []string) []string {
	var out []string
	for _, name := range names {
		if _, ok := in[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}
