package model

import (
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is the serialization of an artifact file, chosen by extension.
type Format string

const (
	FormatGob  Format = "gob"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFor picks the codec for path: .json and .yaml/.yml are text formats,
// everything else (including the default .pkl) is gob.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatGob
	}
}

// Decode reads an artifact in the given format.
func Decode(r io.Reader, format Format) (*Artifact, error) {
	var a Artifact
	var err error
	switch format {
	case FormatJSON:
		err = json.NewDecoder(r).Decode(&a)
	case FormatYAML:
		err = yaml.NewDecoder(r).Decode(&a)
	default:
		err = gob.NewDecoder(r).Decode(&a)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s artifact: %w", format, err)
	}
	return &a, nil
}

// Encode writes a in the given format.
func Encode(w io.Writer, format Format, a *Artifact) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(a)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		if err := enc.Encode(a); err != nil {
			return err
		}
		return enc.Close()
	default:
		return gob.NewEncoder(w).Encode(a)
	}
}

// Save writes a to path atomically, creating parent directories.
func Save(path string, a *Artifact) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create model directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".model-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, FormatFor(path), a); err != nil {
		tmp.Close()
		return fmt.Errorf("encode artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ReadArtifact decodes the artifact at path.
func ReadArtifact(path string) (*Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, path)
		}
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	defer f.Close()

	a, err := Decode(f, FormatFor(path))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	return a, nil
}

// LoadFile is the default loader: it reads, decodes and validates the
// artifact at path.
func LoadFile(path string) (Classifier, error) {
	a, err := ReadArtifact(path)
	if err != nil {
		return nil, err
	}
	c, err := Build(a)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	return c, nil
}
