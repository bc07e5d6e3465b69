// Package diagnosis accumulates per-document detection results into the
// hand-off document the extraction pass consumes, and summarises coverage for
// operators.
package diagnosis

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// FileName is the conventional name of the hand-off document.
const FileName = "diagnostico_rangos.json"

// NoDate is written in place of a contract date that could not be found.
const NoDate = "No detectada"

// ErrMalformedHandoff rejects a hand-off document that cannot be trusted.
var ErrMalformedHandoff = errors.New("malformed hand-off document")

//go:embed handoff.schema.json
var handoffSchema []byte

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("handoff.schema.json", bytes.NewReader(handoffSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	return compiler.Compile("handoff.schema.json")
})

// Range is an inclusive 1-based page range.
type Range struct {
	Start int `json:"inicio"`
	End   int `json:"fin"`
}

// SectionRange pairs a section name with its range; a nil Range means not detected.
type SectionRange struct {
	Name  string
	Range *Range
}

// Sections keeps the family's section order when encoded as a JSON object.
type Sections []SectionRange

// Get returns the named section's range and whether the section is listed.
func (s Sections) Get(name string) (*Range, bool) {
	for _, sr := range s {
		if sr.Name == name {
			return sr.Range, true
		}
	}
	return nil, false
}

// Detected counts sections with a range.
func (s Sections) Detected() int {
	n := 0
	for _, sr := range s {
		if sr.Range != nil {
			n++
		}
	}
	return n
}

func (s Sections) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, sr := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(sr.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(sr.Range)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (s *Sections) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("secciones must be an object")
	}
	out := Sections{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v in secciones", tok)
		}
		var r *Range
		if err := dec.Decode(&r); err != nil {
			return fmt.Errorf("section %q: %w", name, err)
		}
		out = append(out, SectionRange{Name: name, Range: r})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*s = out
	return nil
}

// Entry is one source document in the hand-off.
type Entry struct {
	TotalPages   int      `json:"total_paginas"`
	ContractDate string   `json:"fecha_contrato"`
	DateSource   string   `json:"fecha_origen,omitempty"`
	Subtype      string   `json:"tipo,omitempty"`
	Sections     Sections `json:"secciones"`
	Error        string   `json:"error,omitempty"`
}

// Dated reports whether the entry carries a usable contract date.
func (e *Entry) Dated() bool {
	return e.ContractDate != "" && e.ContractDate != NoDate
}

// Failed reports whether detection aborted for this document.
func (e *Entry) Failed() bool { return e.Error != "" }

// Handoff maps source file names to their entries.
type Handoff map[string]*Entry

// Encode writes h as indented JSON. Keys are sorted, so equal hand-offs encode
// to identical bytes.
func Encode(w io.Writer, h Handoff) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(h); err != nil {
		return fmt.Errorf("failed to encode hand-off: %w", err)
	}
	return nil
}

// WriteFile encodes h to path through a temporary file in the same directory.
func WriteFile(path string, h Handoff) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".handoff-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := Encode(tmp, h); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move hand-off into place: %w", err)
	}
	return nil
}

// Decode reads and validates a hand-off. Any structural problem rejects the
// whole document with ErrMalformedHandoff.
func Decode(r io.Reader) (Handoff, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read hand-off: %w", err)
	}
	schema, err := compileSchema()
	if err != nil {
		return nil, fmt.Errorf("compile hand-off schema: %w", err)
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHandoff, err)
	}
	if err := schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHandoff, err)
	}
	var h Handoff
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHandoff, err)
	}
	for file, e := range h {
		if e.ContractDate == "" {
			e.ContractDate = NoDate
		}
		for _, sr := range e.Sections {
			if sr.Range != nil && sr.Range.Start > sr.Range.End {
				return nil, fmt.Errorf("%w: %s: section %q starts after it ends (%d > %d)",
					ErrMalformedHandoff, file, sr.Name, sr.Range.Start, sr.Range.End)
			}
		}
	}
	return h, nil
}

// ReadFile decodes the hand-off stored at path.
func ReadFile(path string) (Handoff, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open hand-off: %w", err)
	}
	defer f.Close()
	h, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return h, nil
}
