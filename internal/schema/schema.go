// Package schema validates inbound JSON payloads against embedded JSON Schemas before they are
// decoded into engine types.
package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const baseURL = "https://basismind.local/schemas/"

// Schema names.
const (
	Inputs          = "inputs"
	Book            = "book"
	DecisionRequest = "decision_request"
	MarketRecord    = "market_record"
)

//go:embed schemas/*.schema.json
var files embed.FS

var (
	once     sync.Once
	compiled map[string]*jsonschema.Schema
	loadErr  error
)

func load() {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	names := []string{Inputs, Book, DecisionRequest, MarketRecord}
	for _, n := range names {
		raw, err := files.ReadFile("schemas/" + n + ".schema.json")
		if err != nil {
			loadErr = fmt.Errorf("schema %s: %w", n, err)
			return
		}
		if err := c.AddResource(baseURL+n+".schema.json", bytes.NewReader(raw)); err != nil {
			loadErr = fmt.Errorf("schema %s load failed: %w", n, err)
			return
		}
	}
	compiled = make(map[string]*jsonschema.Schema, len(names))
	for _, n := range names {
		s, err := c.Compile(baseURL + n + ".schema.json")
		if err != nil {
			loadErr = fmt.Errorf("schema %s compile failed: %w", n, err)
			return
		}
		compiled[n] = s
	}
}

// ValidationError lists the schema violations of a payload.
type ValidationError struct {
	Schema string
	Causes []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s payload invalid: %v", e.Schema, e.Causes)
}

// Validate checks raw JSON against the named schema.
func Validate(name string, raw []byte) error {
	once.Do(load)
	if loadErr != nil {
		return loadErr
	}
	s, ok := compiled[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return &ValidationError{Schema: name, Causes: []string{"malformed JSON: " + err.Error()}}
	}
	if err := s.Validate(v); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return &ValidationError{Schema: name, Causes: leafCauses(ve)}
		}
		return err
	}
	return nil
}

func leafCauses(ve *jsonschema.ValidationError) []string {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return []string{loc + ": " + ve.Message}
	}
	var out []string
	for _, c := range ve.Causes {
		out = append(out, leafCauses(c)...)
	}
	return out
}
