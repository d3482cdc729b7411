// Package schema validates tool input/output against the restricted JSON
// Schema subset MCP requires: object/array/string/number/integer/boolean/
// null types, enum, required, and the bounds/length keywords, compiled
// through github.com/santhosh-tekuri/jsonschema/v5 rather than a
// hand-rolled validator.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator compiles and caches JSON Schema documents, then validates
// instances against them.
type Validator struct {
	mu    sync.RWMutex
	cache map[uint64]*jsonschema.Schema
}

// New creates an empty Validator. The compiled-schema cache is unbounded by
// design (schemas come from tool/prompt registration, not untrusted input)
// and is keyed by an FNV hash of the canonicalized schema document.
func New() *Validator {
	return &Validator{cache: make(map[uint64]*jsonschema.Schema)}
}

// Compile parses and compiles a JSON Schema document, returning a handle
// usable with Validate. Equivalent documents (byte-identical after
// marshaling) share one compiled schema.
func (v *Validator) Compile(doc map[string]any) (*jsonschema.Schema, error) {
	if err := CheckRestrictedSubset(doc); err != nil {
		return nil, err
	}

	canon, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("schema: canonicalize document: %w", err)
	}
	key := fnv1aHash(canon)

	v.mu.RLock()
	if cached, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	compiler := jsonschema.NewCompiler()
	const resourceName = "schema.json"
	if err := compiler.AddResource(resourceName, bytesReader(canon)); err != nil {
		return nil, fmt.Errorf("schema: add resource: %w", err)
	}
	compiled, err := compiler.Compile(resourceName)
	if err != nil {
		return nil, fmt.Errorf("schema: compile: %w", err)
	}

	v.mu.Lock()
	v.cache[key] = compiled
	v.mu.Unlock()
	return compiled, nil
}

// Validate checks instance (already decoded to Go values via encoding/json,
// i.e. float64/string/bool/map[string]any/[]any/nil) against a compiled
// schema. It returns a ValidationError describing every failing field when
// validation fails.
func (v *Validator) Validate(compiled *jsonschema.Schema, instance any) error {
	if err := compiled.Validate(instance); err != nil {
		if verr, ok := err.(*jsonschema.ValidationError); ok {
			return newValidationError(verr)
		}
		return err
	}
	return nil
}

func fnv1aHash(b []byte) uint64 {
	h := fnv.New64a()
	h.Write(b)
	return h.Sum64()
}

func bytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}
