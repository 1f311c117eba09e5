// Package catalog loads the plugin catalog published by a Jenkins update
// center, caches it on disk, and answers dependency lookups for the
// resolver.
package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schema.json
var schemaJSON []byte

var catalogSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		panic(err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("catalog.schema.json", doc); err != nil {
		panic(err)
	}
	schema, err := compiler.Compile("catalog.schema.json")
	if err != nil {
		panic(err)
	}
	return schema
}

// Entry is one plugin's published metadata. Dependencies holds the names of
// required dependencies in catalog order; optional dependencies are dropped
// at parse time.
type Entry struct {
	Name         string
	Version      string
	SHA256       string
	URL          string
	Dependencies []string
}

// Catalog is an immutable point-in-time snapshot of the update center.
type Catalog struct {
	entries map[string]Entry
}

// Lookup finds a plugin in the catalog.
func (c *Catalog) Lookup(name string) (Entry, bool) {
	entry, ok := c.entries[name]
	return entry, ok
}

// Len returns the number of catalog entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}

type wireDocument struct {
	Plugins map[string]wireEntry `json:"plugins"`
}

type wireEntry struct {
	Name         string           `json:"name"`
	Version      string           `json:"version"`
	SHA256       string           `json:"sha256"`
	URL          string           `json:"url"`
	Dependencies []wireDependency `json:"dependencies"`
}

type wireDependency struct {
	Name     string `json:"name"`
	Optional bool   `json:"optional"`
}

// Parse validates and decodes a catalog document. The payload may be the
// bare JSON document or the update center's JSONP envelope
// (updateCenter.post({...});). A payload that is not well-formed against
// the catalog schema is rejected.
func Parse(payload []byte) (*Catalog, error) {
	payload = stripEnvelope(payload)

	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "decoding catalog document")
	}
	if err := catalogSchema.Validate(instance); err != nil {
		return nil, errors.Wrap(err, "validating catalog document")
	}

	var doc wireDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, errors.Wrap(err, "decoding catalog document")
	}

	entries := make(map[string]Entry, len(doc.Plugins))
	for _, we := range doc.Plugins {
		entry := Entry{
			Name:    we.Name,
			Version: we.Version,
			SHA256:  we.SHA256,
			URL:     we.URL,
		}
		for _, dep := range we.Dependencies {
			if dep.Optional {
				continue
			}
			entry.Dependencies = append(entry.Dependencies, dep.Name)
		}
		entries[entry.Name] = entry
	}

	return &Catalog{entries: entries}, nil
}

// stripEnvelope removes the JSONP wrapper the canonical update center
// serves (updateCenter.post(...);), leaving the inner JSON untouched.
func stripEnvelope(payload []byte) []byte {
	trimmed := strings.TrimSpace(string(payload))
	const prefix = "updateCenter.post("
	if !strings.HasPrefix(trimmed, prefix) {
		return payload
	}
	trimmed = strings.TrimPrefix(trimmed, prefix)
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), ";")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), ")")
	return []byte(trimmed)
}
