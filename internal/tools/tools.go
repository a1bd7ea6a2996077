// Package tools holds the operational tool catalog. Tools are not executed;
// each known name maps to a canned result string.
package tools

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// NotFound is the result for names missing from the catalog.
const NotFound = "Tool not found."

// Catalog maps tool names to canned results. The zero value is empty.
type Catalog struct {
	results map[string]string
}

// Default returns the built-in catalog.
func Default() Catalog {
	return Catalog{results: map[string]string{
		"restart_service": "Service PID 404 restarted.",
		"scale_pods":      "Deployment scaled to 10 replicas.",
	}}
}

// Lookup returns the canned result for name and whether the tool is known.
func (c Catalog) Lookup(name string) (string, bool) {
	r, ok := c.results[name]
	if !ok {
		return NotFound, false
	}
	return r, true
}

// Names returns the known tool names in sorted order.
func (c Catalog) Names() []string {
	return slices.Sorted(maps.Keys(c.results))
}

// catalogFile is the YAML layout:
//
//	tools:
//	  restart_service: "Service PID 404 restarted."
//	  drain_node: "Node drained."
type catalogFile struct {
	Tools map[string]string `yaml:"tools"`
}

// Load reads a YAML catalog from r and merges it over the defaults.
func Load(r io.Reader) (Catalog, error) {
	var f catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return Catalog{}, fmt.Errorf("tools: decode catalog: %w", err)
	}
	c := Default()
	for name, result := range f.Tools {
		if name == "" {
			return Catalog{}, fmt.Errorf("tools: empty tool name in catalog")
		}
		c.results[name] = result
	}
	return c, nil
}

// LoadFile reads a YAML catalog from path.
func LoadFile(path string) (Catalog, error) {
	fh, err := os.Open(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("tools: open catalog: %w", err)
	}
	defer func() { _ = fh.Close() }()
	return Load(fh)
}
