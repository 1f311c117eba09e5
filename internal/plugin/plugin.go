// Package plugin holds the leaf types shared by the pipeline stages.
package plugin

import "sort"

// VersionLatest is the sentinel constraint for plugins requested without a
// pinned version and for transitively discovered dependencies.
const VersionLatest = "latest"

// Spec is one requested plugin with its version constraint. The constraint
// is either a literal version string or VersionLatest; it is never
// interpreted beyond string equality.
type Spec struct {
	Name    string
	Version string
}

// SpecSet maps plugin name to version constraint. Each pipeline stage
// receives its own copy and never aliases another stage's map.
type SpecSet map[string]string

// Clone returns an independent copy of the set.
func (s SpecSet) Clone() SpecSet {
	out := make(SpecSet, len(s))
	for name, version := range s {
		out[name] = version
	}
	return out
}

// Names returns the plugin names sorted lexicographically.
func (s SpecSet) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sorted returns the set as Specs ordered by name.
func (s SpecSet) Sorted() []Spec {
	specs := make([]Spec, 0, len(s))
	for _, name := range s.Names() {
		specs = append(specs, Spec{Name: name, Version: s[name]})
	}
	return specs
}
