// Package resolver computes the transitive dependency closure of a
// requested plugin set against a catalog snapshot.
package resolver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/apex/log"
	"github.com/pkg/errors"

	"github.com/bluegreen-tools/jenkinsctl/internal/catalog"
	"github.com/bluegreen-tools/jenkinsctl/internal/plugin"
)

// Policy controls what happens when a plugin is requested at two different
// constraints. Latest and Oldest both keep the first-seen constraint; no
// version comparison takes place between opaque constraint strings. Fail
// aborts the whole resolution instead.
type Policy string

const (
	PolicyLatest Policy = "latest"
	PolicyOldest Policy = "oldest"
	PolicyFail   Policy = "fail"
)

// ParsePolicy converts a policy flag value.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(s)) {
	case PolicyLatest:
		return PolicyLatest, nil
	case PolicyOldest:
		return PolicyOldest, nil
	case PolicyFail:
		return PolicyFail, nil
	}
	return "", errors.Errorf("unknown conflict policy %q (want latest, oldest or fail)", s)
}

// ConflictError reports a plugin requested at two distinct constraints
// under PolicyFail.
type ConflictError struct {
	Name        string
	Constraints []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicting constraints for plugin %q: %s",
		e.Name, strings.Join(e.Constraints, " vs "))
}

// Options configures a resolution run.
type Options struct {
	// EnableResolution toggles transitive expansion. When false the
	// resolver returns a copy of the input set without touching the
	// catalog.
	EnableResolution bool

	// MaxDepth bounds the number of BFS rounds. With MaxDepth 0 the loop
	// never runs and nothing resolves; disable resolution instead to get
	// a verbatim copy of the input.
	MaxDepth int

	// Policy picks the conflict behavior.
	Policy Policy
}

// Resolver expands a plugin set breadth-first against a catalog.
type Resolver struct {
	catalog *catalog.Catalog
	opts    Options
}

// New creates a resolver. cat may be nil, in which case resolution
// degrades to a copy of the input set.
func New(cat *catalog.Catalog, opts Options) *Resolver {
	return &Resolver{catalog: cat, opts: opts}
}

// Resolve returns the resolved plugin set. The result only ever grows over
// the run: once a plugin is recorded its constraint never changes, which
// is both the conflict-policy simplification and the cycle guard.
func (r *Resolver) Resolve(specs plugin.SpecSet) (plugin.SpecSet, error) {
	if !r.opts.EnableResolution {
		log.Debug("dependency resolution disabled, copying input specs")
		return specs.Clone(), nil
	}
	if r.catalog == nil {
		log.Warn("no plugin catalog available, skipping transitive expansion")
		return specs.Clone(), nil
	}

	resolved := make(plugin.SpecSet)
	frontier := specs.Names()

	for depth := 0; len(frontier) > 0 && depth < r.opts.MaxDepth; depth++ {
		var next []string
		staged := make(map[string]bool, len(frontier))

		for _, name := range frontier {
			constraint := constraintFor(specs, name)
			if existing, ok := resolved[name]; ok {
				if err := r.conflict(name, existing, constraint); err != nil {
					return nil, err
				}
				continue
			}
			resolved[name] = constraint

			entry, ok := r.catalog.Lookup(name)
			if !ok {
				log.WithField("plugin", name).Debug("not in catalog, no dependencies to follow")
				continue
			}
			for _, dep := range entry.Dependencies {
				if existing, ok := resolved[dep]; ok {
					if err := r.conflict(dep, existing, plugin.VersionLatest); err != nil {
						return nil, err
					}
					continue
				}
				// A discovered dependency implies "latest"; an input pin on
				// the same name is a second, distinct constraint even before
				// the pin has been folded into the resolved set.
				if pinned := constraintFor(specs, dep); pinned != plugin.VersionLatest {
					if err := r.conflict(dep, pinned, plugin.VersionLatest); err != nil {
						return nil, err
					}
				}
				if staged[dep] {
					continue
				}
				staged[dep] = true
				next = append(next, dep)
			}
		}

		sort.Strings(next)
		frontier = next
	}

	log.WithField("plugins", len(resolved)).Debug("dependency resolution complete")
	return resolved, nil
}

// conflict applies the policy to a plugin seen again at a different
// constraint. The first-seen constraint always stands unless the policy is
// Fail.
func (r *Resolver) conflict(name, existing, requested string) error {
	if existing == requested {
		return nil
	}
	if r.opts.Policy == PolicyFail {
		return &ConflictError{Name: name, Constraints: []string{existing, requested}}
	}
	log.WithFields(log.Fields{
		"plugin": name,
		"kept":   existing,
		"other":  requested,
		"policy": string(r.opts.Policy),
	}).Debug("conflicting constraints, keeping first-seen")
	return nil
}

// constraintFor returns the input constraint for an originally requested
// plugin, and "latest" for a discovered transitive dependency.
func constraintFor(specs plugin.SpecSet, name string) string {
	if v, ok := specs[name]; ok {
		return v
	}
	return plugin.VersionLatest
}
