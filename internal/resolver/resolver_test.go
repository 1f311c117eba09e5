package resolver

import (
	"errors"
	"fmt"
	"testing"

	"github.com/bluegreen-tools/jenkinsctl/internal/catalog"
	"github.com/bluegreen-tools/jenkinsctl/internal/plugin"
)

// buildCatalog constructs a catalog snapshot from name -> dependency names.
func buildCatalog(t *testing.T, deps map[string][]string) *catalog.Catalog {
	t.Helper()
	doc := `{"plugins": {`
	first := true
	for name, ds := range deps {
		if !first {
			doc += ","
		}
		first = false
		doc += fmt.Sprintf("%q: {\"name\": %q, \"dependencies\": [", name, name)
		for i, d := range ds {
			if i > 0 {
				doc += ","
			}
			doc += fmt.Sprintf("{\"name\": %q}", d)
		}
		doc += "]}"
	}
	doc += "}}"

	cat, err := catalog.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("building test catalog: %v", err)
	}
	return cat
}

func TestResolve_TransitiveExpansion(t *testing.T) {
	cat := buildCatalog(t, map[string][]string{
		"workflow-aggregator": {"pipeline-stage-view", "git"},
		"pipeline-stage-view": {},
		"git":                 {},
	})
	res := New(cat, Options{EnableResolution: true, MaxDepth: 3, Policy: PolicyLatest})

	resolved, err := res.Resolve(plugin.SpecSet{"workflow-aggregator": "latest"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	want := plugin.SpecSet{
		"workflow-aggregator": "latest",
		"pipeline-stage-view": "latest",
		"git":                 "latest",
	}
	if len(resolved) != len(want) {
		t.Fatalf("Resolve() = %v, want %v", resolved, want)
	}
	for name, version := range want {
		if resolved[name] != version {
			t.Errorf("resolved[%q] = %q, want %q", name, resolved[name], version)
		}
	}
}

func TestResolve_Disabled(t *testing.T) {
	cat := buildCatalog(t, map[string][]string{"a": {"b"}})
	res := New(cat, Options{EnableResolution: false, MaxDepth: 3, Policy: PolicyLatest})

	specs := plugin.SpecSet{"a": "1.0", "x": "latest"}
	resolved, err := res.Resolve(specs)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(resolved) != len(specs) {
		t.Fatalf("disabled resolution must copy the input, got %v", resolved)
	}
	if resolved["a"] != "1.0" {
		t.Errorf("resolved[a] = %q, want 1.0", resolved["a"])
	}

	// The result is a copy, not an alias.
	resolved["a"] = "mutated"
	if specs["a"] != "1.0" {
		t.Error("input specs were aliased by the result")
	}
}

func TestResolve_NilCatalogDegrades(t *testing.T) {
	res := New(nil, Options{EnableResolution: true, MaxDepth: 3, Policy: PolicyLatest})

	resolved, err := res.Resolve(plugin.SpecSet{"a": "1.0"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(resolved) != 1 || resolved["a"] != "1.0" {
		t.Errorf("Resolve() = %v, want copy of input", resolved)
	}
}

func TestResolve_CycleTerminates(t *testing.T) {
	cat := buildCatalog(t, map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
	})
	res := New(cat, Options{EnableResolution: true, MaxDepth: 10, Policy: PolicyLatest})

	resolved, err := res.Resolve(plugin.SpecSet{"a": "latest"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(resolved) != 3 {
		t.Errorf("Resolve() = %v, want a, b, c", resolved)
	}
}

func TestResolve_DepthBound(t *testing.T) {
	// Chain a -> b -> c -> d; each BFS round folds one level in.
	cat := buildCatalog(t, map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"d"},
		"d": {},
	})

	tests := []struct {
		maxDepth int
		want     int
	}{
		{0, 0}, // loop guard never admits a round
		{1, 1},
		{2, 2},
		{3, 3},
		{4, 4},
		{10, 4},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("maxDepth=%d", tt.maxDepth), func(t *testing.T) {
			res := New(cat, Options{EnableResolution: true, MaxDepth: tt.maxDepth, Policy: PolicyLatest})
			resolved, err := res.Resolve(plugin.SpecSet{"a": "latest"})
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if len(resolved) != tt.want {
				t.Errorf("|resolved| = %d, want %d (%v)", len(resolved), tt.want, resolved)
			}
		})
	}
}

func TestResolve_Monotonicity(t *testing.T) {
	cat := buildCatalog(t, map[string][]string{
		"a": {"b", "c"},
		"b": {},
		"c": {},
	})
	specs := plugin.SpecSet{"a": "latest", "unknown-plugin": "1.0"}

	res := New(cat, Options{EnableResolution: true, MaxDepth: 5, Policy: PolicyLatest})
	resolved, err := res.Resolve(specs)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(resolved) < len(specs) {
		t.Errorf("|resolved| = %d smaller than |input| = %d", len(resolved), len(specs))
	}
	if _, ok := resolved["unknown-plugin"]; !ok {
		t.Error("plugins absent from the catalog still resolve at their input constraint")
	}
}

func TestResolve_FirstWriterWins(t *testing.T) {
	// b is pinned in the input and also discovered via a; the pinned
	// constraint is seen first and stands under latest/oldest.
	cat := buildCatalog(t, map[string][]string{
		"a": {"b"},
		"b": {},
	})
	specs := plugin.SpecSet{"a": "latest", "b": "2.0"}

	for _, policy := range []Policy{PolicyLatest, PolicyOldest} {
		t.Run(string(policy), func(t *testing.T) {
			res := New(cat, Options{EnableResolution: true, MaxDepth: 5, Policy: policy})
			resolved, err := res.Resolve(specs)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if resolved["b"] != "2.0" {
				t.Errorf("resolved[b] = %q, want the first-seen constraint 2.0", resolved["b"])
			}
		})
	}
}

func TestResolve_ConflictPolicyFail(t *testing.T) {
	cat := buildCatalog(t, map[string][]string{
		"a": {"b"},
		"b": {},
	})
	specs := plugin.SpecSet{"a": "latest", "b": "2.0"}

	res := New(cat, Options{EnableResolution: true, MaxDepth: 5, Policy: PolicyFail})
	resolved, err := res.Resolve(specs)
	if err == nil {
		t.Fatalf("Resolve() = %v, want ConflictError", resolved)
	}

	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Resolve() error = %T, want *ConflictError", err)
	}
	if conflict.Name != "b" {
		t.Errorf("conflict.Name = %q, want b", conflict.Name)
	}
	if len(conflict.Constraints) != 2 {
		t.Errorf("conflict.Constraints = %v, want two entries", conflict.Constraints)
	}
	if resolved != nil {
		t.Error("aborted resolution must not return a partial set")
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"latest", PolicyLatest, false},
		{"oldest", PolicyOldest, false},
		{"fail", PolicyFail, false},
		{"FAIL", PolicyFail, false},
		{"newest", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePolicy(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParsePolicy(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
