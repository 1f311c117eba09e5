package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bluegreen-tools/jenkinsctl/internal/plugin"
)

func TestRead_RoundTrip(t *testing.T) {
	specs := plugin.SpecSet{
		"git":                 "latest",
		"pipeline-stage-view": "2.25",
		"workflow-aggregator": "latest",
	}
	path := filepath.Join(t.TempDir(), "plugins.resolved")
	if err := NewWriter().Write(path, specs, testParams); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(got) != len(specs) {
		t.Fatalf("Read() = %v, want %v", got, specs)
	}
	for name, version := range specs {
		if got[name] != version {
			t.Errorf("Read()[%q] = %q, want %q", name, got[name], version)
		}
	}
}

func TestRead_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plugins.resolved")
	if err := os.WriteFile(path, []byte("# header\ngit latest\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(path); err == nil {
		t.Error("Read() expected error for a line without a colon")
	}
}

func TestRead_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plugins.resolved")
	if err := os.WriteFile(path, []byte("# Resolved Plugins\n# Total: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(path); err == nil {
		t.Error("Read() expected error for a manifest without plugins")
	}
}
