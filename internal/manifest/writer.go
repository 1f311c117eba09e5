// Package manifest reads and writes resolved plugin manifests.
//
// A manifest is UTF-8 text: a comment header recording provenance, then
// one name:constraint line per plugin, sorted by name so repeated runs
// against the same inputs produce identical files.
package manifest

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/bluegreen-tools/jenkinsctl/internal/plugin"
)

// ErrOutputWrite marks any I/O failure while producing the manifest.
var ErrOutputWrite = errors.New("writing resolved plugin manifest")

// WriteError wraps the underlying I/O failure. errors.Is matches it
// against ErrOutputWrite.
type WriteError struct {
	Path  string
	Cause error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("writing resolved plugin manifest %s: %v", e.Path, e.Cause)
}

func (e *WriteError) Unwrap() error { return e.Cause }

func (e *WriteError) Is(target error) bool { return target == ErrOutputWrite }

// Params records how the manifest was produced, for the provenance header.
type Params struct {
	Input      string
	Resolution bool
	MaxDepth   int
	Policy     string
}

// Writer renders and atomically writes manifests.
type Writer struct {
	now func() time.Time
}

// NewWriter creates a manifest writer.
func NewWriter() *Writer {
	return &Writer{now: time.Now}
}

// Render produces the manifest bytes without touching the filesystem.
// Dry runs use this directly.
func (w *Writer) Render(specs plugin.SpecSet, params Params) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# Resolved Plugins\n")
	fmt.Fprintf(&buf, "# Generated: %s\n", w.now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&buf, "# Total: %d\n", len(specs))
	fmt.Fprintf(&buf, "# Source: %s\n", params.Input)
	if params.Resolution {
		fmt.Fprintf(&buf, "# Resolution: enabled (max-depth=%d, policy=%s)\n",
			params.MaxDepth, params.Policy)
	} else {
		fmt.Fprintf(&buf, "# Resolution: disabled\n")
	}

	for _, spec := range specs.Sorted() {
		fmt.Fprintf(&buf, "%s:%s\n", spec.Name, spec.Version)
	}

	return buf.Bytes()
}

// Write atomically replaces the manifest at path. On any failure the temp
// file is removed and a pre-existing manifest is left untouched.
func (w *Writer) Write(path string, specs plugin.SpecSet, params Params) error {
	data := w.Render(specs, params)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &WriteError{Path: path, Cause: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return &WriteError{Path: path, Cause: err}
	}
	return nil
}
