// Package plugfile parses plugin list files.
//
// A plugin list is UTF-8 text with one plugin per line, either a bare name
// or name:version. Blank lines and #-comments are ignored.
package plugfile

import (
	"bufio"
	"os"
	"strings"

	"github.com/apex/log"
	"github.com/pkg/errors"

	"github.com/bluegreen-tools/jenkinsctl/internal/plugin"
)

// ErrEmptyInput is returned when a plugin list yields no parseable entries.
var ErrEmptyInput = errors.New("no plugins found in input file")

// Parser parses plugin list files.
type Parser struct{}

// NewParser creates a new plugin list parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse reads the plugin list at path into a SpecSet. A name that appears
// on more than one line keeps the constraint from the last line. Malformed
// lines are logged and skipped; an input with zero usable lines is
// ErrEmptyInput.
func (p *Parser) Parse(path string) (plugin.SpecSet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening plugin list")
	}
	defer file.Close()

	specs := make(plugin.SpecSet)
	lineno := 0

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		name, version, ok := splitSpec(line)
		if !ok {
			log.WithFields(log.Fields{
				"file": path,
				"line": lineno,
			}).Warnf("skipping malformed plugin line %q", line)
			continue
		}

		// Later lines override earlier ones.
		specs[name] = version
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading plugin list")
	}

	if len(specs) == 0 {
		return nil, errors.Wrapf(ErrEmptyInput, "parsing %s", path)
	}

	return specs, nil
}

// splitSpec splits a "name" or "name:version" token. The version is taken
// verbatim; its syntax is not validated.
func splitSpec(line string) (name, version string, ok bool) {
	name, version, found := strings.Cut(line, ":")
	if !found {
		if name == "" {
			return "", "", false
		}
		return name, plugin.VersionLatest, true
	}
	if name == "" || version == "" {
		return "", "", false
	}
	return name, version, true
}
