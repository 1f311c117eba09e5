package manifest

import (
	"bufio"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/bluegreen-tools/jenkinsctl/internal/plugin"
)

// Read loads a previously written manifest back into a SpecSet. Comment
// and blank lines are skipped; everything else must be name:constraint.
func Read(path string) (plugin.SpecSet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening manifest")
	}
	defer file.Close()

	specs := make(plugin.SpecSet)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, version, found := strings.Cut(line, ":")
		if !found || name == "" || version == "" {
			return nil, errors.Errorf("malformed manifest line %q in %s", line, path)
		}
		specs[name] = version
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading manifest")
	}

	if len(specs) == 0 {
		return nil, errors.Errorf("manifest %s contains no plugins", path)
	}
	return specs, nil
}
