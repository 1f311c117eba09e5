// Package hpi inspects downloaded Jenkins plugin archives.
//
// A .hpi file is a zip archive carrying its metadata in
// META-INF/MANIFEST.MF. The attributes read here are the ones the
// downloader cross-checks after a fetch: Short-Name, Plugin-Version and
// Plugin-Dependencies.
package hpi

import (
	"archive/zip"
	"bufio"
	"strings"

	"github.com/pkg/errors"
)

const manifestPath = "META-INF/MANIFEST.MF"

// Dependency is one entry of a Plugin-Dependencies attribute.
type Dependency struct {
	Name     string
	Version  string
	Optional bool
}

// Manifest holds the parsed main section of a plugin's MANIFEST.MF.
type Manifest struct {
	attrs map[string]string
}

// ShortName returns the plugin's Short-Name attribute.
func (m *Manifest) ShortName() string {
	return m.attrs["Short-Name"]
}

// PluginVersion returns the plugin's Plugin-Version attribute.
func (m *Manifest) PluginVersion() string {
	return m.attrs["Plugin-Version"]
}

// Attr returns an arbitrary manifest attribute.
func (m *Manifest) Attr(name string) string {
	return m.attrs[name]
}

// Dependencies parses the Plugin-Dependencies attribute, a comma-separated
// list of name:version entries with an optional ";resolution:=optional"
// suffix.
func (m *Manifest) Dependencies() []Dependency {
	raw := m.attrs["Plugin-Dependencies"]
	if raw == "" {
		return nil
	}

	var deps []Dependency
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		spec, attrs, _ := strings.Cut(item, ";")
		name, version, _ := strings.Cut(spec, ":")
		if name == "" {
			continue
		}
		deps = append(deps, Dependency{
			Name:     name,
			Version:  version,
			Optional: strings.Contains(attrs, "resolution:=optional"),
		})
	}
	return deps
}

// ReadManifest opens the archive at path and parses its MANIFEST.MF.
func ReadManifest(path string) (*Manifest, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening plugin archive")
	}
	defer archive.Close()

	for _, file := range archive.File {
		if file.Name != manifestPath {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, errors.Wrap(err, "opening plugin manifest")
		}
		defer rc.Close()
		return parseManifest(bufio.NewScanner(rc))
	}

	return nil, errors.Errorf("plugin archive %s has no %s", path, manifestPath)
}

// parseManifest reads the main attribute section. A line starting with a
// single space continues the previous attribute's value (the jar manifest
// 72-byte wrapping rule); the first blank line ends the main section.
func parseManifest(scanner *bufio.Scanner) (*Manifest, error) {
	attrs := make(map[string]string)
	var lastKey string

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			break
		}

		if strings.HasPrefix(line, " ") {
			if lastKey == "" {
				return nil, errors.New("manifest continuation line without attribute")
			}
			attrs[lastKey] += line[1:]
			continue
		}

		key, value, found := strings.Cut(line, ":")
		if !found {
			return nil, errors.Errorf("malformed manifest line %q", line)
		}
		lastKey = key
		attrs[key] = strings.TrimPrefix(value, " ")
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading plugin manifest")
	}

	return &Manifest{attrs: attrs}, nil
}
