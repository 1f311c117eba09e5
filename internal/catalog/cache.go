package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

const (
	cacheFileName = "update-center.json"

	// DefaultTTL is the freshness window for the cached catalog.
	DefaultTTL = time.Hour
)

// Cache is the durable snapshot of the catalog document. Alongside the
// document it keeps an xxhash64 stamp; a stamp mismatch on read means a
// torn or tampered file and the cache is treated as absent.
type Cache struct {
	dir string
	ttl time.Duration
}

// NewCache creates a catalog cache rooted at dir.
func NewCache(dir string, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{dir: dir, ttl: ttl}
}

// Path returns the location of the cached catalog document.
func (c *Cache) Path() string {
	return filepath.Join(c.dir, cacheFileName)
}

func (c *Cache) sumPath() string {
	return c.Path() + ".sum"
}

// Fresh reports whether the cached document exists, is intact, and is
// younger than the TTL.
func (c *Cache) Fresh() bool {
	info, err := os.Stat(c.Path())
	if err != nil {
		return false
	}
	if time.Since(info.ModTime()) >= c.ttl {
		return false
	}
	_, err = c.Read()
	return err == nil
}

// Exists reports whether an intact cached document is present, regardless
// of age.
func (c *Cache) Exists() bool {
	_, err := c.Read()
	return err == nil
}

// Read returns the cached document after verifying its integrity stamp.
func (c *Cache) Read() ([]byte, error) {
	data, err := os.ReadFile(c.Path())
	if err != nil {
		return nil, errors.Wrap(err, "reading catalog cache")
	}
	want, err := os.ReadFile(c.sumPath())
	if err != nil {
		return nil, errors.Wrap(err, "reading catalog cache stamp")
	}
	got := fmt.Sprintf("%016x", xxhash.Sum64(data))
	if got != string(want) {
		return nil, errors.Errorf("catalog cache stamp mismatch: have %s, want %s", got, want)
	}
	return data, nil
}

// Write atomically replaces the cached document and its stamp. Both files
// are written to temp paths and renamed so a concurrent reader never sees
// a torn document; racing writers are benign because the last complete
// rename wins.
func (c *Cache) Write(data []byte) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return errors.Wrap(err, "creating cache dir")
	}
	if err := replaceFile(c.Path(), data); err != nil {
		return errors.Wrap(err, "writing catalog cache")
	}
	stamp := fmt.Sprintf("%016x", xxhash.Sum64(data))
	if err := replaceFile(c.sumPath(), []byte(stamp)); err != nil {
		return errors.Wrap(err, "writing catalog cache stamp")
	}
	return nil
}

// replaceFile writes data to path via a temp file and rename.
func replaceFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
