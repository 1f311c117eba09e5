package catalog

import (
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/pkg/errors"
)

const catalogPath = "update-center.json"

var (
	// ErrCatalogUnavailable is returned when every mirror has been
	// exhausted and no cached copy exists to fall back on.
	ErrCatalogUnavailable = errors.New("plugin catalog unavailable from all mirrors")

	// ErrOfflineCacheMiss is returned in offline mode when no cached
	// catalog exists.
	ErrOfflineCacheMiss = errors.New("offline mode requested but no cached catalog exists")
)

// Options configures a Fetcher.
type Options struct {
	Mirrors        []string
	Retries        int           // attempts per mirror
	RetryDelay     time.Duration // fixed delay between attempts, no backoff
	DialTimeout    time.Duration
	RequestTimeout time.Duration
	Offline        bool
}

func (o *Options) withDefaults() {
	if o.Retries <= 0 {
		o.Retries = 5
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = 0
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 30 * time.Second
	}
}

// Fetcher retrieves the catalog, preferring the local cache while it is
// fresh and falling back across the mirror list otherwise.
type Fetcher struct {
	cache  *Cache
	opts   Options
	client *http.Client
}

// NewFetcher creates a catalog fetcher backed by cache.
func NewFetcher(cache *Cache, opts Options) *Fetcher {
	opts.withDefaults()
	return &Fetcher{
		cache: cache,
		opts:  opts,
		client: &http.Client{
			Timeout: opts.RequestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: opts.DialTimeout}).DialContext,
			},
		},
	}
}

// Load returns a validated catalog. Order of preference: intact fresh
// cache, then each mirror in turn, then a stale cache with a warning. In
// offline mode no network access happens at all.
func (f *Fetcher) Load() (*Catalog, error) {
	if f.opts.Offline {
		data, err := f.cache.Read()
		if err != nil {
			return nil, errors.Wrap(ErrOfflineCacheMiss, f.cache.Path())
		}
		return Parse(data)
	}

	if f.cache.Fresh() {
		data, err := f.cache.Read()
		if err == nil {
			cat, perr := Parse(data)
			if perr == nil {
				log.WithField("cache", f.cache.Path()).Debug("using fresh catalog cache")
				return cat, nil
			}
			log.WithError(perr).Warn("cached catalog is unparseable, refetching")
		}
	}

	if cat := f.fetchMirrors(); cat != nil {
		return cat, nil
	}

	// Every mirror failed; a stale copy beats total failure.
	if data, err := f.cache.Read(); err == nil {
		if cat, perr := Parse(data); perr == nil {
			log.WithField("cache", f.cache.Path()).
				Warn("all mirrors failed, proceeding with stale catalog cache")
			return cat, nil
		}
	}

	return nil, ErrCatalogUnavailable
}

// fetchMirrors walks the mirror list and returns the first validated
// catalog, caching it on the way. A payload that downloads but fails
// validation moves straight on to the next mirror.
func (f *Fetcher) fetchMirrors() *Catalog {
	for _, mirror := range f.opts.Mirrors {
		payload, err := f.fetchMirror(mirror)
		if err != nil {
			log.WithError(err).WithField("mirror", mirror).Warn("mirror exhausted")
			continue
		}

		cat, err := Parse(payload)
		if err != nil {
			log.WithError(err).WithField("mirror", mirror).
				Warn("mirror served an invalid catalog, trying next mirror")
			continue
		}

		if err := f.cache.Write(payload); err != nil {
			log.WithError(err).Warn("failed to update catalog cache")
		}
		log.WithFields(log.Fields{
			"mirror":  mirror,
			"plugins": cat.Len(),
		}).Info("fetched plugin catalog")
		return cat
	}
	return nil
}

// fetchMirror downloads the catalog document from one mirror, retrying a
// fixed number of times with a fixed delay.
func (f *Fetcher) fetchMirror(mirror string) ([]byte, error) {
	url := strings.TrimSuffix(mirror, "/") + "/" + catalogPath

	var lastErr error
	for attempt := 1; attempt <= f.opts.Retries; attempt++ {
		if attempt > 1 {
			time.Sleep(f.opts.RetryDelay)
		}

		payload, err := f.get(url)
		if err == nil {
			return payload, nil
		}
		lastErr = err
		log.WithError(err).WithFields(log.Fields{
			"mirror":  mirror,
			"attempt": attempt,
			"of":      f.opts.Retries,
		}).Debug("catalog download failed")
	}
	return nil, lastErr
}

func (f *Fetcher) get(url string) ([]byte, error) {
	resp, err := f.client.Get(url)
	if err != nil {
		return nil, errors.Wrap(err, "downloading catalog")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("downloading catalog: HTTP %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading catalog response")
	}
	return payload, nil
}
