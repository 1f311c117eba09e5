// Package downloader prefetches plugin artifacts for offline installation.
package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bluegreen-tools/jenkinsctl/internal/hpi"
	"github.com/bluegreen-tools/jenkinsctl/internal/plugin"
)

// Job is one plugin artifact to fetch.
type Job struct {
	Name     string
	Version  string // pinned constraint from the manifest, or "latest"
	URL      string
	SHA256   string // hex digest from the catalog, may be empty
	DestPath string
}

// Result is the outcome of one job.
type Result struct {
	Job     Job
	Err     error
	Skipped bool // already present and verified
}

// Options configures a Downloader.
type Options struct {
	Parallel   int // max concurrent fetches
	Retries    int
	RetryDelay time.Duration
	Verify     bool // compare sha256 digests and archive manifests
}

// Downloader fetches plugin artifacts with bounded parallelism. Each job
// writes to a temp file and renames, so an interrupted run never leaves a
// partial artifact.
type Downloader struct {
	opts   Options
	client *http.Client
}

// New creates a downloader.
func New(opts Options) *Downloader {
	if opts.Parallel <= 0 {
		opts.Parallel = 4
	}
	if opts.Retries <= 0 {
		opts.Retries = 5
	}
	return &Downloader{
		opts:   opts,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Download runs all jobs with at most Parallel in flight. Every job runs
// to completion; per-job failures land in the results rather than
// cancelling the group.
func (d *Downloader) Download(ctx context.Context, jobs []Job) []Result {
	results := make([]Result, len(jobs))

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(d.opts.Parallel)

	for i, job := range jobs {
		i, job := i, job
		group.Go(func() error {
			results[i] = d.downloadOne(ctx, job)
			return nil
		})
	}
	group.Wait()

	return results
}

func (d *Downloader) downloadOne(ctx context.Context, job Job) Result {
	if job.URL == "" {
		return Result{Job: job, Err: errors.Errorf("no download URL for plugin %s", job.Name)}
	}

	if d.cached(job) {
		log.WithField("plugin", job.Name).Debug("artifact already present, skipping")
		return Result{Job: job, Skipped: true}
	}

	if err := os.MkdirAll(filepath.Dir(job.DestPath), 0o755); err != nil {
		return Result{Job: job, Err: errors.Wrap(err, "creating destination dir")}
	}

	var lastErr error
	for attempt := 1; attempt <= d.opts.Retries; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(d.opts.RetryDelay):
			case <-ctx.Done():
				return Result{Job: job, Err: ctx.Err()}
			}
		}

		err := d.fetch(ctx, job)
		if err == nil {
			d.inspect(job)
			return Result{Job: job}
		}
		lastErr = err
		log.WithError(err).WithFields(log.Fields{
			"plugin":  job.Name,
			"attempt": attempt,
			"of":      d.opts.Retries,
		}).Debug("artifact download failed")
	}
	return Result{Job: job, Err: lastErr}
}

// cached reports whether the destination already holds a usable artifact.
func (d *Downloader) cached(job Job) bool {
	if _, err := os.Stat(job.DestPath); err != nil {
		return false
	}
	if !d.opts.Verify || job.SHA256 == "" {
		return true
	}
	sum, err := fileSHA256(job.DestPath)
	if err != nil || sum != job.SHA256 {
		log.WithField("plugin", job.Name).Warn("cached artifact fails verification, refetching")
		return false
	}
	return true
}

func (d *Downloader) fetch(ctx context.Context, job Job) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, job.URL, nil)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "downloading %s", job.URL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("downloading %s: HTTP %d", job.URL, resp.StatusCode)
	}

	tmp := job.DestPath + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "creating artifact file")
	}

	digest := sha256.New()
	_, err = io.Copy(io.MultiWriter(out, digest), resp.Body)
	out.Close()
	if err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "writing artifact")
	}

	if d.opts.Verify && job.SHA256 != "" {
		sum := hex.EncodeToString(digest.Sum(nil))
		if sum != job.SHA256 {
			os.Remove(tmp)
			return errors.Errorf("checksum mismatch for %s: have %s, want %s",
				job.Name, sum, job.SHA256)
		}
	}

	if err := os.Rename(tmp, job.DestPath); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "renaming artifact")
	}
	return nil
}

// inspect cross-checks the archive manifest against the pinned constraint.
// Mismatches are surfaced as warnings only; the catalog is the authority
// on what got served.
func (d *Downloader) inspect(job Job) {
	if !d.opts.Verify || job.Version == plugin.VersionLatest {
		return
	}
	m, err := hpi.ReadManifest(job.DestPath)
	if err != nil {
		log.WithError(err).WithField("plugin", job.Name).Warn("cannot inspect plugin archive")
		return
	}
	if v := m.PluginVersion(); v != "" && v != job.Version {
		log.WithFields(log.Fields{
			"plugin": job.Name,
			"pinned": job.Version,
			"got":    v,
		}).Warn("downloaded artifact version differs from pinned constraint")
	}
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	digest := sha256.New()
	if _, err := io.Copy(digest, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}
