package main

import (
	"path/filepath"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/bluegreen-tools/jenkinsctl/internal/catalog"
	"github.com/bluegreen-tools/jenkinsctl/internal/config"
	"github.com/bluegreen-tools/jenkinsctl/internal/downloader"
	"github.com/bluegreen-tools/jenkinsctl/internal/manifest"
)

func newDownloadCmd() *cobra.Command {
	var (
		manifestPath string
		destDir      string
		cacheDir     string
		parallel     int
		verify       bool
		offline      bool
	)

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Prefetch the plugin artifacts named by a resolved manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			applyStringFlag(cmd, "cache-dir", &cfg.CacheDir, cacheDir)
			applyIntFlag(cmd, "parallel", &cfg.Parallel, parallel)
			if cmd.Flags().Changed("verify-checksums") {
				cfg.VerifyChecksum = verify
			}
			if offline {
				cfg.Offline = true
			}
			cfg.Normalize()

			specs, err := manifest.Read(manifestPath)
			if err != nil {
				return err
			}

			cache := catalog.NewCache(cfg.CacheDir, cfg.CacheTTL.Std())
			fetcher := catalog.NewFetcher(cache, catalog.Options{
				Mirrors:        cfg.Mirrors,
				Retries:        cfg.Retries,
				RetryDelay:     cfg.RetryDelay.Std(),
				DialTimeout:    cfg.DialTimeout.Std(),
				RequestTimeout: cfg.RequestTimeout.Std(),
				Offline:        cfg.Offline,
			})
			cat, err := fetcher.Load()
			if err != nil {
				return err
			}

			jobs := make([]downloader.Job, 0, len(specs))
			for _, spec := range specs.Sorted() {
				job := downloader.Job{
					Name:     spec.Name,
					Version:  spec.Version,
					DestPath: filepath.Join(destDir, spec.Name+".hpi"),
				}
				if entry, ok := cat.Lookup(spec.Name); ok {
					job.URL = entry.URL
					job.SHA256 = entry.SHA256
				}
				jobs = append(jobs, job)
			}

			dl := downloader.New(downloader.Options{
				Parallel:   cfg.Parallel,
				Retries:    cfg.Retries,
				RetryDelay: cfg.RetryDelay.Std(),
				Verify:     cfg.VerifyChecksum,
			})
			results := dl.Download(cmd.Context(), jobs)

			var failed int
			for _, result := range results {
				if result.Err != nil {
					failed++
					log.WithError(result.Err).WithField("plugin", result.Job.Name).
						Error("artifact download failed")
				}
			}
			if failed > 0 {
				return errors.Errorf("%d of %d artifact downloads failed", failed, len(results))
			}
			log.WithFields(log.Fields{
				"plugins": len(results),
				"dest":    destDir,
			}).Info("all plugin artifacts present")
			return nil
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "plugins.resolved", "Resolved manifest to download")
	cmd.Flags().StringVarP(&destDir, "dest", "d", "plugins", "Destination directory for .hpi files")
	cmd.Flags().StringVar(&cacheDir, "cache-dir", "", "Catalog cache directory")
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 4, "Maximum concurrent downloads")
	cmd.Flags().BoolVar(&verify, "verify-checksums", false, "Verify sha256 digests and archive manifests")
	cmd.Flags().BoolVar(&offline, "offline", false, "Use only the cached catalog for lookups")

	return cmd
}
