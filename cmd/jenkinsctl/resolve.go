package main

import (
	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/bluegreen-tools/jenkinsctl/internal/catalog"
	"github.com/bluegreen-tools/jenkinsctl/internal/config"
	"github.com/bluegreen-tools/jenkinsctl/internal/manifest"
	"github.com/bluegreen-tools/jenkinsctl/internal/plugfile"
	"github.com/bluegreen-tools/jenkinsctl/internal/resolver"
)

func newResolveCmd() *cobra.Command {
	var (
		inputPath  string
		outputPath string
		cacheDir   string
		noResolve  bool
		maxDepth   int
		policyName string
		mirrors    []string
		retries    int
		retryDelay string
		offline    bool
		dryRun     bool
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve plugin dependencies into an installable manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			applyStringFlag(cmd, "cache-dir", &cfg.CacheDir, cacheDir)
			applyIntFlag(cmd, "max-depth", &cfg.MaxDepth, maxDepth)
			applyIntFlag(cmd, "retries", &cfg.Retries, retries)
			if cmd.Flags().Changed("conflict-policy") {
				cfg.ConflictPolicy = policyName
			}
			if cmd.Flags().Changed("mirror") {
				cfg.Mirrors = mirrors
			}
			if cmd.Flags().Changed("retry-delay") {
				delay, err := parseDuration(retryDelay)
				if err != nil {
					return err
				}
				cfg.RetryDelay = delay
			}
			if noResolve {
				cfg.Resolve = false
			}
			if offline {
				cfg.Offline = true
			}
			cfg.Normalize()

			policy, err := resolver.ParsePolicy(cfg.ConflictPolicy)
			if err != nil {
				return err
			}

			specs, err := plugfile.NewParser().Parse(inputPath)
			if err != nil {
				return err
			}
			log.WithFields(log.Fields{
				"file":    inputPath,
				"plugins": len(specs),
			}).Info("parsed plugin list")

			var cat *catalog.Catalog
			if cfg.Resolve {
				cache := catalog.NewCache(cfg.CacheDir, cfg.CacheTTL.Std())
				fetcher := catalog.NewFetcher(cache, catalog.Options{
					Mirrors:        cfg.Mirrors,
					Retries:        cfg.Retries,
					RetryDelay:     cfg.RetryDelay.Std(),
					DialTimeout:    cfg.DialTimeout.Std(),
					RequestTimeout: cfg.RequestTimeout.Std(),
					Offline:        cfg.Offline,
				})
				cat, err = fetcher.Load()
				if err != nil {
					return err
				}
			}

			res := resolver.New(cat, resolver.Options{
				EnableResolution: cfg.Resolve,
				MaxDepth:         cfg.MaxDepth,
				Policy:           policy,
			})
			resolved, err := res.Resolve(specs)
			if err != nil {
				return err
			}

			params := manifest.Params{
				Input:      inputPath,
				Resolution: cfg.Resolve,
				MaxDepth:   cfg.MaxDepth,
				Policy:     string(policy),
			}
			writer := manifest.NewWriter()

			if dryRun {
				log.WithFields(log.Fields{
					"output":  outputPath,
					"plugins": len(resolved),
				}).Info("dry run, not writing manifest")
				for _, spec := range resolved.Sorted() {
					log.Debugf("would write %s:%s", spec.Name, spec.Version)
				}
				return nil
			}

			if err := writer.Write(outputPath, resolved, params); err != nil {
				return err
			}
			log.WithFields(log.Fields{
				"output":  outputPath,
				"plugins": len(resolved),
			}).Info("wrote resolved plugin manifest")
			return nil
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "f", "plugins.txt", "Plugin list to resolve")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "plugins.resolved", "Resolved manifest path")
	cmd.Flags().StringVar(&cacheDir, "cache-dir", "", "Catalog cache directory")
	cmd.Flags().BoolVar(&noResolve, "no-resolve", false, "Copy the input list without transitive expansion")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 3, "Transitive resolution depth (0-10)")
	cmd.Flags().StringVar(&policyName, "conflict-policy", "latest", "Conflict policy: latest, oldest or fail")
	cmd.Flags().StringArrayVar(&mirrors, "mirror", nil, "Update center mirror base URL (repeatable, ordered)")
	cmd.Flags().IntVar(&retries, "retries", 5, "Download attempts per mirror")
	cmd.Flags().StringVar(&retryDelay, "retry-delay", "10s", "Fixed delay between download attempts")
	cmd.Flags().BoolVar(&offline, "offline", false, "Never touch the network, rely on the cache")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be written without writing it")

	return cmd
}

func applyStringFlag(cmd *cobra.Command, name string, dst *string, value string) {
	if cmd.Flags().Changed(name) {
		*dst = value
	}
}

func applyIntFlag(cmd *cobra.Command, name string, dst *int, value int) {
	if cmd.Flags().Changed(name) {
		*dst = value
	}
}

func parseDuration(s string) (config.Duration, error) {
	var d config.Duration
	if err := d.UnmarshalText([]byte(s)); err != nil {
		return 0, errors.Wrap(err, "parsing duration flag")
	}
	return d, nil
}
