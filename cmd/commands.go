package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/skill-translator/internal/config"
	"github.com/MimeLyc/skill-translator/internal/httpapi"
	"github.com/MimeLyc/skill-translator/internal/service"
	"github.com/MimeLyc/skill-translator/internal/translator"
)

type rootFlags struct {
	envFiles   []string
	libraryDir string
	manifest   string
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "skill-translator",
		Short:         "Cache and dispatch translations of skill descriptions",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringSliceVar(&flags.envFiles, "env-file", []string{".env"}, "env files to load before reading the environment")
	cmd.PersistentFlags().StringVar(&flags.libraryDir, "library", "", "skill library directory (overrides LIBRARY_DIR)")
	cmd.PersistentFlags().StringVar(&flags.manifest, "manifest", "", "YAML subject manifest used instead of scanning the library")

	cmd.AddCommand(
		newServeCommand(flags),
		newPretranslateCommand(flags),
		newLookupCommand(flags),
		newClearCacheCommand(flags),
		newStatusCommand(flags),
		newMetaCommand(flags),
	)
	return cmd
}

// withApp wires the application for one command run and tears it down
// afterwards. The context ends on SIGINT or SIGTERM.
func withApp(flags *rootFlags, run func(ctx context.Context, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(flags)
		if err != nil {
			return err
		}
		defer a.Close()
		a.stdout = cmd.OutOrStdout()
		return run(ctx, a)
	}
}

func newServeCommand(flags *rootFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the translation API and run scheduled pretranslation",
		RunE: withApp(flags, func(ctx context.Context, a *app) error {
			if addr == "" {
				addr = a.cfg.HTTP.Addr
			}
			srv := httpapi.NewServer(a.svc,
				httpapi.WithSubjectSource(a.subjects),
				httpapi.WithBackend(a.backend),
				httpapi.WithScheduler(a.scheduler),
			)
			a.logger.Info("Listening on %s", addr)
			return runWithComponents(ctx, addr, a.scheduler, a.cron, srv)
		}),
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides HTTP_ADDR)")
	return cmd
}

func newPretranslateCommand(flags *rootFlags) *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "pretranslate",
		Short: "Translate every subject field not cached yet, retrying failures",
		RunE: withApp(flags, func(ctx context.Context, a *app) error {
			subjects, err := a.subjects(ctx)
			if err != nil {
				return fmt.Errorf("failed to list subjects: %w", err)
			}
			out := a.stdout
			started := time.Now()
			p, err := a.svc.RunBatchPretranslate(ctx, subjects, func(p service.Progress) {
				if !quiet {
					fmt.Fprintf(out, "[%d/%d] %s %s\n", p.Completed, p.Total, p.CurrentSubject, p.CurrentField)
				}
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Done: %d translated, %d failed in %s\n",
				p.Completed-p.Failed, p.Failed, time.Since(started).Round(time.Millisecond))
			return nil
		}),
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "only print the summary")
	return cmd
}

func newLookupCommand(flags *rootFlags) *cobra.Command {
	var cachedOnly bool
	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "Print the cached and manual translations of the library as JSON",
		RunE: withApp(flags, func(ctx context.Context, a *app) error {
			subjects, err := a.subjects(ctx)
			if err != nil {
				return fmt.Errorf("failed to list subjects: %w", err)
			}
			lookup := a.svc.GetTranslations
			if cachedOnly {
				lookup = a.svc.GetCachedTranslations
			}
			translations, err := lookup(ctx, subjects)
			if err != nil {
				return err
			}
			return writeJSON(a.stdout, translations)
		}),
	}
	cmd.Flags().BoolVar(&cachedOnly, "cached-only", false, "skip manual translations")
	return cmd
}

func newClearCacheCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-cache",
		Short: "Delete every cached translation, failures included",
		RunE: withApp(flags, func(ctx context.Context, a *app) error {
			if err := a.svc.DeleteCache(ctx); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Cleared %s\n", a.cfg.Cache.Path)
			return nil
		}),
	}
}

type statusReport struct {
	Translation config.TranslationConfig `json:"translation"`
	Cache       config.CacheConfig       `json:"cache"`
	Backend     *translator.Status       `json:"backend,omitempty"`
	Schedule    service.ScheduleStatus   `json:"schedule"`
}

func newStatusCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report settings, backend health and the schedule",
		RunE: withApp(flags, func(ctx context.Context, a *app) error {
			report := statusReport{
				Translation: a.cfg.Translation,
				Cache:       a.cfg.Cache,
			}
			if reporter, ok := a.backend.(translator.StatusReporter); ok {
				probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				st := reporter.Status(probeCtx)
				cancel()
				report.Backend = &st
			}
			schedule, err := a.scheduler.Status(time.Now())
			if err != nil {
				return err
			}
			report.Schedule = schedule
			return writeJSON(a.stdout, report)
		}),
	}
}

// newMetaCommand edits the library's translation meta file. It loads only
// the configuration so it works while the backend is down.
func newMetaCommand(flags *rootFlags) *cobra.Command {
	var (
		disable        bool
		maxConcurrency int
		maxLength      int
		engineVersion  string
	)
	cmd := &cobra.Command{
		Use:   "meta",
		Short: "Write the library's translation overrides",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(flags)
			if err != nil {
				return err
			}
			path := config.TranslationMetaPath(cfg.Library.Dir)
			meta, _, err := config.LoadTranslationMeta(path)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("disable") {
				meta.DisableTranslation = disable
			}
			if cmd.Flags().Changed("max-concurrency") {
				meta.MaxConcurrency = &maxConcurrency
			}
			if cmd.Flags().Changed("max-length") {
				meta.MaxLength = &maxLength
			}
			if cmd.Flags().Changed("engine-version") {
				meta.EngineVersion = engineVersion
			}

			if err := config.WriteTranslationMeta(path, meta); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return writeJSON(cmd.OutOrStdout(), meta)
		},
	}
	cmd.Flags().BoolVar(&disable, "disable", false, "turn translation off for this library")
	cmd.Flags().IntVar(&maxConcurrency, "max-concurrency", 1, "worker count")
	cmd.Flags().IntVar(&maxLength, "max-length", 96, "maximum translated length")
	cmd.Flags().StringVar(&engineVersion, "engine-version", "", "engine version stored in cache keys")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
