package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/MimeLyc/skill-translator/internal/cache"
	"github.com/MimeLyc/skill-translator/internal/config"
	"github.com/MimeLyc/skill-translator/internal/library"
	"github.com/MimeLyc/skill-translator/internal/persistence"
	"github.com/MimeLyc/skill-translator/internal/service"
	"github.com/MimeLyc/skill-translator/internal/termmap"
	"github.com/MimeLyc/skill-translator/internal/translator"
	applog "github.com/MimeLyc/skill-translator/pkg/log"
)

// app holds the wired components shared by every command.
type app struct {
	cfg       *config.Config
	logger    *applog.Logger
	backend   translator.Backend
	svc       *service.Service
	subjects  service.SubjectSource
	cron      *cron.Cron
	scheduler *service.Scheduler
	stdout    io.Writer

	closers []io.Closer
}

// loadConfig reads env files, the environment and the library's
// translation meta file. Problems with the meta file are returned as
// warnings since the environment settings still apply.
func loadConfig(flags *rootFlags) (*config.Config, []string, error) {
	if err := config.LoadEnvFiles(flags.envFiles...); err != nil {
		return nil, nil, err
	}

	var opts []config.Option
	if flags.libraryDir != "" {
		opts = append(opts, config.WithLibraryDir(flags.libraryDir))
	}
	cfg, err := config.NewFromEnv(opts...)
	if err != nil {
		return nil, nil, err
	}

	var warnings []string
	metaPath := config.TranslationMetaPath(cfg.Library.Dir)
	meta, found, err := config.LoadTranslationMeta(metaPath)
	switch {
	case err != nil:
		warnings = append(warnings, fmt.Sprintf("ignoring %s: %v", metaPath, err))
	case found:
		if err := meta.Validate(); err != nil {
			warnings = append(warnings, fmt.Sprintf("ignoring %s: %v", metaPath, err))
			break
		}
		cfg, err = config.NewFromEnv(append(opts, config.WithTranslationMeta(meta))...)
		if err != nil {
			return nil, nil, err
		}
	}
	return cfg, warnings, nil
}

func newLogger(cfg config.LogConfig) (*applog.Logger, io.Closer, error) {
	level := applog.ParseLevel(cfg.Level)
	if cfg.File == "" {
		return applog.NewLogger(level), nil, nil
	}
	fl, err := applog.NewFileLogger(cfg.File, level)
	if err != nil {
		return nil, nil, err
	}
	return fl.Logger, fl, nil
}

func newStore(cfg config.CacheConfig, logger *applog.Logger) (cache.Store, io.Closer, error) {
	switch cfg.Backend {
	case config.CacheBackendSQLite:
		store, err := persistence.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		return cache.NewJSONStore(cfg.Path, cache.WithLogger(logger)), nil, nil
	}
}

// loadGlossary uses GLOSSARY_FILE when set and otherwise searches upwards
// from the library for term_map.<src>-<tgt>.yaml.
func loadGlossary(cfg *config.Config, logger *applog.Logger) (termmap.Glossary, error) {
	path := cfg.Library.GlossaryFile
	if path == "" {
		sourceLang := cfg.Translation.SourceLang
		if strings.EqualFold(sourceLang, config.AutoSourceLang) {
			sourceLang = config.DefaultSourceLang
		}
		path = termmap.FindInAncestors(cfg.Library.Dir, sourceLang, cfg.Translation.TargetLang)
	}
	if path == "" {
		logger.Debug("No glossary found for %s", cfg.Library.Dir)
		return termmap.Glossary{}, nil
	}

	g, err := termmap.Load(path)
	if err != nil {
		return termmap.Glossary{}, fmt.Errorf("failed to load glossary: %w", err)
	}
	logger.Info("Loaded glossary %s: %d protected terms, %d mapped phrases", path, len(g.Protected), len(g.Mapped))
	return g, nil
}

func subjectSource(cfg *config.Config, manifest string) service.SubjectSource {
	if manifest != "" {
		return func(context.Context) ([]service.Subject, error) {
			return library.LoadManifest(manifest)
		}
	}
	return library.NewScanner([]string{cfg.Library.Dir}).Subjects
}

func newApp(flags *rootFlags) (*app, error) {
	cfg, warnings, err := loadConfig(flags)
	if err != nil {
		return nil, service.WrapError(err, service.ErrConfig, "invalid configuration")
	}

	a := &app{cfg: cfg}
	logger, closer, err := newLogger(cfg.Log)
	if err != nil {
		return nil, service.WrapError(err, service.ErrConfig, "failed to open log file")
	}
	a.logger = logger
	a.addCloser(closer)
	for _, w := range warnings {
		logger.Warn("%s", w)
	}

	store, closer, err := newStore(cfg.Cache, logger)
	if err != nil {
		a.Close()
		return nil, service.WrapError(err, service.ErrCache, "failed to open cache")
	}
	a.addCloser(closer)

	glossary, err := loadGlossary(cfg, logger)
	if err != nil {
		a.Close()
		return nil, service.WrapError(err, service.ErrConfig, "invalid glossary")
	}

	a.backend, err = translator.New(cfg.Backend)
	if err != nil {
		a.Close()
		return nil, service.WrapError(err, service.ErrConfig, "failed to create backend")
	}

	manual := service.NewManualStore(cfg.Library.ManualFile, cfg.Library.Dir, logger)
	a.svc = service.NewService(store, a.backend, termmap.NewProtector(glossary), cfg.Translation,
		service.WithLogger(logger),
		service.WithManualStore(manual),
	)
	a.subjects = subjectSource(cfg, flags.manifest)
	a.cron = cron.New()
	a.scheduler = service.NewScheduler(a.svc, a.subjects, a.cron, cfg.Schedule.CronExpr)

	logger.Debug("Translating to %s with %s backend (engine %s %s), cache %s",
		cfg.Translation.TargetLang, cfg.Backend.Kind, cfg.Translation.EngineID, cfg.Translation.EngineVersion, cfg.Cache.Path)
	return a, nil
}

func (a *app) addCloser(c io.Closer) {
	if c != nil {
		a.closers = append(a.closers, c)
	}
}

// Close stops the pipeline before releasing the cache and log file.
func (a *app) Close() error {
	if a.svc != nil {
		a.svc.Close()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}
