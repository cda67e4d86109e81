package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"golang.org/x/text/language"
)

// Config holds all application configuration.
//
// Environment Variables:
// Translation:
// - ENGINE_ID: engine identity stored in every cache key (default: onnx-marian)
// - ENGINE_VERSION: engine version stored in every cache key (default: engine.version in MODEL_DIR, else unknown)
// - MODEL_DIR: local model directory used to resolve the engine version (optional)
// - SOURCE_LANG: source language, "auto" detects per text (default: en)
// - TARGET_LANG: target language (default: zh-CN)
// - MAX_CONCURRENCY: translation workers, clamped to 1..2 by the pipeline (default: 1)
// - MAX_LENGTH: maximum output length passed to the backend (default: 96)
// - TRANSLATION_TIMEOUT: per-call backend timeout (default: 20s)
// - ENABLE_TRANSLATION: master switch (default: true)
//
// Library:
// - LIBRARY_DIR: skill library root (default: ./library)
// - GLOSSARY_FILE: protected terms and mapped phrases (default: term_map.<src>-<tgt>.yaml found from LIBRARY_DIR upwards)
// - MANUAL_TRANSLATIONS_FILE: manual overrides (default: <LIBRARY_DIR>/.manual_translations.json)
//
// Cache:
// - CACHE_BACKEND: json or sqlite (default: json)
// - CACHE_PATH: cache location (default: <LIBRARY_DIR>/.translation_cache.json or .db)
//
// Backend:
// - BACKEND_KIND: remote, agent or openai (default: remote)
// - BACKEND_URL: service base URL (default: http://localhost:5123, agent: http://127.0.0.1:8080)
// - BACKEND_TIMEOUT: HTTP client timeout (default: 120s)
// - BACKEND_API_KEY: API key for the openai backend
// - BACKEND_MODEL: chat model for the openai backend (default: gpt-4o-mini)
// - BACKEND_BREAKER: wrap the backend in a circuit breaker (default: true)
//
// Server:
// - HTTP_ADDR: listen address for serve (default: :8088)
// - CRON_EXPR: schedule for library pre-translation, empty disables it
// - LOG_LEVEL: debug, info, warn, error (default: info)
// - LOG_FILE: append logs to this file instead of stdout (optional)
type Config struct {
	Translation TranslationConfig `json:"translation"`
	Library     LibraryConfig     `json:"library"`
	Cache       CacheConfig       `json:"cache"`
	Backend     BackendConfig     `json:"backend"`
	HTTP        HTTPConfig        `json:"http"`
	Schedule    ScheduleConfig    `json:"schedule"`
	Log         LogConfig         `json:"log"`
}

// TranslationConfig drives the translation pipeline.
type TranslationConfig struct {
	EngineID       string        `json:"engine_id"`
	EngineVersion  string        `json:"engine_version"`
	ModelDir       string        `json:"model_dir"`
	SourceLang     string        `json:"source_lang"`
	TargetLang     string        `json:"target_lang"`
	MaxConcurrency int           `json:"max_concurrency"`
	MaxLength      int           `json:"max_length"`
	Timeout        time.Duration `json:"timeout"`
	Enabled        bool          `json:"enabled"`
}

type LibraryConfig struct {
	Dir          string `json:"dir"`
	GlossaryFile string `json:"glossary_file"`
	ManualFile   string `json:"manual_file"`
}

const (
	CacheBackendJSON   = "json"
	CacheBackendSQLite = "sqlite"
)

type CacheConfig struct {
	Backend string `json:"backend"`
	Path    string `json:"path"`
}

const (
	BackendRemote = "remote"
	BackendAgent  = "agent"
	BackendOpenAI = "openai"
)

type BackendConfig struct {
	Kind    string        `json:"kind"`
	URL     string        `json:"url"`
	Timeout time.Duration `json:"timeout"`
	APIKey  string        `json:"-"`
	Model   string        `json:"model"`
	Breaker bool          `json:"breaker"`
}

type HTTPConfig struct {
	Addr string `json:"addr"`
}

type ScheduleConfig struct {
	CronExpr string `json:"cron_expr"`
}

type LogConfig struct {
	Level string `json:"level"`
	File  string `json:"file"`
}

const (
	DefaultEngineID   = "onnx-marian"
	DefaultVersion    = "unknown"
	DefaultSourceLang = "en"
	DefaultTargetLang = "zh-CN"
	AutoSourceLang    = "auto"

	defaultRemoteURL = "http://localhost:5123"
	defaultAgentURL  = "http://127.0.0.1:8080"
)

// Option is a function type for configuring Config
type Option func(*Config)

// LoadEnvFiles loads KEY=VALUE files into the process environment.
// Missing files are skipped; variables already set are kept.
func LoadEnvFiles(paths ...string) error {
	for _, path := range paths {
		if strings.TrimSpace(path) == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
	}
	return nil
}

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	libraryDir := getEnvString("LIBRARY_DIR", "./library")
	cacheBackend := strings.ToLower(getEnvString("CACHE_BACKEND", CacheBackendJSON))
	backendKind := strings.ToLower(getEnvString("BACKEND_KIND", BackendRemote))

	config := &Config{
		Translation: TranslationConfig{
			EngineID:       getEnvString("ENGINE_ID", DefaultEngineID),
			EngineVersion:  getEnvString("ENGINE_VERSION", ""),
			ModelDir:       getEnvString("MODEL_DIR", ""),
			SourceLang:     getEnvString("SOURCE_LANG", DefaultSourceLang),
			TargetLang:     getEnvString("TARGET_LANG", DefaultTargetLang),
			MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 1),
			MaxLength:      getEnvInt("MAX_LENGTH", 96),
			Timeout:        getEnvDuration("TRANSLATION_TIMEOUT", 20*time.Second),
			Enabled:        getEnvBool("ENABLE_TRANSLATION", true),
		},
		Library: LibraryConfig{
			Dir:          libraryDir,
			GlossaryFile: getEnvString("GLOSSARY_FILE", ""),
			ManualFile:   getEnvString("MANUAL_TRANSLATIONS_FILE", filepath.Join(libraryDir, ".manual_translations.json")),
		},
		Cache: CacheConfig{
			Backend: cacheBackend,
			Path:    getEnvString("CACHE_PATH", defaultCachePath(libraryDir, cacheBackend)),
		},
		Backend: BackendConfig{
			Kind:    backendKind,
			URL:     getEnvString("BACKEND_URL", defaultBackendURL(backendKind)),
			Timeout: getEnvDuration("BACKEND_TIMEOUT", 120*time.Second),
			APIKey:  getEnvString("BACKEND_API_KEY", ""),
			Model:   getEnvString("BACKEND_MODEL", "gpt-4o-mini"),
			Breaker: getEnvBool("BACKEND_BREAKER", true),
		},
		HTTP: HTTPConfig{
			Addr: getEnvString("HTTP_ADDR", ":8088"),
		},
		Schedule: ScheduleConfig{
			CronExpr: getEnvString("CRON_EXPR", ""),
		},
		Log: LogConfig{
			Level: getEnvString("LOG_LEVEL", "info"),
			File:  getEnvString("LOG_FILE", ""),
		},
	}

	for _, opt := range opts {
		opt(config)
	}

	if config.Translation.EngineVersion == "" {
		config.Translation.EngineVersion = ResolveEngineVersion(config.Translation.ModelDir)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// WithLibraryDir points the library and every path derived from it at dir.
func WithLibraryDir(dir string) Option {
	return func(c *Config) {
		if strings.TrimSpace(dir) == "" {
			return
		}
		c.Library.Dir = dir
		c.Library.ManualFile = filepath.Join(dir, ".manual_translations.json")
		c.Cache.Path = defaultCachePath(dir, c.Cache.Backend)
	}
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	t := &c.Translation
	if strings.TrimSpace(t.EngineID) == "" {
		return fmt.Errorf("ENGINE_ID is required")
	}
	tag, err := language.Parse(t.TargetLang)
	if err != nil {
		return fmt.Errorf("invalid TARGET_LANG %q: %w", t.TargetLang, err)
	}
	t.TargetLang = tag.String()
	if !strings.EqualFold(t.SourceLang, AutoSourceLang) {
		if _, err := language.Parse(t.SourceLang); err != nil {
			return fmt.Errorf("invalid SOURCE_LANG %q: %w", t.SourceLang, err)
		}
	} else {
		t.SourceLang = AutoSourceLang
	}
	if t.MaxLength <= 0 {
		return fmt.Errorf("MAX_LENGTH must be positive, got %d", t.MaxLength)
	}
	if t.Timeout < 0 {
		return fmt.Errorf("TRANSLATION_TIMEOUT must not be negative")
	}

	switch c.Cache.Backend {
	case CacheBackendJSON, CacheBackendSQLite:
	default:
		return fmt.Errorf("unsupported CACHE_BACKEND %q", c.Cache.Backend)
	}
	if strings.TrimSpace(c.Cache.Path) == "" {
		return fmt.Errorf("CACHE_PATH is required")
	}

	switch c.Backend.Kind {
	case BackendRemote, BackendAgent:
		if strings.TrimSpace(c.Backend.URL) == "" {
			return fmt.Errorf("BACKEND_URL is required for %s backend", c.Backend.Kind)
		}
	case BackendOpenAI:
		if strings.TrimSpace(c.Backend.APIKey) == "" {
			return fmt.Errorf("BACKEND_API_KEY is required for openai backend")
		}
	default:
		return fmt.Errorf("unsupported BACKEND_KIND %q", c.Backend.Kind)
	}

	if expr := strings.TrimSpace(c.Schedule.CronExpr); expr != "" {
		if _, err := cron.ParseStandard(expr); err != nil {
			return fmt.Errorf("invalid CRON_EXPR: %w", err)
		}
	}
	return nil
}

// ResolveEngineVersion reads engine.version from the model directory, falling
// back to the directory's modification time and finally to "unknown".
func ResolveEngineVersion(modelDir string) string {
	if strings.TrimSpace(modelDir) == "" {
		return DefaultVersion
	}
	if data, err := os.ReadFile(filepath.Join(modelDir, "engine.version")); err == nil {
		if v := strings.TrimSpace(string(data)); v != "" {
			return v
		}
	}
	if info, err := os.Stat(modelDir); err == nil && info.IsDir() {
		return info.ModTime().UTC().Format("20060102150405")
	}
	return DefaultVersion
}

func defaultCachePath(libraryDir, backend string) string {
	if backend == CacheBackendSQLite {
		return filepath.Join(libraryDir, ".translation_cache.db")
	}
	return filepath.Join(libraryDir, ".translation_cache.json")
}

func defaultBackendURL(kind string) string {
	if kind == BackendAgent {
		return defaultAgentURL
	}
	return defaultRemoteURL
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("20s") or plain seconds ("20").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
