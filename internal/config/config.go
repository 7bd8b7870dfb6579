package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/lmittmann/tint"
	"github.com/spf13/viper"

	"github.com/shehryarbajwa/rentharvest/internal/browser"
	"github.com/shehryarbajwa/rentharvest/internal/coordinator"
	"github.com/shehryarbajwa/rentharvest/internal/engine"
	"github.com/shehryarbajwa/rentharvest/internal/store"
	"github.com/shehryarbajwa/rentharvest/pkg/models"
)

// EnvPrefix prefixes every environment override, e.g. RENTHARVEST_STORE_KIND
const EnvPrefix = "RENTHARVEST"

// Config holds all configuration for the server and the CLI
type Config struct {
	General     GeneralConfig         `mapstructure:"general"`
	Server      ServerConfig          `mapstructure:"server"`
	Store       StoreConfig           `mapstructure:"store"`
	Browser     BrowserConfig         `mapstructure:"browser"`
	Coordinator CoordinatorConfig     `mapstructure:"coordinator"`
	Timing      engine.Timing         `mapstructure:"timing"`
	Site        browser.SiteProfile   `mapstructure:"site"`
	Categories  []engine.CategoryRule `mapstructure:"categories"`
	Scrape      ScrapeConfig          `mapstructure:"scrape"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains the HTTP listener and API limits
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	RequestsPerHour int           `mapstructure:"requests_per_hour"`
	Burst           int           `mapstructure:"burst"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig selects the durable session store
type StoreConfig struct {
	Kind     string      `mapstructure:"kind"` // memory, file or redis
	FilePath string      `mapstructure:"file_path"`
	Redis    RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// BrowserConfig says how to reach Chrome
type BrowserConfig struct {
	RemoteURL     string `mapstructure:"remote_url"`
	Headless      bool   `mapstructure:"headless"`
	Docker        bool   `mapstructure:"docker"`
	Image         string `mapstructure:"image"`
	UserAgent     string `mapstructure:"user_agent"`
	DetailPattern string `mapstructure:"detail_pattern"`

	// ProfileArchive keeps the docker Chrome profile between runs
	ProfileArchive string `mapstructure:"profile_archive"`
}

type CoordinatorConfig struct {
	SecondaryPattern  string        `mapstructure:"secondary_pattern"`
	IdentifierPattern string        `mapstructure:"identifier_pattern"`
	ExtractDelay      time.Duration `mapstructure:"extract_delay"`
	MaxExtractions    int64         `mapstructure:"max_extractions"`
}

// ScrapeConfig is the default run configuration for `harvest run`
type ScrapeConfig struct {
	Location     string   `mapstructure:"location"`
	Durations    []int    `mapstructure:"durations"`
	TargetModels []string `mapstructure:"target_models"`
	MaxPerDate   int      `mapstructure:"max_per_date"`
	ExportDir    string   `mapstructure:"export_dir"`
}

// Run converts the scrape section into a session config
func (s ScrapeConfig) Run(site string) models.Config {
	return models.Config{
		Site:         site,
		Location:     s.Location,
		Durations:    append([]int(nil), s.Durations...),
		TargetModels: append([]string(nil), s.TargetModels...),
		MaxPerDate:   s.MaxPerDate,
	}
}

// StoreOptions maps the store section onto store.Options
func (s StoreConfig) StoreOptions() store.Options {
	return store.Options{
		Kind:          s.Kind,
		FilePath:      s.FilePath,
		RedisAddr:     s.Redis.Addr,
		RedisPassword: s.Redis.Password,
		RedisDB:       s.Redis.DB,
	}
}

func (s StoreConfig) Validate() error {
	switch s.Kind {
	case "", "memory":
	case "file":
		if s.FilePath == "" {
			return errors.New("store.file_path is required for the file store")
		}
	case "redis":
		if s.Redis.Addr == "" {
			return errors.New("store.redis.addr is required for the redis store")
		}
	default:
		return fmt.Errorf("store.kind %q is not one of memory, file, redis", s.Kind)
	}
	return nil
}

func (b BrowserConfig) Validate() error {
	if b.Docker && b.RemoteURL != "" {
		return errors.New("browser.docker and browser.remote_url are mutually exclusive")
	}
	if _, err := regexp.Compile(b.DetailPattern); err != nil {
		return fmt.Errorf("browser.detail_pattern: %w", err)
	}
	return nil
}

func (c CoordinatorConfig) Validate() error {
	if _, err := regexp.Compile(c.SecondaryPattern); err != nil {
		return fmt.Errorf("coordinator.secondary_pattern: %w", err)
	}
	if _, err := regexp.Compile(c.IdentifierPattern); err != nil {
		return fmt.Errorf("coordinator.identifier_pattern: %w", err)
	}
	if c.ExtractDelay < 0 {
		return errors.New("coordinator.extract_delay must not be negative")
	}
	return nil
}

// Validate reports the first invalid section
func (c *Config) Validate() error {
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Browser.Validate(); err != nil {
		return err
	}
	if err := c.Coordinator.Validate(); err != nil {
		return err
	}
	if c.Timing.OfferSettleMax < c.Timing.OfferSettleMin {
		return errors.New("timing.offer_settle_max must not be below offer_settle_min")
	}
	if _, err := engine.NewClassifier(c.Categories); err != nil {
		return err
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.log_level", "info")

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.requests_per_hour", 3600)
	v.SetDefault("server.burst", 60)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("store.kind", "file")
	v.SetDefault("store.file_path", "./storage/session.json.gz")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)

	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.docker", false)
	v.SetDefault("browser.image", browser.DefaultImage)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.detail_pattern", coordinator.DefaultSecondaryPattern)
	v.SetDefault("browser.profile_archive", "")

	v.SetDefault("coordinator.secondary_pattern", coordinator.DefaultSecondaryPattern)
	v.SetDefault("coordinator.identifier_pattern", coordinator.DefaultIdentifierPattern)
	v.SetDefault("coordinator.extract_delay", coordinator.DefaultExtractDelay)
	v.SetDefault("coordinator.max_extractions", 4)

	v.SetDefault("scrape.location", "")
	v.SetDefault("scrape.max_per_date", models.DefaultMaxPerDate)
	v.SetDefault("scrape.export_dir", ".")
}

// Load reads path, or config.yaml from the usual places when path is empty,
// then applies RENTHARVEST_* environment overrides. A missing config file
// is not an error when path is empty.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := Config{
		Timing: engine.DefaultTiming(),
		Site:   browser.DefaultProfile(),
	}
	// lists from the file replace the defaults instead of overlaying them
	zeroSlices := func(dc *mapstructure.DecoderConfig) { dc.ZeroFields = true }
	if err := v.Unmarshal(&cfg, zeroSlices); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if len(cfg.Categories) == 0 {
		cfg.Categories = append([]engine.CategoryRule(nil), engine.DefaultCategoryRules...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParseLevel maps a log_level string onto a slog level, defaulting to info
func ParseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// NewLogger builds the colourised stderr logger used by both binaries
func NewLogger(level string) *slog.Logger {
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      ParseLevel(level),
		TimeFormat: time.Kitchen,
	}))
}
