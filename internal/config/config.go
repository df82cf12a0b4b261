// Package config loads harvester settings from the environment, an optional
// .env file and an optional config file.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/qepting91/wb-harvester/internal/collector"
	"github.com/qepting91/wb-harvester/internal/retry"
	"github.com/spf13/viper"
)

// Endpoint defaults.
const (
	DefaultCatalogURL      = "https://static-basket-01.wbbasket.ru/vol0/data/main-menu-ru-ru-v3.json"
	DefaultBatchCatalogURL = "https://static-basket-01.wbcontent.net/vol0/data/main-menu-uz-ru-v3.json"
	DefaultListingURL      = "https://catalog.wb.ru"
	DefaultKeywordsURL     = "https://evirma.ru/api/v1/keyword/list"
	DefaultUserAgent       = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

var (
	ErrMissingToken = errors.New("TELEGRAM_BOT_TOKEN is required")
	ErrMissingAdmin = errors.New("ADMIN_ID is required")
	ErrBadAdmin     = errors.New("ADMIN_ID must be a comma separated list of numeric ids")
)

// Config holds every setting the harvester reads.
type Config struct {
	BotToken string
	AdminIDs []int64

	OutputDir string
	LogDir    string
	LogLevel  string

	CollectorMode   string
	CatalogURL      string
	BatchCatalogURL string
	ListingURL      string
	KeywordsURL     string
	UserAgent       string

	MaxPages        int
	PageDelay       time.Duration
	FileDeleteDelay time.Duration
	RequestTimeout  time.Duration
	RequestInterval time.Duration
	RetryAttempts   int
	RetryBackoff    time.Duration

	RedisURL      string
	DashboardAddr string
	BatchSchedule string
	BatchTimezone string
	AuditKeywords bool
	Workers       int
}

// New returns a viper instance with defaults set and environment lookup
// enabled. Values already in the process environment win over .env.
func New() *viper.Viper {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("output_dir", "output")
	v.SetDefault("log_dir", "logs")
	v.SetDefault("log_level", "info")
	v.SetDefault("collector_mode", "live")
	v.SetDefault("wb_catalog_url", DefaultCatalogURL)
	v.SetDefault("wb_batch_catalog_url", DefaultBatchCatalogURL)
	v.SetDefault("wb_listing_url", DefaultListingURL)
	v.SetDefault("evirma_api_url", DefaultKeywordsURL)
	v.SetDefault("user_agent", DefaultUserAgent)
	v.SetDefault("max_pages", 2)
	v.SetDefault("page_delay", time.Second)
	v.SetDefault("file_delete_delay", 15*time.Second)
	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("request_interval", 500*time.Millisecond)
	v.SetDefault("retry_attempts", 3)
	v.SetDefault("retry_backoff", 2*time.Second)
	v.SetDefault("redis_url", "")
	v.SetDefault("dashboard_addr", ":8080")
	v.SetDefault("batch_schedule", "0 9,15 * * *")
	v.SetDefault("batch_timezone", "Europe/Moscow")
	v.SetDefault("audit_keywords", false)
	v.SetDefault("workers", 2)
	v.SetDefault("telegram_bot_token", "")
	v.SetDefault("admin_id", "")
}

// ReadFile merges a YAML/JSON/TOML config file. Environment values still
// take precedence.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

// Load decodes and validates the settings held by v.
func Load(v *viper.Viper) (Config, error) {
	admins, err := parseIDs(v.GetString("admin_id"))
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		BotToken:        strings.TrimSpace(v.GetString("telegram_bot_token")),
		AdminIDs:        admins,
		OutputDir:       v.GetString("output_dir"),
		LogDir:          v.GetString("log_dir"),
		LogLevel:        v.GetString("log_level"),
		CollectorMode:   strings.ToLower(v.GetString("collector_mode")),
		CatalogURL:      v.GetString("wb_catalog_url"),
		BatchCatalogURL: v.GetString("wb_batch_catalog_url"),
		ListingURL:      v.GetString("wb_listing_url"),
		KeywordsURL:     v.GetString("evirma_api_url"),
		UserAgent:       v.GetString("user_agent"),
		MaxPages:        v.GetInt("max_pages"),
		PageDelay:       v.GetDuration("page_delay"),
		FileDeleteDelay: v.GetDuration("file_delete_delay"),
		RequestTimeout:  v.GetDuration("request_timeout"),
		RequestInterval: v.GetDuration("request_interval"),
		RetryAttempts:   v.GetInt("retry_attempts"),
		RetryBackoff:    v.GetDuration("retry_backoff"),
		RedisURL:        v.GetString("redis_url"),
		DashboardAddr:   v.GetString("dashboard_addr"),
		BatchSchedule:   v.GetString("batch_schedule"),
		BatchTimezone:   v.GetString("batch_timezone"),
		AuditKeywords:   v.GetBool("audit_keywords"),
		Workers:         v.GetInt("workers"),
	}
	return cfg, cfg.Validate()
}

// Validate checks ranges that would make a run misbehave.
func (c Config) Validate() error {
	var errs []error
	if c.MaxPages < 1 {
		errs = append(errs, fmt.Errorf("MAX_PAGES must be at least 1, got %d", c.MaxPages))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("WORKERS must be at least 1, got %d", c.Workers))
	}
	if c.RetryAttempts < 1 {
		errs = append(errs, fmt.Errorf("RETRY_ATTEMPTS must be at least 1, got %d", c.RetryAttempts))
	}
	if c.PageDelay < 0 || c.FileDeleteDelay < 0 || c.RequestInterval < 0 || c.RetryBackoff < 0 {
		errs = append(errs, errors.New("delays must not be negative"))
	}
	if c.OutputDir == "" {
		errs = append(errs, errors.New("OUTPUT_DIR must not be empty"))
	}
	switch c.CollectorMode {
	case "live", "mock":
	default:
		errs = append(errs, fmt.Errorf("unknown COLLECTOR_MODE %q", c.CollectorMode))
	}
	return errors.Join(errs...)
}

// ValidateBot checks the settings only the chat bot needs.
func (c Config) ValidateBot() error {
	var errs []error
	if c.BotToken == "" {
		errs = append(errs, ErrMissingToken)
	}
	if len(c.AdminIDs) == 0 {
		errs = append(errs, ErrMissingAdmin)
	}
	return errors.Join(errs...)
}

func parseIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrBadAdmin, part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// CollectorOptions builds live collector options for the given catalog URL.
func (c Config) CollectorOptions(catalogURL string) collector.Options {
	return collector.Options{
		CatalogURL:  catalogURL,
		ListingURL:  c.ListingURL,
		KeywordsURL: c.KeywordsURL,
		UserAgent:   c.UserAgent,
		Timeout:     c.RequestTimeout,
		Interval:    c.RequestInterval,
		Retry: retry.Config{
			MaxAttempts: c.RetryAttempts,
			Backoff:     c.RetryBackoff,
			IsRetryable: retry.DefaultIsRetryable,
		},
	}
}
