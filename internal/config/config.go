package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	apperrors "adminexport/internal/errors"
)

// EnvPrefix namespaces every environment variable. Each field also answers to
// its bare name (LOGIN_ID, GCP_PROJECT, ...) when the prefixed one is unset.
const EnvPrefix = "ADMINEXPORT"

// Config represents the complete application configuration
type Config struct {
	Login       LoginConfig       `yaml:"login" envconfig:"LOGIN"`
	Export      ExportConfig      `yaml:"export" envconfig:"EXPORT"`
	Acquisition AcquisitionConfig `yaml:"acquisition" envconfig:"ACQUISITION"`
	Browser     BrowserConfig     `yaml:"browser" envconfig:"BROWSER"`
	Warehouse   WarehouseConfig   `yaml:"warehouse" envconfig:"WAREHOUSE"`
	Logging     LoggingConfig     `yaml:"logging" envconfig:"LOGGING"`
	Telemetry   TelemetryConfig   `yaml:"telemetry" envconfig:"TELEMETRY"`
	Journal     JournalConfig     `yaml:"journal" envconfig:"JOURNAL"`
	Paths       PathsConfig       `yaml:"paths" envconfig:"PATHS"`
}

// LoginConfig describes the admin console sign-in form
type LoginConfig struct {
	URL               string        `yaml:"url" envconfig:"LOGIN_URL" validate:"required,url"`
	ListURL           string        `yaml:"list_url" envconfig:"LIST_URL" validate:"required,url"`
	ID                string        `yaml:"id" envconfig:"LOGIN_ID" validate:"required"`
	Password          string        `yaml:"password" envconfig:"LOGIN_PW" validate:"required"`
	IDField           string        `yaml:"id_field" envconfig:"LOGIN_ID_FIELD" validate:"required"`
	PasswordField     string        `yaml:"password_field" envconfig:"LOGIN_PW_FIELD" validate:"required"`
	Hint              string        `yaml:"hint" envconfig:"LOGIN_HINT" validate:"required"`
	FieldTimeout      time.Duration `yaml:"field_timeout" envconfig:"LOGIN_FIELD_TIMEOUT" validate:"gt=0"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout" envconfig:"LOGIN_NAVIGATION_TIMEOUT" validate:"gt=0"`
	SettleDelay       time.Duration `yaml:"settle_delay" envconfig:"LOGIN_SETTLE_DELAY" validate:"gte=0"`
	AlertWait         time.Duration `yaml:"alert_wait" envconfig:"LOGIN_ALERT_WAIT" validate:"gte=0"`
	SubmitSelector    string        `yaml:"submit_selector" envconfig:"LOGIN_SUBMIT_SELECTOR" validate:"required"`
}

// ExportConfig drives the export trigger heuristics
type ExportConfig struct {
	ButtonIDs         []string      `yaml:"button_ids" envconfig:"EXPORT_BUTTON_IDS"`
	HandlerNames      []string      `yaml:"handler_names" envconfig:"EXPORT_HANDLER_NAMES"`
	ClassKeywords     []string      `yaml:"class_keywords" envconfig:"EXPORT_CLASS_KEYWORDS"`
	TextKeywords      []string      `yaml:"text_keywords" envconfig:"EXPORT_TEXT_KEYWORDS"`
	CandidateSelector string        `yaml:"candidate_selector" envconfig:"EXPORT_CANDIDATE_SELECTOR" validate:"required"`
	Script            string        `yaml:"script" envconfig:"EXPORT_SCRIPT" validate:"required"`
	Attempts          int           `yaml:"attempts" envconfig:"EXPORT_ATTEMPTS" validate:"gte=1"`
	Backoff           time.Duration `yaml:"backoff" envconfig:"EXPORT_BACKOFF" validate:"gte=0"`
	AlertWait         time.Duration `yaml:"alert_wait" envconfig:"EXPORT_ALERT_WAIT" validate:"gte=0"`
	WindowGrace       time.Duration `yaml:"window_grace" envconfig:"EXPORT_WINDOW_GRACE" validate:"gte=0"`
}

// AcquisitionConfig holds the download detection thresholds
type AcquisitionConfig struct {
	PollInterval   time.Duration `yaml:"poll_interval" envconfig:"POLL_INTERVAL" validate:"gt=0"`
	StableDelay    time.Duration `yaml:"stable_delay" envconfig:"STABLE_DELAY" validate:"gt=0"`
	StallThreshold time.Duration `yaml:"stall_threshold" envconfig:"STALL_THRESHOLD" validate:"gt=0"`
	Timeout        time.Duration `yaml:"timeout" envconfig:"DOWNLOAD_TIMEOUT" validate:"gt=0"`
	CaptureTimeout time.Duration `yaml:"capture_timeout" envconfig:"CAPTURE_TIMEOUT" validate:"gt=0"`
	Extensions     []string      `yaml:"extensions" envconfig:"EXTENSIONS" validate:"min=1"`
	Markers        []string      `yaml:"markers" envconfig:"MARKERS" validate:"min=1"`
}

// BrowserConfig configures the Chrome instance
type BrowserConfig struct {
	ExecPath     string        `yaml:"exec_path" envconfig:"CHROME_PATH"`
	Headless     bool          `yaml:"headless" envconfig:"HEADLESS"`
	UserAgent    string        `yaml:"user_agent" envconfig:"USER_AGENT"`
	WindowWidth  int           `yaml:"window_width" envconfig:"WINDOW_WIDTH" validate:"gt=0"`
	WindowHeight int           `yaml:"window_height" envconfig:"WINDOW_HEIGHT" validate:"gt=0"`
	RunTimeout   time.Duration `yaml:"run_timeout" envconfig:"RUN_TIMEOUT" validate:"gt=0"`
}

// WarehouseConfig identifies the destination table
type WarehouseConfig struct {
	Project         string        `yaml:"project" envconfig:"GCP_PROJECT" validate:"required"`
	Dataset         string        `yaml:"dataset" envconfig:"BQ_DATASET" validate:"required"`
	Table           string        `yaml:"table" envconfig:"BQ_TABLE" validate:"required"`
	Location        string        `yaml:"location" envconfig:"BQ_LOCATION" validate:"required"`
	CredentialsFile string        `yaml:"credentials_file" envconfig:"GOOGLE_APPLICATION_CREDENTIALS"`
	Endpoint        string        `yaml:"endpoint" envconfig:"BQ_ENDPOINT"`
	PollInterval    time.Duration `yaml:"poll_interval" envconfig:"BQ_POLL_INTERVAL" validate:"gt=0"`
	JobTimeout      time.Duration `yaml:"job_timeout" envconfig:"BQ_JOB_TIMEOUT" validate:"gt=0"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	Format   string `yaml:"format" envconfig:"LOG_FORMAT"`
	Output   string `yaml:"output" envconfig:"LOG_OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"LOG_FILE"`
}

// TelemetryConfig selects where traces and metrics go; empty paths disable them
type TelemetryConfig struct {
	ServiceName string `yaml:"service_name" envconfig:"SERVICE_NAME"`
	TracesFile  string `yaml:"traces_file" envconfig:"TRACES_FILE"`
	MetricsFile string `yaml:"metrics_file" envconfig:"METRICS_FILE"`
}

// JournalConfig locates the run journal; an empty path disables it
type JournalConfig struct {
	Path string `yaml:"path" envconfig:"JOURNAL_PATH"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	BaseDir     string `yaml:"base_dir" envconfig:"BASE_DIR"`
	DownloadDir string `yaml:"download_dir" envconfig:"DOWNLOAD_DIR" validate:"required"`
	ArchiveDir  string `yaml:"archive_dir" envconfig:"ARCHIVE_DIR"`
}

// Option overrides configuration after every other source has been applied.
// Command line flags are expressed as options.
type Option func(*Config)

type loadOptions struct {
	file      string
	overrides []Option
}

// LoadOption tunes Load itself
type LoadOption func(*loadOptions)

// WithFile forces a YAML file instead of the search locations
func WithFile(path string) LoadOption {
	return func(o *loadOptions) { o.file = path }
}

// WithOverrides applies opts last, above environment and file values
func WithOverrides(opts ...Option) LoadOption {
	return func(o *loadOptions) { o.overrides = append(o.overrides, opts...) }
}

// Load builds the configuration from defaults, an optional YAML file,
// environment variables and explicit overrides, in rising precedence.
func Load(opts ...LoadOption) (*Config, error) {
	var lo loadOptions
	for _, opt := range opts {
		opt(&lo)
	}

	cfg := Default()

	configFile := lo.file
	if configFile == "" {
		configFile = getConfigFilePath()
	}
	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, apperrors.NewConfigError("failed to load config from file", err).
				WithContext("file", configFile)
		}
	}

	// Unset variables leave file and default values untouched
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, apperrors.NewConfigError("failed to load config from env", err)
	}

	for _, override := range lo.overrides {
		override(cfg)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, apperrors.NewConfigError("config validation failed", err)
	}

	return cfg, nil
}

// loadFromFile decodes a YAML file over cfg. Keys absent from the file keep
// their current value.
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// normalize applies the fixed logging policy and cleans list values
func (c *Config) normalize() {
	// JSON lines to both the console and the log file
	if c.Logging.Format != "json" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output != "both" && c.Logging.Output != "file" && c.Logging.Output != "console" {
		c.Logging.Output = "both"
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "log.txt"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))

	for i, ext := range c.Acquisition.Extensions {
		c.Acquisition.Extensions[i] = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	}
}

var validate = validator.New()

// Validate checks every section against its constraints
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Acquisition.StallThreshold > c.Acquisition.Timeout {
		return fmt.Errorf("stall threshold %s exceeds download timeout %s",
			c.Acquisition.StallThreshold, c.Acquisition.Timeout)
	}
	return nil
}

// TableID returns the fully qualified destination table
func (c *Config) TableID() string {
	return c.Warehouse.Project + "." + c.Warehouse.Dataset + "." + c.Warehouse.Table
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	if env := os.Getenv(EnvPrefix + "_CONFIG"); env != "" {
		return env
	}

	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Login: LoginConfig{
			URL:               DefaultLoginURL,
			ListURL:           DefaultListURL,
			ID:                "ppazic",
			Password:          "123123",
			IDField:           "sMemId",
			PasswordField:     "sMemPw",
			Hint:              "Login.asp",
			FieldTimeout:      20 * time.Second,
			NavigationTimeout: 20 * time.Second,
			SettleDelay:       500 * time.Millisecond,
			AlertWait:         3 * time.Second,
			SubmitSelector:    "button[type='submit'], input[type='submit']",
		},
		Export: ExportConfig{
			ButtonIDs:         []string{"btnExcel", "btnExcelDown"},
			HandlerNames:      []string{"fnPageExl", "fnExcel"},
			ClassKeywords:     []string{"excel", "export"},
			TextKeywords:      []string{"엑셀", "Excel", "다운로드"},
			CandidateSelector: "a, button, input[type='button'], input[type='submit'], input[type='image'], img[onclick], span[onclick]",
			Script:            "fnPageExl('X14');",
			Attempts:          3,
			Backoff:           2 * time.Second,
			AlertWait:         2 * time.Second,
			WindowGrace:       3 * time.Second,
		},
		Acquisition: AcquisitionConfig{
			PollInterval:   800 * time.Millisecond,
			StableDelay:    time.Second,
			StallThreshold: 20 * time.Second,
			Timeout:        180 * time.Second,
			CaptureTimeout: 60 * time.Second,
			Extensions:     []string{"csv", "xls", "xlsx", "zip"},
			Markers:        []string{".crdownload", ".part", ".tmp"},
		},
		Browser: BrowserConfig{
			Headless:     true,
			WindowWidth:  1366,
			WindowHeight: 900,
			RunTimeout:   15 * time.Minute,
		},
		Warehouse: WarehouseConfig{
			Project:         "savvy-mantis-457008-k6",
			Dataset:         "raw_data",
			Table:           "goods_csv",
			Location:        "asia-northeast3",
			CredentialsFile: "bigquery-credentials.json",
			PollInterval:    2 * time.Second,
			JobTimeout:      5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "both",
			FilePath: "log.txt",
		},
		Telemetry: TelemetryConfig{
			ServiceName: AppName,
		},
		Journal: JournalConfig{
			Path: "adminexport.db",
		},
		Paths: PathsConfig{
			DownloadDir: "downloads",
		},
	}
}
