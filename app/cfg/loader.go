package cfg

import (
	"cmp"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"gopkg.in/yaml.v3"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Database configuration
	DBHost     string `long:"db-host" env:"DB_HOST" default:"localhost" description:"Database host"`
	DBPort     string `long:"db-port" env:"DB_PORT" default:"5432" description:"Database port"`
	DBUser     string `long:"db-user" env:"DB_USER" default:"feedloft_user" description:"Database user"`
	DBPassword string `long:"db-password" env:"DB_PASSWORD" default:"feedloft_password" description:"Database password (required)" required:"true"`
	DBName     string `long:"db-name" env:"DB_NAME" default:"feedloft" description:"Database name"`

	// Application configuration
	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl           string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service (e.g., https://feeds.example.com)"`
	WorkerCount       int    `long:"worker-count" env:"WORKER_COUNT" default:"5" description:"Number of background workers for import processing"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"30" description:"Scheduler interval in seconds"`
	APIAccessKey      string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`
	ConfigFile        string `long:"config-file" env:"CONFIG_FILE" description:"Optional YAML file overlaying the flag and env configuration"`

	// Push provider configuration
	PushEndpoint string `long:"push-endpoint" env:"PUSH_ENDPOINT" default:"https://pubsubhubbub.appspot.com" description:"Push provider hub endpoint"`
	PushSecret   string `long:"push-secret" env:"PUSH_SECRET" description:"Shared secret for push provider callbacks"`

	// Enrichment configuration
	AnthropicAPIKey  string `long:"anthropic-api-key" env:"ANTHROPIC_API_KEY" description:"API key for summarization (optional, disables summaries when empty)"`
	AnthropicModel   string `long:"anthropic-model" env:"ANTHROPIC_MODEL" default:"claude-sonnet-4-5-20250929" description:"Model used for summarization"`
	TranscriptAPIURL string `long:"transcript-api-url" env:"TRANSCRIPT_API_URL" description:"Base URL of the video transcript API (optional)"`
	StorageDir       string `long:"storage-dir" env:"STORAGE_DIR" default:"./storage" description:"Directory for archived side files"`
	FetchTimeout     int    `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"30" description:"Timeout in seconds for external content fetches"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Feedloft/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// fileCfg is the YAML overlay shape. Set fields win over flags and env.
type fileCfg struct {
	DBHost            string `yaml:"db_host"`
	DBPort            string `yaml:"db_port"`
	DBUser            string `yaml:"db_user"`
	DBPassword        string `yaml:"db_password"`
	DBName            string `yaml:"db_name"`
	Port              string `yaml:"port"`
	BaseUrl           string `yaml:"base_url"`
	WorkerCount       int    `yaml:"worker_count"`
	SchedulerInterval int    `yaml:"scheduler_interval"`
	APIAccessKey      string `yaml:"api_key"`
	PushEndpoint      string `yaml:"push_endpoint"`
	PushSecret        string `yaml:"push_secret"`
	AnthropicAPIKey   string `yaml:"anthropic_api_key"`
	AnthropicModel    string `yaml:"anthropic_model"`
	TranscriptAPIURL  string `yaml:"transcript_api_url"`
	StorageDir        string `yaml:"storage_dir"`
	FetchTimeout      int    `yaml:"fetch_timeout"`
	UserAgent         string `yaml:"user_agent"`
	Timezone          string `yaml:"timezone"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if raw.ConfigFile != "" {
		if err := applyConfigFile(&raw, raw.ConfigFile); err != nil {
			return nil, err
		}
	}

	cfg := &Cfg{
		DBHost:            raw.DBHost,
		DBPort:            raw.DBPort,
		DBUser:            raw.DBUser,
		DBPassword:        raw.DBPassword,
		DBName:            raw.DBName,
		Port:              raw.Port,
		BaseUrl:           raw.BaseUrl,
		WorkerCount:       raw.WorkerCount,
		SchedulerInterval: raw.SchedulerInterval,
		APIAccessKey:      raw.APIAccessKey,
		PushEndpoint:      raw.PushEndpoint,
		PushSecret:        raw.PushSecret,
		AnthropicAPIKey:   raw.AnthropicAPIKey,
		AnthropicModel:    raw.AnthropicModel,
		TranscriptAPIURL:  raw.TranscriptAPIURL,
		StorageDir:        raw.StorageDir,
		FetchTimeout:      raw.FetchTimeout,
		UserAgent:         raw.UserAgent,
		Timezone:          raw.Timezone,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func applyConfigFile(raw *rawCfg, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var file fileCfg
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	raw.DBHost = cmp.Or(file.DBHost, raw.DBHost)
	raw.DBPort = cmp.Or(file.DBPort, raw.DBPort)
	raw.DBUser = cmp.Or(file.DBUser, raw.DBUser)
	raw.DBPassword = cmp.Or(file.DBPassword, raw.DBPassword)
	raw.DBName = cmp.Or(file.DBName, raw.DBName)
	raw.Port = cmp.Or(file.Port, raw.Port)
	raw.BaseUrl = cmp.Or(file.BaseUrl, raw.BaseUrl)
	raw.WorkerCount = cmp.Or(file.WorkerCount, raw.WorkerCount)
	raw.SchedulerInterval = cmp.Or(file.SchedulerInterval, raw.SchedulerInterval)
	raw.APIAccessKey = cmp.Or(file.APIAccessKey, raw.APIAccessKey)
	raw.PushEndpoint = cmp.Or(file.PushEndpoint, raw.PushEndpoint)
	raw.PushSecret = cmp.Or(file.PushSecret, raw.PushSecret)
	raw.AnthropicAPIKey = cmp.Or(file.AnthropicAPIKey, raw.AnthropicAPIKey)
	raw.AnthropicModel = cmp.Or(file.AnthropicModel, raw.AnthropicModel)
	raw.TranscriptAPIURL = cmp.Or(file.TranscriptAPIURL, raw.TranscriptAPIURL)
	raw.StorageDir = cmp.Or(file.StorageDir, raw.StorageDir)
	raw.FetchTimeout = cmp.Or(file.FetchTimeout, raw.FetchTimeout)
	raw.UserAgent = cmp.Or(file.UserAgent, raw.UserAgent)
	raw.Timezone = cmp.Or(file.Timezone, raw.Timezone)

	return nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
			fmt.Printf("Timezone configured: %s\n", timezone)
		}
	}
	return nil
}
