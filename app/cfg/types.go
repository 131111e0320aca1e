package cfg

import "feedloft/app/model"

type Cfg struct {
	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Application configuration
	Port              string
	BaseUrl           string
	WorkerCount       int
	SchedulerInterval int
	APIAccessKey      string

	// Push provider configuration
	PushEndpoint string
	PushSecret   string

	// Enrichment configuration
	AnthropicAPIKey  string
	AnthropicModel   string
	TranscriptAPIURL string
	StorageDir       string
	FetchTimeout     int

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}

// Validate rejects settings the service cannot run with. A failure here
// aborts startup.
func (c *Cfg) Validate() error {
	if c.WorkerCount < 1 {
		return model.NewFatalConfigurationError("worker-count", "must be at least 1")
	}
	if c.SchedulerInterval < 1 {
		return model.NewFatalConfigurationError("scheduler-interval", "must be at least 1 second")
	}
	if c.FetchTimeout < 1 {
		return model.NewFatalConfigurationError("fetch-timeout", "must be at least 1 second")
	}
	if c.PushSecret != "" && c.BaseUrl == "" {
		return model.NewFatalConfigurationError("base-url", "is required when a push secret is configured")
	}
	return nil
}
