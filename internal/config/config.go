// Package config loads runtime configuration from the environment.
// A local .env file is honored when present so development machines
// do not need exported variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the full runtime configuration for the ingestion service.
type Config struct {
	Providers ProvidersConfig
	Store     StoreConfig
	Worker    WorkerConfig

	// CategorySeedFile points at the YAML file holding the system
	// category taxonomy. Empty means no seeding at startup.
	CategorySeedFile string
}

// ProvidersConfig configures the LLM backends. A provider without an API
// key is treated as unconfigured and never registered with the router.
type ProvidersConfig struct {
	// Order is the fallback priority, e.g. ["gemini", "openai"].
	Order []string

	GeminiAPIKey string
	GeminiModel  string

	OpenAIAPIKey string
	OpenAIModel  string
}

// StoreConfig configures the durable store and blob bucket.
type StoreConfig struct {
	ProjectID string
	Dataset   string
	Bucket    string
}

// WorkerConfig configures the batch worker pool and retry policy.
type WorkerConfig struct {
	WorkerCount int
	MaxRetries  int
	QueueBuffer int
}

// Load reads configuration from the environment. A missing .env file is
// not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Providers: ProvidersConfig{
			Order:        splitList(getEnv("LLM_PROVIDER_ORDER", "gemini,openai")),
			GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
			GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
			OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		},
		Store: StoreConfig{
			ProjectID: os.Getenv("GCP_PROJECT_ID"),
			Dataset:   getEnv("BQ_DATASET", "finance"),
			Bucket:    os.Getenv("GCS_BUCKET"),
		},
		Worker: WorkerConfig{
			WorkerCount: getEnvInt("WORKER_COUNT", 5),
			MaxRetries:  getEnvInt("MAX_RETRIES", 3),
			QueueBuffer: getEnvInt("QUEUE_BUFFER", 100),
		},
		CategorySeedFile: os.Getenv("CATEGORY_SEED_FILE"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Worker.WorkerCount < 1 {
		return fmt.Errorf("config: WORKER_COUNT must be at least 1, got %d", c.Worker.WorkerCount)
	}
	if c.Worker.MaxRetries < 0 {
		return fmt.Errorf("config: MAX_RETRIES must not be negative, got %d", c.Worker.MaxRetries)
	}
	for _, name := range c.Providers.Order {
		switch name {
		case "gemini", "openai":
		default:
			return fmt.Errorf("config: unknown provider %q in LLM_PROVIDER_ORDER", name)
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
