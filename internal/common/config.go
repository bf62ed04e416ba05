package common

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Inventory InventoryConfig
	Order     OrderConfig
	Pipeline  PipelineConfig
	Storage   StorageConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr        string
	MetricsAddr string
}

// InventoryConfig holds MoySklad API configuration
type InventoryConfig struct {
	BaseURL       string
	Token         string
	StoreID       string
	LookupTimeout time.Duration
}

// OrderConfig holds the fixed references a customer order is created with
type OrderConfig struct {
	OrganizationID string
	CounterpartyID string
	StoreID        string
	ProjectID      string
	CurrencyHref   string
	VatPercent     int
	SubmitTimeout  time.Duration
}

// PipelineConfig holds enrichment pipeline tuning
type PipelineConfig struct {
	Workers       int
	RowDelay      time.Duration
	LookupDelay   time.Duration
	SaveRetries   int
	SaveDelay     time.Duration
	SweepInterval time.Duration
	JobRetention  time.Duration
}

// StorageConfig holds artifact directories and retention
type StorageConfig struct {
	UploadDir   string
	ResultDir   string
	MaxResults  int
	RecentFiles int
}

// LoadConfig loads configuration from environment variables, then overlays the
// optional JSON file named by TOCKA_CONFIG_FILE (validated against configSchema).
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:        getEnv("TOCKA_ADDR", ":8080"),
			MetricsAddr: getEnv("TOCKA_METRICS_ADDR", ":8081"),
		},
		Inventory: InventoryConfig{
			BaseURL:       getEnv("MOYSKLAD_BASE_URL", "https://api.moysklad.ru/api/remap/1.2"),
			Token:         getEnv("MOYSKLAD_TOKEN", ""),
			StoreID:       getEnv("MOYSKLAD_STORE_ID", ""),
			LookupTimeout: getEnvAsDuration("MOYSKLAD_LOOKUP_TIMEOUT", 15*time.Second),
		},
		Order: OrderConfig{
			OrganizationID: getEnv("ORDER_ORGANIZATION_ID", ""),
			CounterpartyID: getEnv("ORDER_COUNTERPARTY_ID", ""),
			StoreID:        getEnv("ORDER_STORE_ID", ""),
			ProjectID:      getEnv("ORDER_PROJECT_ID", ""),
			CurrencyHref:   getEnv("ORDER_CURRENCY_HREF", "https://api.moysklad.ru/api/remap/1.2/entity/currency/643"),
			VatPercent:     getEnvAsInt("ORDER_VAT_PERCENT", 20),
			SubmitTimeout:  getEnvAsDuration("ORDER_SUBMIT_TIMEOUT", 30*time.Second),
		},
		Pipeline: PipelineConfig{
			Workers:       getEnvAsInt("PIPELINE_WORKERS", 3),
			RowDelay:      getEnvAsDuration("PIPELINE_ROW_DELAY", 50*time.Millisecond),
			LookupDelay:   getEnvAsDuration("PIPELINE_LOOKUP_DELAY", 100*time.Millisecond),
			SaveRetries:   getEnvAsInt("PIPELINE_SAVE_RETRIES", 5),
			SaveDelay:     getEnvAsDuration("PIPELINE_SAVE_DELAY", 3*time.Second),
			SweepInterval: getEnvAsDuration("PIPELINE_SWEEP_INTERVAL", time.Hour),
			JobRetention:  getEnvAsDuration("PIPELINE_JOB_RETENTION", 24*time.Hour),
		},
		Storage: StorageConfig{
			UploadDir:   getEnv("TOCKA_UPLOAD_DIR", "uploads"),
			ResultDir:   getEnv("TOCKA_RESULT_DIR", "results"),
			MaxResults:  getEnvAsInt("TOCKA_MAX_RESULTS", 50),
			RecentFiles: getEnvAsInt("TOCKA_RECENT_FILES", 10),
		},
	}

	if path := os.Getenv("TOCKA_CONFIG_FILE"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, WrapError(err, "config file")
		}
	}
	return cfg, nil
}

// configSchema constrains the overlay file; everything is optional, but a
// present key must carry the right shape.
const configSchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "addr":            {"type": "string", "minLength": 1},
    "metrics_addr":    {"type": "string", "minLength": 1},
    "base_url":        {"type": "string", "format": "uri"},
    "token":           {"type": "string", "minLength": 1},
    "store_id":        {"type": "string", "minLength": 36, "maxLength": 36},
    "organization_id": {"type": "string", "minLength": 36, "maxLength": 36},
    "counterparty_id": {"type": "string", "minLength": 36, "maxLength": 36},
    "project_id":      {"type": "string", "minLength": 36, "maxLength": 36},
    "workers":         {"type": "integer", "minimum": 1, "maximum": 16},
    "upload_dir":      {"type": "string", "minLength": 1},
    "result_dir":      {"type": "string", "minLength": 1},
    "max_results":     {"type": "integer", "minimum": 1}
  }
}`

type fileOverlay struct {
	Addr           string `json:"addr"`
	MetricsAddr    string `json:"metrics_addr"`
	BaseURL        string `json:"base_url"`
	Token          string `json:"token"`
	StoreID        string `json:"store_id"`
	OrganizationID string `json:"organization_id"`
	CounterpartyID string `json:"counterparty_id"`
	ProjectID      string `json:"project_id"`
	Workers        int    `json:"workers"`
	UploadDir      string `json:"upload_dir"`
	ResultDir      string `json:"result_dir"`
	MaxResults     int    `json:"max_results"`
}

func (c *Config) overlayFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("config.json", bytes.NewReader([]byte(configSchema))); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("config.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("validate %s: %w", path, err)
	}

	var o fileOverlay
	if err := json.Unmarshal(raw, &o); err != nil {
		return err
	}
	setIf(&c.Server.Addr, o.Addr)
	setIf(&c.Server.MetricsAddr, o.MetricsAddr)
	setIf(&c.Inventory.BaseURL, o.BaseURL)
	setIf(&c.Inventory.Token, o.Token)
	setIf(&c.Inventory.StoreID, o.StoreID)
	setIf(&c.Order.OrganizationID, o.OrganizationID)
	setIf(&c.Order.CounterpartyID, o.CounterpartyID)
	setIf(&c.Order.ProjectID, o.ProjectID)
	setIf(&c.Storage.UploadDir, o.UploadDir)
	setIf(&c.Storage.ResultDir, o.ResultDir)
	if o.Workers > 0 {
		c.Pipeline.Workers = o.Workers
	}
	if o.MaxResults > 0 {
		c.Storage.MaxResults = o.MaxResults
	}
	return nil
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Inventory.Token == "" {
		return NewAppError("CONFIG_ERROR", "MOYSKLAD_TOKEN is required", ErrInvalidInput)
	}
	if c.Inventory.StoreID == "" {
		return NewAppError("CONFIG_ERROR", "MOYSKLAD_STORE_ID is required", ErrInvalidInput)
	}
	if c.Server.Addr == "" {
		return NewAppError("CONFIG_ERROR", "TOCKA_ADDR is required", ErrInvalidInput)
	}
	if c.Pipeline.Workers <= 0 {
		return NewAppError("CONFIG_ERROR", "PIPELINE_WORKERS must be positive", ErrInvalidInput)
	}
	return nil
}
