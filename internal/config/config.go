package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"balloon/internal/extraction"
	"balloon/internal/logger"
	"balloon/internal/matching"
	"balloon/internal/ocr"
	"balloon/internal/structure"
)

type Config struct {
	// OpenAI Configuration
	OpenAIAPIKey      string
	OpenAIModel       string
	OpenAITemperature float32

	// Structuring pool
	StructureWorkers    int
	StructureTimeout    time.Duration
	StructureRatePerSec float64
	StructureMaxRetries int
	// HeuristicFirst skips the semantic client for callouts the local
	// parser recognizes completely.
	StructureHeuristicFirst bool

	// Extraction
	PageWorkers int
	OCRProvider string

	// Google Cloud Configuration
	GoogleCloudProject    string
	GoogleCloudLocation   string
	DocumentAIProcessorID string

	// Google Sheets Configuration
	GoogleSheetURL       string
	GoogleSheetWorksheet string

	// Matching
	MatchNominalTolerance float64
	MatchConfidenceFloor  int

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	env := &envReader{}
	config := &Config{
		OpenAIAPIKey:            env.get("OPENAI_API_KEY", ""),
		OpenAIModel:             env.get("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAITemperature:       float32(env.getFloat("OPENAI_TEMPERATURE", 0)),
		StructureWorkers:        env.getInt("STRUCTURE_WORKERS", 8),
		StructureTimeout:        env.getDuration("STRUCTURE_TIMEOUT", 20*time.Second),
		StructureRatePerSec:     env.getFloat("STRUCTURE_RATE_PER_SEC", 5),
		StructureMaxRetries:     env.getInt("STRUCTURE_MAX_RETRIES", 2),
		StructureHeuristicFirst: env.getBool("STRUCTURE_HEURISTIC_FIRST", true),
		PageWorkers:             env.getInt("PAGE_WORKERS", 4),
		OCRProvider:             env.get("OCR_PROVIDER", ocr.ProviderVision),
		GoogleCloudProject:      env.get("GOOGLE_CLOUD_PROJECT", ""),
		GoogleCloudLocation:     env.get("GOOGLE_CLOUD_LOCATION", "us"),
		DocumentAIProcessorID:   env.get("DOCUMENT_AI_PROCESSOR_ID", ""),
		GoogleSheetURL:          env.get("GOOGLE_SHEET_URL", ""),
		GoogleSheetWorksheet:    env.get("GOOGLE_SHEET_WORKSHEET", "Inspection"),
		MatchNominalTolerance:   env.getFloat("MATCH_NOMINAL_TOLERANCE", matching.DefaultNominalTolerance),
		MatchConfidenceFloor:    env.getInt("MATCH_CONFIDENCE_FLOOR", matching.DefaultFloor),
		LogLevel:                env.get("LOG_LEVEL", "info"),
		LogFormat:               env.get("LOG_FORMAT", "console"),
		LogTimeFormat:           env.get("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:               env.get("LOG_OUTPUT", "stderr"),
	}

	if err := env.err(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	if c.StructureWorkers <= 0 {
		return fmt.Errorf("STRUCTURE_WORKERS must be positive, got %d", c.StructureWorkers)
	}
	if c.PageWorkers <= 0 {
		return fmt.Errorf("PAGE_WORKERS must be positive, got %d", c.PageWorkers)
	}
	if c.StructureTimeout <= 0 {
		return fmt.Errorf("STRUCTURE_TIMEOUT must be positive, got %s", c.StructureTimeout)
	}
	if c.StructureRatePerSec < 0 {
		return fmt.Errorf("STRUCTURE_RATE_PER_SEC must not be negative")
	}
	if c.StructureMaxRetries < 0 {
		return fmt.Errorf("STRUCTURE_MAX_RETRIES must not be negative")
	}
	if c.MatchNominalTolerance < 0 {
		return fmt.Errorf("MATCH_NOMINAL_TOLERANCE must not be negative")
	}
	if c.MatchConfidenceFloor < 0 || c.MatchConfidenceFloor > 100 {
		return fmt.Errorf("MATCH_CONFIDENCE_FLOOR must be between 0 and 100, got %d", c.MatchConfidenceFloor)
	}
	switch c.OCRProvider {
	case ocr.ProviderVision, ocr.ProviderDocumentAI, ocr.ProviderTesseract, ocr.ProviderNone:
	default:
		return fmt.Errorf("unknown OCR_PROVIDER %q", c.OCRProvider)
	}
	if c.OCRProvider == ocr.ProviderDocumentAI && (c.GoogleCloudProject == "" || c.DocumentAIProcessorID == "") {
		return fmt.Errorf("GOOGLE_CLOUD_PROJECT and DOCUMENT_AI_PROCESSOR_ID are required for the documentai provider")
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

// StructureConfig returns the structuring pool settings.
func (c *Config) StructureConfig() structure.Config {
	return structure.Config{
		Workers:        c.StructureWorkers,
		Timeout:        c.StructureTimeout,
		RatePerSecond:  c.StructureRatePerSec,
		HeuristicFirst: c.StructureHeuristicFirst,
	}
}

// OpenAIConfig returns the semantic client settings. ok is false without an API key.
func (c *Config) OpenAIConfig() (cfg structure.OpenAIConfig, ok bool) {
	return structure.OpenAIConfig{
		APIKey:      c.OpenAIAPIKey,
		Model:       c.OpenAIModel,
		Temperature: c.OpenAITemperature,
		MaxRetries:  c.StructureMaxRetries,
	}, c.OpenAIAPIKey != ""
}

// OCRConfig returns the recognizer settings.
func (c *Config) OCRConfig() ocr.Config {
	return ocr.Config{
		Provider:    c.OCRProvider,
		ProjectID:   c.GoogleCloudProject,
		Location:    c.GoogleCloudLocation,
		ProcessorID: c.DocumentAIProcessorID,
	}
}

// ExtractionConfig returns the page pipeline settings.
func (c *Config) ExtractionConfig() extraction.Config {
	return extraction.Config{
		PageWorkers: c.PageWorkers,
	}
}

// MatchConfig returns the matcher rules and floor.
func (c *Config) MatchConfig() matching.Config {
	return matching.NewConfig(c.MatchNominalTolerance, c.MatchConfidenceFloor)
}

// envReader reads typed settings and remembers every value it could not parse.
type envReader struct {
	errs []error
}

func (r *envReader) get(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (r *envReader) parse(key string, parse func(string) error) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	if err := parse(raw); err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s %q: %w", key, raw, err))
	}
}

func (r *envReader) getInt(key string, defaultValue int) int {
	v := defaultValue
	r.parse(key, func(raw string) error {
		n, err := strconv.Atoi(raw)
		if err == nil {
			v = n
		}
		return err
	})
	return v
}

func (r *envReader) getFloat(key string, defaultValue float64) float64 {
	v := defaultValue
	r.parse(key, func(raw string) error {
		f, err := strconv.ParseFloat(raw, 64)
		if err == nil {
			v = f
		}
		return err
	})
	return v
}

func (r *envReader) getDuration(key string, defaultValue time.Duration) time.Duration {
	v := defaultValue
	r.parse(key, func(raw string) error {
		d, err := time.ParseDuration(raw)
		if err == nil {
			v = d
		}
		return err
	})
	return v
}

func (r *envReader) getBool(key string, defaultValue bool) bool {
	v := defaultValue
	r.parse(key, func(raw string) error {
		b, err := strconv.ParseBool(raw)
		if err == nil {
			v = b
		}
		return err
	})
	return v
}

func (r *envReader) err() error {
	return errors.Join(r.errs...)
}
