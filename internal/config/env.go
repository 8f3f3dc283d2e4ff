package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// DatabaseConfig defines the sqlite database location.
type DatabaseConfig struct {
	Path string
}

// OpenAIConfig defines the text-understanding provider parameters.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// OCRConfig defines recognition language, rasterization DPI and input formats.
type OCRConfig struct {
	Language         string
	DPI              int
	Preprocessing    bool
	SupportedFormats []string
}

// RedisConfig defines the optional run-status store connection.
type RedisConfig struct {
	URL string
}

// ArchiveConfig defines where digitized book JSON archives are written.
// Empty Dir and Bucket disable archiving. A non-empty Password seals
// archives with AES-GCM.
type ArchiveConfig struct {
	Dir      string
	Bucket   string
	Password string
}

// Config is the top-level configuration.
type Config struct {
	Logging  LoggingConfig
	Axiom    AxiomConfig
	Database DatabaseConfig
	OpenAI   OpenAIConfig
	OCR      OCRConfig
	Redis    RedisConfig
	Archive  ArchiveConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/bookdigitizer.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_bookdigitizer",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Database = DatabaseConfig{
		Path: getEnv("BOOKS_DB_PATH", defaultDBPath()),
	}

	cfg.OpenAI = OpenAIConfig{
		APIKey:      getEnv("OPENAI_API_KEY", ""),
		Model:       getEnv("OPENAI_MODEL", "gpt-4o"),
		MaxTokens:   parseInt(getEnv("OPENAI_MAX_TOKENS", "4096"), 4096),
		Temperature: parseFloat(getEnv("OPENAI_TEMPERATURE", "0.2"), 0.2),
		Timeout:     parseDuration(getEnv("OPENAI_TIMEOUT", "60s"), 60*time.Second),
	}

	cfg.OCR = OCRConfig{
		Language:         getEnv("TESSERACT_LANG", "eng"),
		DPI:              parseInt(getEnv("OCR_DPI", "300"), 300),
		Preprocessing:    parseBool(getEnv("OCR_PREPROCESSING", "true")),
		SupportedFormats: parseList(getEnv("OCR_FORMATS", ".png,.jpg,.jpeg,.tiff,.bmp,.pdf")),
	}

	cfg.Redis = RedisConfig{
		URL: getEnv("REDIS_URL", ""),
	}

	cfg.Archive = ArchiveConfig{
		Dir:      getEnv("ARCHIVE_DIR", ""),
		Bucket:   getEnv("ARCHIVE_S3_BUCKET", ""),
		Password: getEnv("ARCHIVE_PASSWORD", ""),
	}

	return cfg
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".bookdigitizer", "books.db")
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func parseList(s string) []string {
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

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
