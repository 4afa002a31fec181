package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all runtime settings for the service. It is loaded once at
// startup and passed into the components that need it.
type Config struct {
	Server  ServerConfig
	Google  GoogleConfig
	Gemini  GeminiConfig
	Uploads UploadConfig
	Jobs    JobConfig
	Logger  LoggerConfig
}

type ServerConfig struct {
	Port string
}

type LoggerConfig struct {
	Level string
}

// GoogleConfig covers the Firestore record store and the GCS blob store.
type GoogleConfig struct {
	ProjectID          string
	StorageBucket      string
	ReceiptsCollection string
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type UploadConfig struct {
	// MaxFileSize is the upload size cap in bytes.
	MaxFileSize int64
	// AllowedFileTypes is the content-type allow-list for uploads.
	AllowedFileTypes []string
}

type JobConfig struct {
	QueueSize int
	Workers   int
}

// DefaultAllowedFileTypes is the upload content-type allow-list used when
// ALLOWED_FILE_TYPES is not set.
var DefaultAllowedFileTypes = []string{
	"image/jpeg", "image/png", "image/gif", "image/webp",
	"video/mp4", "video/webm", "image/jpg",
}

// Load reads configuration from a .env file (if present) and the
// environment. Missing values fall back to defaults; a missing Gemini API key
// is not an error, it just disables extraction.
func Load() *Config {
	// Best effort; environment variables win over the file either way.
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8000"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Google: GoogleConfig{
			ProjectID:          getEnv("GOOGLE_PROJECT_ID", ""),
			StorageBucket:      getEnv("STORAGE_BUCKET", ""),
			ReceiptsCollection: getEnv("RECEIPTS_COLLECTION", "receipts"),
		},
		Gemini: GeminiConfig{
			APIKey: getEnv("GEMINI_API_KEY", ""),
			Model:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		},
		Uploads: UploadConfig{
			MaxFileSize:      getEnvInt64("MAX_FILE_SIZE", 10*1024*1024),
			AllowedFileTypes: getEnvList("ALLOWED_FILE_TYPES", DefaultAllowedFileTypes),
		},
		Jobs: JobConfig{
			QueueSize: getEnvInt("JOB_QUEUE_SIZE", 100),
			Workers:   getEnvInt("JOB_WORKERS", 2),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
