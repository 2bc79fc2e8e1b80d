package config

import (
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port              string
	WorkerSrc         string
	WorkerConcurrency int
	// WorkerAllowLocalFiles lets the worker read bare paths and file:// locators.
	WorkerAllowLocalFiles bool
	UseReadability        bool
	DatabaseURL           string
	SslCertPath           string
	AwsAccessKey          string
	AwsSecretKey          string
	AwsRegion             string
	JWTSecret             string
	ClientID              string
	ClientSecretHash      string
	AllowedOrigins        []string
	LogLevel              string
}

// LoadConfig loads the environment variables and return config
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		Port:                  getEnv("PORT", "8080"),
		WorkerSrc:             getEnv("WORKER_SRC", "inproc:docconv"),
		WorkerConcurrency:     getEnvInt("WORKER_CONCURRENCY", 4),
		WorkerAllowLocalFiles: getEnvBool("WORKER_ALLOW_LOCAL_FILES", false),
		UseReadability:        getEnvBool("USE_READABILITY", false),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		SslCertPath:           getEnv("SSL_CERT_PATH", ""),
		AwsAccessKey:          getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:          getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:             getEnv("AWS_REGION", "us-east-2"),
		JWTSecret:             getEnv("JWT_SECRET", ""),
		ClientID:              getEnv("CLIENT_ID", "docloader"),
		ClientSecretHash:      getEnv("CLIENT_SECRET_HASH", ""),
		AllowedOrigins:        getEnvList("ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:8888"}),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
	}

	if cfg.WorkerConcurrency <= 0 {
		log.Printf("WARN: WORKER_CONCURRENCY=%d is not positive, using 1", cfg.WorkerConcurrency)
		cfg.WorkerConcurrency = 1
	}

	return cfg
}

// SlogLevel maps LOG_LEVEL onto a slog level; unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a bool, using default %t", key, v, def)
		return def
	}
	return b
}

func getEnvList(key string, def []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
