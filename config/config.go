package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	DatabaseURL      string

	StartURLs       []string
	MaxPages        int
	MaxItems        int
	MaxRetries      int
	DelayMinMs      int
	DelayMaxMs      int
	FetchMode       string
	FetchTimeoutSec int
	UserAgent       string
	ChromeBin       string

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3Region    string
	S3UseSSL    bool

	MaxImagesPerCar int
	ImageMaxSize    int
	ImageQuality    int

	ResultsDir     string
	LogLevel       string
	RunConcurrency int
}

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "scraper"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "scraper123"),
		PostgresDB:       getEnv("POSTGRES_DB", "olx_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),

		StartURLs:       splitList(getEnv("START_URLS", "https://www.olx.pt/carros/")),
		MaxPages:        getEnvInt("MAX_PAGES", 3),
		MaxItems:        getEnvInt("MAX_ITEMS", 50),
		MaxRetries:      getEnvInt("MAX_RETRIES", 3),
		DelayMinMs:      getEnvInt("DELAY_MIN_MS", 2000),
		DelayMaxMs:      getEnvInt("DELAY_MAX_MS", 4000),
		FetchMode:       getEnv("FETCH_MODE", "browser"),
		FetchTimeoutSec: getEnvInt("FETCH_TIMEOUT_SEC", 30),
		UserAgent:       getEnv("USER_AGENT", defaultUserAgent),
		ChromeBin:       getEnv("CHROME_BIN", ""),

		S3Endpoint:  getEnv("S3_ENDPOINT", "s3.amazonaws.com"),
		S3AccessKey: getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("S3_SECRET_KEY", ""),
		S3Bucket:    getEnv("S3_BUCKET", ""),
		S3Region:    getEnv("S3_REGION", "eu-west-1"),
		S3UseSSL:    getEnvBool("S3_USE_SSL", true),

		MaxImagesPerCar: getEnvInt("MAX_IMAGES_PER_CAR", 5),
		ImageMaxSize:    getEnvInt("IMAGE_MAX_SIZE", 1920),
		ImageQuality:    getEnvInt("IMAGE_QUALITY", 85),

		ResultsDir:     getEnv("RESULTS_DIR", "./results"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		RunConcurrency: getEnvInt("RUN_CONCURRENCY", 2),
	}
}

// DSN returns the PostgreSQL connection string. DATABASE_URL wins when set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
