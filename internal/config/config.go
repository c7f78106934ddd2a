package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Env                   string
	Port                  string
	AllowedOrigin         string
	DatabaseDriver        string
	DatabaseURL           string
	MigrateOnStart        bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	AuthSecret            string
	AccessTokenTTLMinutes int
	LowStockThreshold     int
	ExpiryWindowDays      int
	PurgeIntervalSeconds  int
	AlertCacheTTLSeconds  int
	ReceiptSink           string
	ReceiptDir            string
	S3Endpoint            string
	S3Region              string
	S3Bucket              string
	S3AccessKey           string
	S3SecretKey           string
	S3Prefix              string
	S3UsePathStyle        bool
	S3UseSSL              bool
	LogLevel              string
	LogFormat             string
}

// Load reads the environment. Values from a .env file in the working
// directory (or ENV_FILE) fill in variables that are not already set.
func Load() Config {
	envFile := getEnv("ENV_FILE", ".env")
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	driver := strings.ToLower(strings.TrimSpace(os.Getenv("DATABASE_DRIVER")))
	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if driver == "" {
		driver = "memory"
		if databaseURL != "" {
			driver = "postgres"
		}
	}

	cfg := Config{
		Env:                   getEnv("APP_ENV", "development"),
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseDriver:        driver,
		DatabaseURL:           databaseURL,
		MigrateOnStart:        getBool("MIGRATE_ON_START", true),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               getInt("REDIS_DB", 0, 0),
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: getInt("ACCESS_TOKEN_TTL_MINUTES", 480, 1),
		LowStockThreshold:     getInt("LOW_STOCK_THRESHOLD", 10, 0),
		ExpiryWindowDays:      getInt("EXPIRY_WINDOW_DAYS", 90, 1),
		PurgeIntervalSeconds:  getInt("PURGE_INTERVAL_SECONDS", 60, 1),
		AlertCacheTTLSeconds:  getInt("ALERT_CACHE_TTL_SECONDS", 300, 1),
		ReceiptSink:           strings.ToLower(getEnv("RECEIPT_SINK", "file")),
		ReceiptDir:            getEnv("RECEIPT_DIR", "receipts"),
		S3Endpoint:            os.Getenv("S3_ENDPOINT"),
		S3Region:              getEnv("S3_REGION", "us-east-1"),
		S3Bucket:              os.Getenv("S3_BUCKET"),
		S3AccessKey:           os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:           os.Getenv("S3_SECRET_KEY"),
		S3Prefix:              getEnv("S3_PREFIX", "receipts"),
		S3UsePathStyle:        getBool("S3_USE_PATH_STYLE", true),
		S3UseSSL:              getBool("S3_USE_SSL", false),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogFormat:             getEnv("LOG_FORMAT", "console"),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getInt(key string, fallback int, min int) int {
	val, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || val < min {
		return fallback
	}
	return val
}

func getBool(key string, fallback bool) bool {
	val, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return val
}
