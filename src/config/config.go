package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application.
// The values are loaded from environment variables.
type AppConfig struct {
	// Core settings
	Port     string
	LogLevel string

	// Workbook settings
	WorkbookPath        string
	PositionsSheetName  string
	SnapshotSheetPrefix string
	WorkbookCacheTTL    time.Duration

	// Data sources
	PriceSources         []string
	YahooBaseURL         string
	YahooRequestInterval time.Duration

	// Scheduler settings
	SchedulerEnabled  bool
	SchedulerInterval time.Duration

	// Telegram notifications
	TelegramBotToken string
	TelegramChatID   string
}

// Cfg is a global instance of the AppConfig.
var Cfg *AppConfig

// LoadConfig loads configuration from environment variables or a .env file.
// It centralizes all configuration logic for the application.
func LoadConfig() {
	// 1. Try loading from the current directory (standard behavior)
	errEnv := godotenv.Load()

	// 2. If not found, try loading from the parent directory (common when running from /backend)
	if errEnv != nil {
		errEnv = godotenv.Load("../.env")
	}

	if errEnv != nil {
		if os.IsNotExist(errEnv) {
			log.Println("Info: No .env file found in current or parent directory. Relying on OS environment variables (expected in production).")
		} else {
			log.Printf("Warning: Error loading .env file: %v. Relying on OS environment variables.", errEnv)
		}
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	Cfg = &AppConfig{
		// Core
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Workbook
		WorkbookPath:        getEnv("WORKBOOK_PATH", "./portfolio.xlsx"),
		PositionsSheetName:  getEnv("POSITIONS_SHEET_NAME", "Posicoes"),
		SnapshotSheetPrefix: getEnv("SNAPSHOT_SHEET_PREFIX", "base"),
		WorkbookCacheTTL:    getEnvAsDuration("WORKBOOK_CACHE_TTL", 5*time.Minute),

		// Data sources
		PriceSources:         getEnvAsList("PRICE_SOURCES", "yahoo"),
		YahooBaseURL:         getEnv("YAHOO_BASE_URL", "https://query1.finance.yahoo.com"),
		YahooRequestInterval: getEnvAsDuration("YAHOO_REQUEST_INTERVAL", 250*time.Millisecond),

		// Scheduler
		SchedulerEnabled:  getEnvAsBool("SCHEDULER_ENABLED", false),
		SchedulerInterval: getEnvAsDuration("SCHEDULER_INTERVAL", 24*time.Hour),

		// Telegram
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, Workbook=%s, PositionsSheet=%s",
		Cfg.Port, Cfg.LogLevel, Cfg.WorkbookPath, Cfg.PositionsSheetName)
}

// getEnv retrieves an environment variable or returns a fallback value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Environment variable %s not set, using default: %s", key, fallback)
	return fallback
}

// getEnvAsDuration retrieves an environment variable as a time.Duration or returns a fallback.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}

// getEnvAsBool retrieves an environment variable as a bool or returns a fallback.
func getEnvAsBool(key string, fallback bool) bool {
	switch strings.ToLower(getEnv(key, "")) {
	case "":
		return fallback
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	log.Printf("Invalid boolean value for %s, using default: %t", key, fallback)
	return fallback
}

// getEnvAsList retrieves a comma-separated environment variable as a string slice.
func getEnvAsList(key, fallback string) []string {
	valueStr := getEnv(key, fallback)
	if strings.TrimSpace(valueStr) == "" {
		return []string{}
	}
	parts := strings.Split(valueStr, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
