package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port      string
	DBConn    string
	LogLevel  string
	JWTSecret string
	CBRURL    string

	SMTPHost      string
	SMTPPort      string
	SMTPUsername  string
	SMTPPassword  string
	SenderEmail   string
	ReminderEmail string

	ReminderHour        int
	Location            *time.Location
	DeliveryCron        string
	HorizonCron         string
	DefaultCurrency     string
	DefaultLeadTimeDays int
}

// NewConfig loads configuration from environment variables
func NewConfig() (*Config, error) {
	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		DBConn:    getEnv("DB_CONN", "host=localhost port=5436 user=test password=test dbname=tracker sslmode=disable"),
		LogLevel:  getEnv("LOG_LEVEL", "INFO"),
		JWTSecret: getEnv("JWT_SECRET", "secret"),
		CBRURL:    getEnv("CBR_URL", "https://www.cbr.ru/DailyInfoWebServ/DailyInfo.asmx"),

		SMTPHost:      getEnv("SMTP_HOST", "localhost"),
		SMTPPort:      getEnv("SMTP_PORT", "1025"),
		SMTPUsername:  getEnv("SMTP_USERNAME", ""),
		SMTPPassword:  getEnv("SMTP_PASSWORD", ""),
		SenderEmail:   getEnv("SENDER_EMAIL", "reminders@localhost"),
		ReminderEmail: getEnv("REMINDER_EMAIL", "owner@localhost"),

		DeliveryCron:    getEnv("DELIVERY_CRON", "@every 1m"),
		HorizonCron:     getEnv("HORIZON_CRON", "5 0 * * *"),
		DefaultCurrency: getEnv("DEFAULT_CURRENCY", "USD"),
	}

	if cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.ReminderEmail == "" {
		return nil, fmt.Errorf("REMINDER_EMAIL is required")
	}
	if len(cfg.DefaultCurrency) != 3 {
		return nil, fmt.Errorf("DEFAULT_CURRENCY must be a 3-letter code, got %q", cfg.DefaultCurrency)
	}

	var err error
	if cfg.ReminderHour, err = getEnvInt("REMINDER_HOUR", 9, 0, 23); err != nil {
		return nil, err
	}
	if cfg.DefaultLeadTimeDays, err = getEnvInt("DEFAULT_LEAD_TIME_DAYS", 1, 0, 7); err != nil {
		return nil, err
	}

	tz := getEnv("TIMEZONE", "UTC")
	if cfg.Location, err = time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", tz, err)
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal, min, max int) (int, error) {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	if value < min || value > max {
		return 0, fmt.Errorf("%s must be between %d and %d, got %d", key, min, max, value)
	}
	return value, nil
}
