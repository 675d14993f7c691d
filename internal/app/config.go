package app

import (
	"os"
	"strconv"
	"time"
)

// Config описывает настройки запуска приложения.
// Пустой PostgresDSN означает in-memory хранилище,
// пустой KafkaBrokers — работу без брокера событий.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	PostgresDSN  string
	KafkaBrokers string

	HourlyRateMinor int64
	MinFeeMinor     int64

	SweepInterval time.Duration
}

// DefaultConfig возвращает базовые настройки для локального запуска.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:        ":8080",
		MetricsAddr:     ":9090",
		HourlyRateMinor: 50,
		MinFeeMinor:     50,
		SweepInterval:   time.Minute,
	}
}

// ReadConfig формирует конфигурацию из переменных окружения
// поверх значений по умолчанию.
func ReadConfig() Config {
	cfg := DefaultConfig()
	if v := os.Getenv("PMS_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("PMS_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("PMS_POSTGRES_DSN"); v != "" {
		cfg.PostgresDSN = v
	}
	if v := os.Getenv("PMS_KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = v
	}
	if v, err := strconv.ParseInt(os.Getenv("PMS_HOURLY_RATE_MINOR"), 10, 64); err == nil && v > 0 {
		cfg.HourlyRateMinor = v
	}
	if v, err := strconv.ParseInt(os.Getenv("PMS_MIN_FEE_MINOR"), 10, 64); err == nil && v >= 0 {
		cfg.MinFeeMinor = v
	}
	if v, err := time.ParseDuration(os.Getenv("PMS_SWEEP_INTERVAL")); err == nil && v > 0 {
		cfg.SweepInterval = v
	}
	return cfg
}
