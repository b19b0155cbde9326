package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config описывает настройки запуска витрины. Все значения читаются из
// окружения с префиксом PIECOM_, .env подхватывается при наличии.
type Config struct {
	APIAddr        string
	MetricsAddr    string
	AllowedOrigins []string
	JWTSecret      string

	// StorageDriver — memory или postgres.
	StorageDriver string
	PostgresDSN   string

	// RedisAddr пустой — кеш корзин выключен.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// KafkaBrokers пустой — события не публикуются, fulfillment не слушается.
	KafkaBrokers string

	// GatewayBaseURL пустой — вместо HTTP-клиента шлюза используется mock
	// с тем же секретом (локальная разработка).
	GatewayBaseURL   string
	GatewayKeyID     string
	GatewayKeySecret string
	GatewayTimeout   time.Duration
	ConfirmCapture   bool

	DeliveryFeeMinor int64
	// SurchargeBP — комиссия шлюза в базисных пунктах (200 = 2%).
	SurchargeBP int64
	Currency    string

	IdempotencyTTL time.Duration
}

// DefaultConfig возвращает конфигурацию для локального запуска без
// внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		APIAddr:          ":8080",
		MetricsAddr:      ":9090",
		JWTSecret:        "dev-secret",
		StorageDriver:    "memory",
		GatewayKeySecret: "dev-gateway-secret",
		DeliveryFeeMinor: 60,
		SurchargeBP:      200,
		Currency:         "INR",
		IdempotencyTTL:   24 * time.Hour,
	}
}

// LoadConfig собирает конфигурацию из окружения поверх значений по
// умолчанию. Ставка комиссии задаётся в процентах десятичной строкой
// (PIECOM_SURCHARGE_PERCENT=2.5) и переводится в базисные пункты без
// плавающей точки.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	setString(&cfg.APIAddr, "PIECOM_API_ADDR")
	setString(&cfg.MetricsAddr, "PIECOM_METRICS_ADDR")
	setString(&cfg.JWTSecret, "PIECOM_JWT_SECRET")
	setString(&cfg.StorageDriver, "PIECOM_STORAGE")
	setString(&cfg.PostgresDSN, "PIECOM_POSTGRES_DSN")
	setString(&cfg.RedisAddr, "PIECOM_REDIS_ADDR")
	setString(&cfg.RedisPassword, "PIECOM_REDIS_PASSWORD")
	setString(&cfg.KafkaBrokers, "PIECOM_KAFKA_BROKERS")
	setString(&cfg.GatewayBaseURL, "PIECOM_GATEWAY_BASE_URL")
	setString(&cfg.GatewayKeyID, "PIECOM_GATEWAY_KEY_ID")
	setString(&cfg.GatewayKeySecret, "PIECOM_GATEWAY_KEY_SECRET")
	setString(&cfg.Currency, "PIECOM_CURRENCY")

	if v := os.Getenv("PIECOM_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitAndTrim(v)
	}

	if v := os.Getenv("PIECOM_REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse PIECOM_REDIS_DB: %w", err)
		}
		cfg.RedisDB = db
	}

	if v := os.Getenv("PIECOM_GATEWAY_TIMEOUT"); v != "" {
		timeout, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse PIECOM_GATEWAY_TIMEOUT: %w", err)
		}
		cfg.GatewayTimeout = timeout
	}

	if v := os.Getenv("PIECOM_CONFIRM_CAPTURE"); v != "" {
		confirm, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse PIECOM_CONFIRM_CAPTURE: %w", err)
		}
		cfg.ConfirmCapture = confirm
	}

	if v := os.Getenv("PIECOM_DELIVERY_FEE_MINOR"); v != "" {
		fee, err := strconv.ParseInt(v, 10, 64)
		if err != nil || fee < 0 {
			return Config{}, fmt.Errorf("PIECOM_DELIVERY_FEE_MINOR must be a non-negative integer, got %q", v)
		}
		cfg.DeliveryFeeMinor = fee
	}

	if v := os.Getenv("PIECOM_SURCHARGE_PERCENT"); v != "" {
		bp, err := surchargePercentToBP(v)
		if err != nil {
			return Config{}, err
		}
		cfg.SurchargeBP = bp
	}

	if v := os.Getenv("PIECOM_IDEMPOTENCY_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse PIECOM_IDEMPOTENCY_TTL: %w", err)
		}
		cfg.IdempotencyTTL = ttl
	}

	return cfg, nil
}

// surchargePercentToBP переводит процентную ставку в базисные пункты.
// Допустима точность до сотой процента: 2.5% -> 250 bp, 0.01% -> 1 bp.
func surchargePercentToBP(raw string) (int64, error) {
	percent, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse PIECOM_SURCHARGE_PERCENT: %w", err)
	}

	bp := percent.Mul(decimal.NewFromInt(100))
	if !bp.IsInteger() {
		return 0, fmt.Errorf("PIECOM_SURCHARGE_PERCENT precision is limited to 0.01%%, got %s", raw)
	}
	value := bp.IntPart()
	if value < 0 || value >= 10000 {
		return 0, fmt.Errorf("PIECOM_SURCHARGE_PERCENT must be in [0, 100), got %s", raw)
	}
	return value, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
