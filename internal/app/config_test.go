package app

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.APIAddr != ":8080" {
		t.Errorf("expected APIAddr :8080, got %s", cfg.APIAddr)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("expected MetricsAddr :9090, got %s", cfg.MetricsAddr)
	}
	if cfg.StorageDriver != "memory" {
		t.Errorf("expected memory storage by default, got %s", cfg.StorageDriver)
	}
	if cfg.DeliveryFeeMinor != 60 {
		t.Errorf("expected delivery fee 60, got %d", cfg.DeliveryFeeMinor)
	}
	if cfg.SurchargeBP != 200 {
		t.Errorf("expected surcharge 200 bp, got %d", cfg.SurchargeBP)
	}
	if cfg.IdempotencyTTL != 24*time.Hour {
		t.Errorf("expected idempotency ttl 24h, got %s", cfg.IdempotencyTTL)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("PIECOM_API_ADDR", ":8888")
	t.Setenv("PIECOM_STORAGE", "postgres")
	t.Setenv("PIECOM_POSTGRES_DSN", "postgres://localhost/piecom")
	t.Setenv("PIECOM_SURCHARGE_PERCENT", "2.5")
	t.Setenv("PIECOM_DELIVERY_FEE_MINOR", "100")
	t.Setenv("PIECOM_CONFIRM_CAPTURE", "true")
	t.Setenv("PIECOM_IDEMPOTENCY_TTL", "1h")
	t.Setenv("PIECOM_ALLOWED_ORIGINS", "https://shop.example.com, https://admin.example.com")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.APIAddr != ":8888" {
		t.Errorf("unexpected api addr: %s", cfg.APIAddr)
	}
	if cfg.StorageDriver != "postgres" || cfg.PostgresDSN != "postgres://localhost/piecom" {
		t.Errorf("unexpected storage config: %s %s", cfg.StorageDriver, cfg.PostgresDSN)
	}
	if cfg.SurchargeBP != 250 {
		t.Errorf("expected 250 bp for 2.5%%, got %d", cfg.SurchargeBP)
	}
	if cfg.DeliveryFeeMinor != 100 {
		t.Errorf("expected delivery fee 100, got %d", cfg.DeliveryFeeMinor)
	}
	if !cfg.ConfirmCapture {
		t.Error("expected confirm capture enabled")
	}
	if cfg.IdempotencyTTL != time.Hour {
		t.Errorf("expected ttl 1h, got %s", cfg.IdempotencyTTL)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != "https://shop.example.com" {
		t.Errorf("unexpected allowed origins: %v", cfg.AllowedOrigins)
	}
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"bad surcharge", "PIECOM_SURCHARGE_PERCENT", "abc"},
		{"surcharge too precise", "PIECOM_SURCHARGE_PERCENT", "2.505"},
		{"surcharge out of range", "PIECOM_SURCHARGE_PERCENT", "100"},
		{"negative surcharge", "PIECOM_SURCHARGE_PERCENT", "-1"},
		{"bad delivery fee", "PIECOM_DELIVERY_FEE_MINOR", "-5"},
		{"bad ttl", "PIECOM_IDEMPOTENCY_TTL", "soon"},
		{"bad confirm flag", "PIECOM_CONFIRM_CAPTURE", "maybe"},
		{"bad redis db", "PIECOM_REDIS_DB", "x"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := LoadConfig(); err == nil {
				t.Fatalf("expected error for %s=%s", tc.key, tc.value)
			}
		})
	}
}

func TestSurchargePercentToBP(t *testing.T) {
	cases := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{"2", 200, false},
		{"2.5", 250, false},
		{"0.01", 1, false},
		{"0", 0, false},
		{" 3 ", 300, false},
		{"2.505", 0, true},
		{"100", 0, true},
		{"-0.5", 0, true},
		{"", 0, true},
	}

	for _, tc := range cases {
		got, err := surchargePercentToBP(tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Errorf("%q: expected error", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error: %v", tc.raw, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%q: expected %d bp, got %d", tc.raw, tc.want, got)
		}
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := splitAndTrim("a, b ,,c")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("unexpected result: %v", got)
	}
	if strings.Join(splitAndTrim(" , "), "") != "" {
		t.Error("expected empty result for blank input")
	}
}
