package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/placement/internal/config"
)

func TestInit_WithValidConfig_Succeeds(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg == nil {
		t.Fatal("expected non-nil config")
	}

	if cfg.DatabaseURL != testDatabaseURL {
		t.Errorf("DatabaseURL = %q, want %q", cfg.DatabaseURL, testDatabaseURL)
	}

	// グローバルロガーがJSON出力に設定されていること
	slog.Default().Info("init test")
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log output, got error: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "init test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "init test")
	}
}

func TestInit_WithMissingConfig_ReturnsError(t *testing.T) {
	clearRequiredEnv(t)

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err == nil {
		t.Fatal("expected error for missing required env vars, got nil")
	}
	if cfg != nil {
		t.Error("expected nil config on error")
	}
}

func TestNewRateLimiter_LocalWithoutRedis(t *testing.T) {
	cfg := &config.Config{RateLimitGeneral: 60, RateLimitApply: 5}

	rl, closeFn, err := newRateLimiter(cfg)
	if err != nil {
		t.Fatalf("newRateLimiter() error = %v", err)
	}
	defer closeFn()

	if rl == nil {
		t.Fatal("expected non-nil rate limiter")
	}
}

func TestNewRateLimiter_InvalidRedisURL(t *testing.T) {
	cfg := &config.Config{RedisURL: "://not-a-url"}

	_, _, err := newRateLimiter(cfg)
	if err == nil {
		t.Fatal("expected error for invalid REDIS_URL")
	}
}

// Redisに接続できなくても生成は成功し、リクエストは許可側に倒れる
func TestNewRateLimiter_WithRedisURL(t *testing.T) {
	cfg := &config.Config{RedisURL: "redis://127.0.0.1:1/0"}

	rl, closeFn, err := newRateLimiter(cfg)
	if err != nil {
		t.Fatalf("newRateLimiter() error = %v", err)
	}
	defer closeFn()

	if rl == nil {
		t.Fatal("expected non-nil rate limiter")
	}
}

func TestNewMetrics_ExposesCollectorOutput(t *testing.T) {
	collector, h := newMetrics()
	if collector == nil || h == nil {
		t.Fatal("expected collector and handler")
	}
	collector.RecordOffersExpired(2)
	collector.RecordCareersFetch(true, 150*time.Millisecond)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := w.Body.String()
	for _, name := range []string{"placement_offers_expired_total 2", "placement_careers_fetch_total", "go_goroutines"} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %q", name)
		}
	}
}

func TestMaskDatabaseURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgres://user:secret@db:5432/placement", "postgres://u***@..."},
		{"short", "***"},
	}
	for _, tt := range tests {
		if got := maskDatabaseURL(tt.in); got != tt.want {
			t.Errorf("maskDatabaseURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
