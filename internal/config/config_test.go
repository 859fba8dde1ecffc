package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("TURN_SECRET_KEY", "test-secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Protocol != "https" || !cfg.UseTLS() {
		t.Errorf("Protocol = %q, want https default", cfg.Protocol)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.MaxChatMessages != 50 {
		t.Errorf("MaxChatMessages = %d, want 50", cfg.MaxChatMessages)
	}
	if cfg.ReconnectTTL != 10*time.Second {
		t.Errorf("ReconnectTTL = %v, want 10s", cfg.ReconnectTTL)
	}
	if cfg.PingInterval != 25*time.Second {
		t.Errorf("PingInterval = %v, want 25s", cfg.PingInterval)
	}
	if cfg.MaxUploadSizeMB != 50 || cfg.MaxAvatarSizeMB != 10 {
		t.Errorf("upload caps = %d/%d MiB, want 50/10", cfg.MaxUploadSizeMB, cfg.MaxAvatarSizeMB)
	}
	if cfg.TURNCredTTL != 24*time.Hour {
		t.Errorf("TURNCredTTL = %v, want 24h", cfg.TURNCredTTL)
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PROTOCOL", "http")
	t.Setenv("PORT", "9000")
	t.Setenv("MAX_CHAT_MESSAGES", "200")
	t.Setenv("RECONNECT_TTL", "30s")
	t.Setenv("SERVER_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.UseTLS() {
		t.Error("UseTLS() = true with PROTOCOL=http")
	}
	if cfg.Port != 9000 || cfg.MaxChatMessages != 200 || cfg.ReconnectTTL != 30*time.Second {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if !cfg.IsDevelopment() {
		t.Error("IsDevelopment() = false with SERVER_ENV=development")
	}
}

func TestLoadMissingTURNSecret(t *testing.T) {
	t.Setenv("TURN_SECRET_KEY", "")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "TURN_SECRET_KEY") {
		t.Errorf("Load() error = %v, want missing TURN_SECRET_KEY", err)
	}
}

func TestLoadCollectsAllParseErrors(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "not-a-number")
	t.Setenv("RECONNECT_TTL", "soonish")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() succeeded with invalid values")
	}
	for _, key := range []string{"PORT", "RECONNECT_TTL"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not mention %s", err, key)
		}
	}
}

func TestLoadInvalidProtocol(t *testing.T) {
	setRequired(t)
	t.Setenv("PROTOCOL", "gopher")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "PROTOCOL") {
		t.Errorf("Load() error = %v, want PROTOCOL validation failure", err)
	}
}

func TestUploadLimitBytes(t *testing.T) {
	setRequired(t)
	t.Setenv("MAX_UPLOAD_SIZE_MB", "50")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.UploadLimitBytes() != 50*1024*1024 {
		t.Errorf("UploadLimitBytes() = %d, want 50 MiB", cfg.UploadLimitBytes())
	}
	if cfg.BodyLimitBytes() != 51*1024*1024 {
		t.Errorf("BodyLimitBytes() = %d, want 51 MiB", cfg.BodyLimitBytes())
	}
}
