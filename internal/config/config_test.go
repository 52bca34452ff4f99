package config

import (
	"log/slog"
	"testing"
	"time"
)

// setRequired задаёт обязательные переменные окружения.
func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("CS_STORE_ID", "clipstore-test")
	t.Setenv("CS_DATA_DIR", t.TempDir())
	t.Setenv("CS_META_DIR", t.TempDir())
	t.Setenv("CS_JWKS_URL", "https://auth.example.com/jwks")
}

// TestLoadDefaults проверяет значения по умолчанию.
func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if cfg.Port != 3003 {
		t.Errorf("ожидался порт 3003, получено %d", cfg.Port)
	}
	if cfg.MaxFileSize != 104857600 {
		t.Errorf("ожидался лимит 104857600, получено %d", cfg.MaxFileSize)
	}
	if cfg.ReaperInterval != 600*time.Second {
		t.Errorf("ожидался интервал 600s, получено %v", cfg.ReaperInterval)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("ожидался уровень info, получено %v", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("ожидался формат json, получено %s", cfg.LogFormat)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ожидался таймаут 5s, получено %v", cfg.ShutdownTimeout)
	}
}

// TestLoadMissingRequired проверяет ошибку при отсутствии обязательной переменной.
func TestLoadMissingRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("CS_STORE_ID", "")

	if _, err := Load(); err == nil {
		t.Error("ожидалась ошибка при пустом CS_STORE_ID")
	}
}

// TestLoadOverrides проверяет чтение переопределённых значений.
func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("CS_PORT", "8080")
	t.Setenv("CS_MAX_FILE_SIZE", "1048576")
	t.Setenv("CS_REAPER_INTERVAL", "30s")
	t.Setenv("CS_LOG_LEVEL", "debug")
	t.Setenv("CS_LOG_FORMAT", "text")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("ожидался порт 8080, получено %d", cfg.Port)
	}
	if cfg.MaxFileSize != 1048576 {
		t.Errorf("ожидался лимит 1048576, получено %d", cfg.MaxFileSize)
	}
	if cfg.ReaperInterval != 30*time.Second {
		t.Errorf("ожидался интервал 30s, получено %v", cfg.ReaperInterval)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("ожидался уровень debug, получено %v", cfg.LogLevel)
	}
}

// TestLoadInvalidValues проверяет отклонение некорректных значений.
func TestLoadInvalidValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"порт не число", "CS_PORT", "восемьдесят"},
		{"порт вне диапазона", "CS_PORT", "99999"},
		{"отрицательный лимит", "CS_MAX_FILE_SIZE", "-1"},
		{"кривая длительность", "CS_REAPER_INTERVAL", "десять минут"},
		{"неизвестный уровень", "CS_LOG_LEVEL", "loud"},
		{"неизвестный формат", "CS_LOG_FORMAT", "xml"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Errorf("ожидалась ошибка для %s=%s", tc.key, tc.value)
			}
		})
	}
}

// TestLoadTLSPair проверяет, что сертификат и ключ задаются только вместе.
func TestLoadTLSPair(t *testing.T) {
	setRequired(t)
	t.Setenv("CS_TLS_CERT", "/tmp/cert.pem")

	if _, err := Load(); err == nil {
		t.Error("CS_TLS_CERT без CS_TLS_KEY должен давать ошибку")
	}
}

// TestParseLogLevel проверяет разбор уровней логирования.
func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"ERROR":   slog.LevelError,
	}
	for in, want := range cases {
		got, err := parseLogLevel(in)
		if err != nil {
			t.Errorf("parseLogLevel(%q): неожиданная ошибка %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("parseLogLevel(%q) = %v, ожидалось %v", in, got, want)
		}
	}

	if _, err := parseLogLevel("silent"); err == nil {
		t.Error("неизвестный уровень должен давать ошибку")
	}
}
