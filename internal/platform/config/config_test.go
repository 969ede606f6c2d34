package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("PRESENTER_TEST_STR", "value")
	if got := GetEnv("PRESENTER_TEST_STR", "x"); got != "value" {
		t.Errorf("expected value, got %s", got)
	}
	if got := GetEnv("PRESENTER_TEST_UNSET", "x"); got != "x" {
		t.Errorf("expected fallback, got %s", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("PRESENTER_TEST_INT", "12")
	t.Setenv("PRESENTER_TEST_BAD", "twelve")
	if got := GetEnvInt("PRESENTER_TEST_INT", 1); got != 12 {
		t.Errorf("expected 12, got %d", got)
	}
	if got := GetEnvInt("PRESENTER_TEST_BAD", 1); got != 1 {
		t.Errorf("expected fallback 1, got %d", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("PRESENTER_TEST_BOOL", "false")
	if GetEnvBool("PRESENTER_TEST_BOOL", true) {
		t.Error("expected false")
	}
	if !GetEnvBool("PRESENTER_TEST_UNSET", true) {
		t.Error("expected fallback true")
	}
}

func TestGetEnvMillis(t *testing.T) {
	t.Setenv("PRESENTER_TEST_MS", "250")
	if got := GetEnvMillis("PRESENTER_TEST_MS", time.Second); got != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %s", got)
	}
	if got := GetEnvMillis("PRESENTER_TEST_UNSET", time.Second); got != time.Second {
		t.Errorf("expected fallback, got %s", got)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("PRESENTER_TEST_DOTENV=from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("PRESENTER_TEST_DOTENV") })

	if err := Load(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := GetEnv("PRESENTER_TEST_DOTENV", ""); got != "from-file" {
		t.Errorf("expected from-file, got %q", got)
	}

	if err := Load(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Error("expected error for missing file")
	}
}
