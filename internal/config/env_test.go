package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	result := GetEnv("TEST_NONEXISTENT_VAR", "default")
	if result != "default" {
		t.Errorf("Expected 'default', got %q", result)
	}

	os.Setenv("TEST_GET_ENV", "custom")
	defer os.Unsetenv("TEST_GET_ENV")

	result = GetEnv("TEST_GET_ENV", "default")
	if result != "custom" {
		t.Errorf("Expected 'custom', got %q", result)
	}
}

func TestGetIntEnv(t *testing.T) {
	result := GetIntEnv("TEST_NONEXISTENT_INT", 42)
	if result != 42 {
		t.Errorf("Expected 42, got %d", result)
	}

	os.Setenv("TEST_INT_ENV", "123")
	defer os.Unsetenv("TEST_INT_ENV")

	result = GetIntEnv("TEST_INT_ENV", 42)
	if result != 123 {
		t.Errorf("Expected 123, got %d", result)
	}

	os.Setenv("TEST_INVALID_INT", "not-a-number")
	defer os.Unsetenv("TEST_INVALID_INT")

	result = GetIntEnv("TEST_INVALID_INT", 42)
	if result != 42 {
		t.Errorf("Expected 42 for invalid int, got %d", result)
	}
}

func TestGetDurationEnv(t *testing.T) {
	defaultDuration := 5 * time.Second

	result := GetDurationEnv("TEST_NONEXISTENT_DURATION", defaultDuration)
	if result != defaultDuration {
		t.Errorf("Expected %v, got %v", defaultDuration, result)
	}

	os.Setenv("TEST_DURATION_ENV", "30s")
	defer os.Unsetenv("TEST_DURATION_ENV")

	result = GetDurationEnv("TEST_DURATION_ENV", defaultDuration)
	if result != 30*time.Second {
		t.Errorf("Expected 30s, got %v", result)
	}

	os.Setenv("TEST_INVALID_DURATION", "not-a-duration")
	defer os.Unsetenv("TEST_INVALID_DURATION")

	result = GetDurationEnv("TEST_INVALID_DURATION", defaultDuration)
	if result != defaultDuration {
		t.Errorf("Expected %v for invalid duration, got %v", defaultDuration, result)
	}
}

func TestGetSecretFile(t *testing.T) {
	result := GetSecretFile("")
	if result != "" {
		t.Errorf("Expected empty string for empty path, got %q", result)
	}

	result = GetSecretFile("/nonexistent/path/to/secret")
	if result != "" {
		t.Errorf("Expected empty string for nonexistent file, got %q", result)
	}

	path := filepath.Join(t.TempDir(), "secret")
	if err := os.WriteFile(path, []byte("my-secret-value\n"), 0o600); err != nil {
		t.Fatalf("Failed to write secret file: %v", err)
	}

	result = GetSecretFile(path)
	if result != "my-secret-value" {
		t.Errorf("Expected trimmed secret, got %q", result)
	}
}

func TestGetDurationEnv_BareSeconds(t *testing.T) {
	os.Setenv("TEST_DURATION_SECONDS", "900")
	defer os.Unsetenv("TEST_DURATION_SECONDS")

	result := GetDurationEnv("TEST_DURATION_SECONDS", time.Minute)
	if result != 900*time.Second {
		t.Errorf("Expected 900s for a bare integer, got %v", result)
	}
}

func TestGetSecretEnv(t *testing.T) {
	result := GetSecretEnv("TEST_NONEXISTENT_SECRET")
	if result != "" {
		t.Errorf("Expected empty string, got %q", result)
	}

	path := filepath.Join(t.TempDir(), "secret")
	if err := os.WriteFile(path, []byte("from-file\n"), 0o600); err != nil {
		t.Fatalf("Failed to write secret file: %v", err)
	}
	os.Setenv("TEST_SECRET_FILE", path)
	defer os.Unsetenv("TEST_SECRET_FILE")

	result = GetSecretEnv("TEST_SECRET")
	if result != "from-file" {
		t.Errorf("Expected file secret, got %q", result)
	}

	// The plain variable takes precedence over the file.
	os.Setenv("TEST_SECRET", "from-env")
	defer os.Unsetenv("TEST_SECRET")

	result = GetSecretEnv("TEST_SECRET")
	if result != "from-env" {
		t.Errorf("Expected plain variable to win, got %q", result)
	}
}
