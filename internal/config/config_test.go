package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.OCR.Provider != "paddleocr" {
		t.Errorf("expected paddleocr provider, got %s", cfg.OCR.Provider)
	}
	if cfg.Annotator.APIKey != "${OPENAI_API_KEY}" {
		t.Error("expected OpenAI API key placeholder")
	}
	if cfg.Defra.Image != "sourcenetwork/defradb:latest" {
		t.Errorf("unexpected defra image: %s", cfg.Defra.Image)
	}
	if cfg.Pipeline.RecognizeTimeout() != 120*time.Second {
		t.Errorf("unexpected recognize timeout: %s", cfg.Pipeline.RecognizeTimeout())
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		os.Setenv("TEST_API_KEY", "secret123")
		defer os.Unsetenv("TEST_API_KEY")

		result := ResolveEnvVars("${TEST_API_KEY}")
		if result != "secret123" {
			t.Errorf("expected secret123, got %s", result)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}")
		if result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		result := ResolveEnvVars("literal-value")
		if result != "literal-value" {
			t.Errorf("expected literal-value, got %s", result)
		}
	})
}

func TestAnnotatorCfg_ResolveAPIKey(t *testing.T) {
	os.Setenv("TEST_OPENAI_KEY", "sk-test-123")
	defer os.Unsetenv("TEST_OPENAI_KEY")

	t.Run("resolves env var reference", func(t *testing.T) {
		cfg := AnnotatorCfg{APIKey: "${TEST_OPENAI_KEY}"}
		if got := cfg.ResolveAPIKey(); got != "sk-test-123" {
			t.Errorf("expected sk-test-123, got %s", got)
		}
	})

	t.Run("returns literal value", func(t *testing.T) {
		cfg := AnnotatorCfg{APIKey: "direct-key"}
		if got := cfg.ResolveAPIKey(); got != "direct-key" {
			t.Errorf("expected direct-key, got %s", got)
		}
	})
}

func TestNewManager(t *testing.T) {
	t.Run("loads from config file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configFile := filepath.Join(tmpDir, "config.yaml")

		configContent := `
server:
  host: "0.0.0.0"
  port: "9090"
`
		if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
			t.Fatalf("failed to write config file: %v", err)
		}

		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		cfg := mgr.Get()
		if cfg.Server.Port != "9090" {
			t.Errorf("expected port 9090, got %s", cfg.Server.Port)
		}
		if cfg.Server.Host != "0.0.0.0" {
			t.Errorf("expected host 0.0.0.0, got %s", cfg.Server.Host)
		}
		// Sections absent from the file keep their defaults.
		if cfg.OCR.Provider != "paddleocr" {
			t.Errorf("expected default ocr provider, got %s", cfg.OCR.Provider)
		}
	})

	t.Run("missing explicit file errors", func(t *testing.T) {
		_, err := NewManager(filepath.Join(t.TempDir(), "nope.yaml"))
		if err == nil {
			t.Fatal("expected error for missing config file")
		}
	})
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read written config: %v", err)
	}
	if !strings.HasPrefix(string(data), "# snapgloss configuration") {
		t.Error("expected explanatory header at top of file")
	}

	// The written file must load back as a valid config.
	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("failed to load written config: %v", err)
	}
	cfg := mgr.Get()
	if cfg.Server.Port != DefaultConfig().Server.Port {
		t.Errorf("expected default port, got %s", cfg.Server.Port)
	}
	if cfg.Annotator.APIKey != "${OPENAI_API_KEY}" {
		t.Error("expected unresolved API key placeholder in written file")
	}
}

func TestManager_OnChange(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  host: "127.0.0.1"
  port: "8080"
`
	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	// Register multiple callbacks
	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})

	mgr.mu.RLock()
	if len(mgr.callbacks) != 3 {
		t.Errorf("expected 3 callbacks, got %d", len(mgr.callbacks))
	}
	mgr.mu.RUnlock()
}

func TestManager_Get_ThreadSafe(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  host: "127.0.0.1"
  port: "8080"
`
	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	// Call Get concurrently to verify no race conditions
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				cfg := mgr.Get()
				_ = cfg.Server.Port
			}
			done <- struct{}{}
		}()
	}

	// Wait for all goroutines
	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestManager_WatchConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  host: "127.0.0.1"
  port: "8080"
`
	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	// Verify initial value
	cfg := mgr.Get()
	if cfg.Server.Port != "8080" {
		t.Errorf("initial port mismatch: expected 8080, got %s", cfg.Server.Port)
	}

	// Track callback invocations
	var callbackCount atomic.Int32
	var lastPort atomic.Value

	mgr.OnChange(func(cfg *Config) {
		callbackCount.Add(1)
		lastPort.Store(cfg.Server.Port)
	})

	// Start watching
	mgr.WatchConfig()

	// Give fsnotify time to set up the watcher
	time.Sleep(100 * time.Millisecond)

	// Update the config file
	newContent := `
server:
  host: "127.0.0.1"
  port: "9090"
`
	if err := os.WriteFile(configFile, []byte(newContent), 0644); err != nil {
		t.Fatalf("failed to write updated config file: %v", err)
	}

	// Wait for the watcher plus the reload debounce (fsnotify is async)
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if callbackCount.Load() > 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if callbackCount.Load() == 0 {
		t.Error("callback was not invoked after config file change")
	}

	// Verify the config was updated
	newCfg := mgr.Get()
	if newCfg.Server.Port != "9090" {
		t.Errorf("config not updated: expected 9090, got %s", newCfg.Server.Port)
	}

	// Verify callback received the updated value
	if v := lastPort.Load(); v != "9090" {
		t.Errorf("callback received wrong value: expected 9090, got %v", v)
	}
}
