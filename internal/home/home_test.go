package home

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNew(t *testing.T) {
	t.Run("with explicit path", func(t *testing.T) {
		dir, err := New("/tmp/test-snapgloss")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dir.Path() != "/tmp/test-snapgloss" {
			t.Errorf("expected path /tmp/test-snapgloss, got %s", dir.Path())
		}
	})

	t.Run("with empty path uses default", func(t *testing.T) {
		dir, err := New("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		home, _ := os.UserHomeDir()
		expected := filepath.Join(home, DefaultDirName)
		if dir.Path() != expected {
			t.Errorf("expected path %s, got %s", expected, dir.Path())
		}
	})
}

func TestDir_Paths(t *testing.T) {
	dir, _ := New("/tmp/test-snapgloss")

	t.Run("MediaPath", func(t *testing.T) {
		expected := "/tmp/test-snapgloss/media"
		if dir.MediaPath() != expected {
			t.Errorf("expected %s, got %s", expected, dir.MediaPath())
		}
	})

	t.Run("ConfigPath", func(t *testing.T) {
		expected := "/tmp/test-snapgloss/config.yaml"
		if dir.ConfigPath() != expected {
			t.Errorf("expected %s, got %s", expected, dir.ConfigPath())
		}
	})

	t.Run("PageImagePath", func(t *testing.T) {
		expected := "/tmp/test-snapgloss/media/doc-1/page_0003.png"
		if got := dir.PageImagePath("doc-1", 3); got != expected {
			t.Errorf("expected %s, got %s", expected, got)
		}
	})

	t.Run("OriginalPath", func(t *testing.T) {
		expected := "/tmp/test-snapgloss/media/doc-1/original.pdf"
		if got := dir.OriginalPath("doc-1", ".pdf"); got != expected {
			t.Errorf("expected %s, got %s", expected, got)
		}
	})
}

func TestDir_EnsureExists(t *testing.T) {
	// Use a temp directory
	tmpDir := t.TempDir()
	homeDir := filepath.Join(tmpDir, "snapgloss-test")

	dir, err := New(homeDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Directory shouldn't exist yet
	if dir.Exists() {
		t.Error("directory should not exist before EnsureExists")
	}

	// Create it
	if err := dir.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists failed: %v", err)
	}

	// Now it should exist
	if !dir.Exists() {
		t.Error("directory should exist after EnsureExists")
	}

	// Media directory should also exist
	if _, err := os.Stat(dir.MediaPath()); os.IsNotExist(err) {
		t.Error("media directory should exist after EnsureExists")
	}
}

func TestDir_ConfigExists(t *testing.T) {
	tmpDir := t.TempDir()
	dir, _ := New(tmpDir)

	// Config doesn't exist
	if dir.ConfigExists() {
		t.Error("config should not exist initially")
	}

	// Create a config file
	configPath := dir.ConfigPath()
	if err := os.WriteFile(configPath, []byte("test: true\n"), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}

	// Now it should exist
	if !dir.ConfigExists() {
		t.Error("config should exist after creation")
	}
}

func TestDir_MediaDirLifecycle(t *testing.T) {
	dir, _ := New(t.TempDir())

	if err := dir.EnsureMediaDir("doc-1"); err != nil {
		t.Fatalf("EnsureMediaDir failed: %v", err)
	}

	pagePath := dir.PageImagePath("doc-1", 1)
	if err := os.WriteFile(pagePath, []byte("png"), 0644); err != nil {
		t.Fatalf("failed to write page image: %v", err)
	}

	paths := dir.PageImagePaths("doc-1", 2)
	if len(paths) != 2 {
		t.Fatalf("expected 2 paths, got %d", len(paths))
	}
	if paths[0] != pagePath {
		t.Errorf("first page path mismatch: %s", paths[0])
	}

	if err := dir.RemoveMediaDir("doc-1"); err != nil {
		t.Fatalf("RemoveMediaDir failed: %v", err)
	}
	if _, err := os.Stat(dir.MediaDir("doc-1")); !os.IsNotExist(err) {
		t.Error("media dir should be gone after RemoveMediaDir")
	}
}

func TestDir_Pid(t *testing.T) {
	dir, _ := New(t.TempDir())

	if _, err := dir.ReadPid(); err == nil {
		t.Error("ReadPid should fail when no pid file exists")
	}

	if err := dir.WritePid(); err != nil {
		t.Fatalf("WritePid failed: %v", err)
	}

	pid, err := dir.ReadPid()
	if err != nil {
		t.Fatalf("ReadPid failed: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("expected pid %d, got %d", os.Getpid(), pid)
	}

	// Our own process is alive by definition.
	if !IsProcessAlive(pid) {
		t.Error("expected current process to be alive")
	}

	dir.RemovePid()
	if _, err := dir.ReadPid(); err == nil {
		t.Error("ReadPid should fail after RemovePid")
	}
}

func TestDir_Pid_Corrupt(t *testing.T) {
	dir, _ := New(t.TempDir())

	if err := os.WriteFile(dir.PidPath(), []byte("not-a-pid"), 0644); err != nil {
		t.Fatalf("failed to write pid file: %v", err)
	}

	if _, err := dir.ReadPid(); err == nil {
		t.Error("ReadPid should fail for corrupt pid file")
	}
}
