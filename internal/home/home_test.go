package home

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNew(t *testing.T) {
	t.Run("with explicit path", func(t *testing.T) {
		dir, err := New("/tmp/test-ocrhub")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dir.Path() != "/tmp/test-ocrhub" {
			t.Errorf("expected path /tmp/test-ocrhub, got %s", dir.Path())
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
	dir, _ := New("/tmp/test-ocrhub")

	t.Run("DataPath", func(t *testing.T) {
		expected := "/tmp/test-ocrhub/data"
		if dir.DataPath() != expected {
			t.Errorf("expected %s, got %s", expected, dir.DataPath())
		}
	})

	t.Run("StagingPath", func(t *testing.T) {
		expected := "/tmp/test-ocrhub/staging"
		if dir.StagingPath() != expected {
			t.Errorf("expected %s, got %s", expected, dir.StagingPath())
		}
	})

	t.Run("ConfigPath", func(t *testing.T) {
		expected := "/tmp/test-ocrhub/config.yaml"
		if dir.ConfigPath() != expected {
			t.Errorf("expected %s, got %s", expected, dir.ConfigPath())
		}
	})
}

func TestDir_EnsureExists(t *testing.T) {
	tmpDir := t.TempDir()
	ocrhubDir := filepath.Join(tmpDir, "ocrhub-test")

	dir, err := New(ocrhubDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if dir.Exists() {
		t.Error("directory should not exist before EnsureExists")
	}

	if err := dir.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists failed: %v", err)
	}

	if !dir.Exists() {
		t.Error("directory should exist after EnsureExists")
	}

	if _, err := os.Stat(dir.DataPath()); os.IsNotExist(err) {
		t.Error("data directory should exist after EnsureExists")
	}
	if _, err := os.Stat(dir.StagingPath()); os.IsNotExist(err) {
		t.Error("staging directory should exist after EnsureExists")
	}
}

func TestDir_ConfigExists(t *testing.T) {
	tmpDir := t.TempDir()
	dir, _ := New(tmpDir)

	if dir.ConfigExists() {
		t.Error("config should not exist initially")
	}

	configPath := dir.ConfigPath()
	if err := os.WriteFile(configPath, []byte("test: true\n"), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}

	if !dir.ConfigExists() {
		t.Error("config should exist after creation")
	}
}
