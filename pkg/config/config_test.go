package config_test

import (
	"path/filepath"
	"testing"

	"github.com/lattice-db/lattice/pkg/config"
	"github.com/lattice-db/lattice/pkg/lerrors"
)

func TestSanitizeScenario6(t *testing.T) {
	got := config.Sanitize("$_%&test_@envir==--onment*_*")
	want := "_test_environment_"
	if got != want {
		t.Fatalf("Sanitize() = %q, want %q", got, want)
	}
}

func TestNewRejectsOverlappingDirs(t *testing.T) {
	root := t.TempDir()
	_, err := config.New(root, filepath.Join(root, "database"), "test")
	if err == nil {
		t.Fatal("expected a ConfigurationError for a databaseDir nested under bufferDir")
	}
	if _, ok := err.(*lerrors.ConfigurationError); !ok {
		t.Fatalf("expected *lerrors.ConfigurationError, got %T", err)
	}
}

func TestNewRejectsIdenticalDirs(t *testing.T) {
	root := t.TempDir()
	if _, err := config.New(root, root, "test"); err == nil {
		t.Fatal("expected a ConfigurationError for identical bufferDir/databaseDir")
	}
}

func TestNewRejectsUnsanitizableDefaultEnvironment(t *testing.T) {
	root := t.TempDir()
	_, err := config.New(filepath.Join(root, "buffer"), filepath.Join(root, "database"), "***")
	if err == nil {
		t.Fatal("expected a ConfigurationError when defaultEnvironment sanitizes to empty")
	}
}

func TestEnvironmentFallsBackToDefault(t *testing.T) {
	root := t.TempDir()
	cfg, err := config.New(filepath.Join(root, "buffer"), filepath.Join(root, "database"), "prod")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := cfg.Environment(""); got != "prod" {
		t.Fatalf("Environment(\"\") = %q, want fallback %q", got, "prod")
	}
	if got := cfg.Environment("staging!!"); got != "staging" {
		t.Fatalf("Environment(\"staging!!\") = %q, want %q", got, "staging")
	}
}
