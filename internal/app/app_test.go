package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"newsforge/internal/config"
	"newsforge/internal/logging"
)

func TestNewWithoutDatabase(t *testing.T) {
	t.Setenv("NEWSFORGE_CONFIG", "")
	t.Setenv("DATABASE_DSN", "")

	cfg := config.Load()
	application, err := New(cfg, logging.New("error"))
	if err != nil {
		t.Fatalf("new application failed: %v", err)
	}
	defer application.Close()

	if _, err := application.RunUser(context.Background(), "u1"); err == nil {
		t.Fatal("expected error when no profile store is configured")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Setenv("NEWSFORGE_CONFIG", "")

	cfg := config.Load()
	cfg.Curation.BatchSize = 0
	if _, err := New(cfg, nil); err == nil {
		t.Fatal("expected configuration validation error")
	}
}

func TestLoadProfileFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "profile.yaml")
	raw := `
userId: u1
email: u1@example.com
name: Dana
interests:
  - golang
  - databases
maxArticles: 8
qualityFloor: 0.6
sources:
  - id: gh
    kind: github
  - kind: hackernews
  - kind: trending
    params:
      url: https://lobste.rs
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write profile: %v", err)
	}

	profile, err := LoadProfileFile(path)
	if err != nil {
		t.Fatalf("load profile failed: %v", err)
	}
	if profile.UserID != "u1" || profile.Email != "u1@example.com" {
		t.Fatalf("identity fields wrong: %+v", profile)
	}
	if len(profile.Interests) != 2 || profile.MaxArticles != 8 || profile.QualityFloor != 0.6 {
		t.Fatalf("preferences wrong: %+v", profile)
	}
	if len(profile.Sources) != 3 {
		t.Fatalf("expected 3 sources, got %d", len(profile.Sources))
	}
	if profile.Sources[2].Params["url"] != "https://lobste.rs" {
		t.Fatalf("source params lost: %+v", profile.Sources[2])
	}
}

func TestLoadProfileFileMissing(t *testing.T) {
	t.Parallel()

	if _, err := LoadProfileFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
