package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadNoFileReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.DBPath != "cronbeat.db" || cfg.DefaultQueue != "celery" {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.Beat.RefreshEvery.Std() != 5*time.Second || cfg.Beat.MinTick.Std() != time.Second {
		t.Errorf("beat defaults = %+v", cfg.Beat)
	}
}

func TestLoadOverlaysFileOnDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cronbeat.yaml")
	body := "addr: \":9090\"\nredis_url: redis://queue:6379/1\nbeat:\n  refresh_every: 10s\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9090" || cfg.RedisURL != "redis://queue:6379/1" {
		t.Errorf("overridden = %+v", cfg)
	}
	if cfg.Beat.RefreshEvery.Std() != 10*time.Second {
		t.Errorf("refresh_every = %v", cfg.Beat.RefreshEvery)
	}
	// Fields the file omits keep their defaults.
	if cfg.DBPath != "cronbeat.db" || cfg.Beat.MinTick.Std() != time.Second {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadMalformedYAMLErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("addr: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}
