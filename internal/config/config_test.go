package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if cfg.Schedule.WindowDays != 42 {
		t.Fatalf("expected 42 day window, got %d", cfg.Schedule.WindowDays)
	}
	if len(cfg.Schedule.Holidays) != 12 || !cfg.HolidaySet()["2025-12-25"] {
		t.Fatalf("unexpected holidays %v", cfg.Schedule.Holidays)
	}
	if cfg.Session.TTL != 30*time.Minute {
		t.Fatalf("unexpected ttl %v", cfg.Session.TTL)
	}
	if cfg.Server.Addr != "127.0.0.1:8080" || cfg.Server.BasePath != "/v1" {
		t.Fatalf("unexpected server config %+v", cfg.Server)
	}
}

func TestOverlayKeepsDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("schedule:\n  window_days: 14\nlog:\n  level: debug\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Schedule.WindowDays != 14 || cfg.Log.Level != "debug" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Session.TTL != 30*time.Minute || cfg.Server.Addr == "" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"window":  "schedule:\n  window_days: 0\n",
		"holiday": "schedule:\n  holidays: [\"2025-02-30\"]\n",
		"level":   "log:\n  level: loud\n",
		"format":  "log:\n  format: xml\n",
		"ttl":     "session:\n  ttl: 0s\n",
	}
	for name, doc := range cases {
		if _, err := FromYAML([]byte(doc)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
	if _, err := FromYAML([]byte("schedule: [")); err == nil || !strings.Contains(err.Error(), "invalid config yaml") {
		t.Fatalf("expected yaml error, got %v", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir, "")
	if err != nil {
		t.Fatalf("load missing: %v", err)
	}
	if cfg.Schedule.WindowDays != 42 {
		t.Fatalf("expected defaults for missing file")
	}
	if err := os.WriteFile(Path(dir), []byte("schedule:\n  window_days: 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(dir, "")
	if err != nil || cfg.Schedule.WindowDays != 7 {
		t.Fatalf("workspace file not read: %v %+v", err, cfg)
	}
	if _, err := Load(dir, filepath.Join(dir, "missing.yml")); err == nil {
		t.Fatalf("explicit missing path should fail")
	}
}
