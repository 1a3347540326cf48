package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOptionalFallsBackToDefaults(t *testing.T) {
	cfg, err := LoadOptional(t.TempDir())
	if err != nil {
		t.Fatalf("load optional: %v", err)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Artifacts.Driver != "fs" || cfg.Report.Level != 1 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatalf("expected missing config error")
	}
}

func TestFromYAMLKeepsUnsetSections(t *testing.T) {
	cfg, err := FromYAML([]byte("report:\n  level: 2\nwebhooks:\n  - url: http://example.test/hook\n    events: [run.completed]\n"))
	if err != nil {
		t.Fatalf("from yaml: %v", err)
	}
	if cfg.Report.Level != 2 || cfg.Store.Driver != "sqlite" || cfg.Server.Addr == "" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if len(cfg.Webhooks) != 1 || !cfg.Webhooks[0].IsEnabled() {
		t.Fatalf("webhook should default to enabled: %+v", cfg.Webhooks)
	}
}

func TestValidateRejections(t *testing.T) {
	bad := []string{
		"store:\n  driver: mysql\n",
		"store:\n  driver: pgx\n",
		"artifacts:\n  driver: s3\n",
		"artifacts:\n  driver: fs\n  dir: \"\"\n",
		"log:\n  level: loud\n",
		"report:\n  level: 3\n",
		"webhooks:\n  - events: [run.failed]\n",
		"store: [",
	}
	for _, doc := range bad {
		if _, err := FromYAML([]byte(doc)); err == nil {
			t.Fatalf("expected error for %q", doc)
		}
	}
}

func TestGeneratedDefaultRoundTrips(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(GenerateDefault()), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Artifacts.Dir != ".contagion/artifacts" || !cfg.Report.Chart {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if _, err := FromFile(Path(dir)); err != nil {
		t.Fatalf("from file: %v", err)
	}
}
