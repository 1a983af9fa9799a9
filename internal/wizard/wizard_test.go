package wizard

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mhub-dev/mhub/internal/config"
	"github.com/mhub-dev/mhub/pkg/cliprompt"
)

func TestWizardRunBuildsTCPSQLiteConfigWithAuth(t *testing.T) {
	input := strings.Join([]string{
		"2",                  // transport: tcp
		"9000",               // port
		"127.0.0.1",          // host
		"alerts, metrics",    // node names
		"2",                  // storage: sqlite
		"/tmp/mhub-test.db",  // sqlite path
		"y",                  // require login
		"alice",              // username
		"secret",             // password
		"",                   // blank to finish
	}, "\n") + "\n"

	out := &bytes.Buffer{}
	p := &cliprompt.Prompter{In: strings.NewReader(input), Out: out}

	tmpDir := t.TempDir()
	outputPath := filepath.Join(tmpDir, "mhub.json")

	w := New(p)
	if err := w.Run(outputPath); err != nil {
		t.Fatalf("wizard.Run() error: %v", err)
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	cfg, err := config.Parse(data)
	if err != nil {
		t.Fatalf("generated config failed to parse: %v", err)
	}

	if len(cfg.Listen) != 1 || cfg.Listen[0].Type != "tcp" || cfg.Listen[0].Port != 9000 || cfg.Listen[0].Host != "127.0.0.1" {
		t.Errorf("unexpected listen spec: %+v", cfg.Listen)
	}
	if _, ok := cfg.Nodes["alerts"]; !ok {
		t.Error("expected node \"alerts\"")
	}
	if _, ok := cfg.Nodes["metrics"]; !ok {
		t.Error("expected node \"metrics\"")
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.DSN != "/tmp/mhub-test.db" {
		t.Errorf("unexpected storage config: %+v", cfg.Storage)
	}
	if cfg.Users["alice"] != "secret" {
		t.Errorf("expected user alice/secret, got %+v", cfg.Users)
	}
}

func TestWizardRunDefaultsProducesAnonymousConfig(t *testing.T) {
	out := &bytes.Buffer{}
	p := &cliprompt.Prompter{In: strings.NewReader(""), Out: out}

	tmpDir := t.TempDir()
	outputPath := filepath.Join(tmpDir, "mhub.json")

	w := New(p)
	if err := w.RunDefaults(outputPath); err != nil {
		t.Fatalf("wizard.RunDefaults() error: %v", err)
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	cfg, err := config.Parse(data)
	if err != nil {
		t.Fatalf("generated config failed to parse: %v", err)
	}

	if len(cfg.Users) != 0 {
		t.Errorf("expected anonymous config with no users, got %+v", cfg.Users)
	}
	if cfg.Storage.Driver != "file" {
		t.Errorf("expected default file storage driver, got %q", cfg.Storage.Driver)
	}
	if _, ok := cfg.Nodes["default"]; !ok {
		t.Error("expected default node")
	}
}
