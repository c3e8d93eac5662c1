package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pulsera/pkg/config"
)

func TestInitWritesLoadableDefaults(t *testing.T) {
	for _, name := range []string{"pulsera.toml", "pulsera.yaml"} {
		cfgPath := filepath.Join(t.TempDir(), name)

		var out bytes.Buffer
		var errOut bytes.Buffer
		if code := run([]string{"init", "--config", cfgPath}, &out, &errOut); code != 0 {
			t.Fatalf("%s: init failed code=%d stderr=%s", name, code, errOut.String())
		}

		cfg, found, err := config.LoadOrDefault(cfgPath)
		if err != nil || !found {
			t.Fatalf("%s: load written config: found=%v err=%v", name, found, err)
		}
		if cfg.Receiver.Addr != config.Default().Receiver.Addr {
			t.Fatalf("%s: unexpected receiver addr %q", name, cfg.Receiver.Addr)
		}
	}
}

func TestInitRefusesOverwrite(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "pulsera.toml")
	mustWrite(t, cfgPath, "[receiver]\naddr = \"0.0.0.0:9999\"\n")

	var out bytes.Buffer
	var errOut bytes.Buffer
	if code := run([]string{"init", "--config", cfgPath}, &out, &errOut); code != 1 {
		t.Fatalf("expected code 1, got %d", code)
	}
	if !strings.Contains(errOut.String(), "already exists") {
		t.Fatalf("unexpected stderr: %s", errOut.String())
	}

	if code := run([]string{"init", "--config", cfgPath, "--force"}, &out, &errOut); code != 0 {
		t.Fatalf("forced init failed: %s", errOut.String())
	}
	raw, _ := os.ReadFile(cfgPath)
	if strings.Contains(string(raw), "9999") {
		t.Fatalf("forced init kept the old file: %s", raw)
	}
}

func TestCheckReportsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.toml")
	mustWrite(t, good, "[receiver]\ntransport = \"tcp\"\naddr = \"127.0.0.1:19021\"\n")
	bad := filepath.Join(dir, "bad.toml")
	mustWrite(t, bad, "[receiver]\ntransport = \"carrier-pigeon\"\n")

	var out bytes.Buffer
	var errOut bytes.Buffer
	if code := run([]string{"check", "--config", good}, &out, &errOut); code != 0 {
		t.Fatalf("check good failed: %s", errOut.String())
	}
	if !strings.Contains(out.String(), "receiver=tcp addr=127.0.0.1:19021") {
		t.Fatalf("unexpected check output: %s", out.String())
	}

	errOut.Reset()
	if code := run([]string{"check", "--config", bad}, &out, &errOut); code != 1 {
		t.Fatalf("expected code 1 for bad config")
	}
	if !strings.Contains(errOut.String(), "check failed") {
		t.Fatalf("unexpected stderr: %s", errOut.String())
	}
}

func TestUnknownCommand(t *testing.T) {
	var out bytes.Buffer
	var errOut bytes.Buffer
	if code := run([]string{"sync"}, &out, &errOut); code != 2 {
		t.Fatalf("expected code 2, got %d", code)
	}
}

func mustWrite(t *testing.T, path string, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}
