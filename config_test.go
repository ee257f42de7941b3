package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := loadConfig(filepath.Join(dir, "missing.json"), filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg != defaultConfig() {
		t.Errorf("config = %+v, want the defaults", cfg)
	}
}

func TestLoadConfigLayers(t *testing.T) {
	dir := t.TempDir()
	envPath := writeFile(t, dir, ".env", "ADDR=:1111\nSTORYTELLER_MODEL=llama3\nRULES=from-dotenv.yaml\n")
	configPath := writeFile(t, dir, "config.json", `{"addr": ":3333", "log_debug": true}`)

	// godotenv exports what it loads; drop it again after the test.
	t.Cleanup(func() {
		os.Unsetenv("STORYTELLER_MODEL")
		os.Unsetenv("RULES")
	})
	t.Setenv("ADDR", ":2222")
	t.Setenv("DEV", "true")

	cfg, err := loadConfig(configPath, envPath)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"dotenv only", cfg.StorytellerModel, "llama3"},
		{"env var", cfg.Dev, true},
		{"json over env", cfg.Addr, ":3333"},
		{"json only", cfg.LogDebug, true},
		{"default kept", cfg.StorytellerOllamaURL, "http://localhost:11434"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, tt.got, tt.want)
		}
	}

	flags := flag.NewFlagSet("test", flag.ContinueOnError)
	fv := registerFlags(flags)
	if err := flags.Parse([]string{"-addr", ":4444", "-rules", "cli.yaml"}); err != nil {
		t.Fatal(err)
	}
	fv.applyTo(flags, &cfg)
	if cfg.Addr != ":4444" || cfg.Rules != "cli.yaml" {
		t.Errorf("flags not applied: addr %q rules %q", cfg.Addr, cfg.Rules)
	}
	if !cfg.Dev {
		t.Error("unset flags must not reset values")
	}
}

func TestLoadConfigRejectsBadJSON(t *testing.T) {
	dir := t.TempDir()
	configPath := writeFile(t, dir, "config.json", `{"dev": "yes"}`)
	if _, err := loadConfig(configPath, filepath.Join(dir, "missing.env")); err == nil {
		t.Error("expected an error for a string dev flag")
	}

	broken := writeFile(t, dir, "broken.json", `{`)
	if _, err := loadConfig(broken, filepath.Join(dir, "missing.env")); err == nil {
		t.Error("expected an error for broken JSON")
	}
}

func TestToLogConfig(t *testing.T) {
	cfg := AppConfig{LogOutputDir: "logs", LogRequests: true, LogWS: true}
	lc := cfg.toLogConfig()
	if lc.OutputDir != "logs" || !lc.LogRequests || !lc.LogWS || lc.LogDB || lc.Debug {
		t.Errorf("log config = %+v", lc)
	}
}
