package config

import (
	"os"
	"testing"
)

func TestLoad(t *testing.T) {
	configContent := `
server:
  port: 9090
log:
  level: "debug"
  format: "json"
telegram:
  admin_chat_id: 245853116
  hourly_message: "still alive"
gemini:
  model: "gemini-2.0-flash"
website:
  login_url: "https://backend.test/login"
  data_url: "https://backend.test/data"
  username: "hussein"
defaults:
  name: "صاحب الحساب"
backup:
  dir: "/tmp/backups"
`
	tmpFile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.WriteString(configContent); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	tmpFile.Close()

	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Telegram.AdminChatID != 245853116 {
		t.Errorf("Expected admin chat id 245853116, got %d", cfg.Telegram.AdminChatID)
	}
	if cfg.Website.LoginURL != "https://backend.test/login" {
		t.Errorf("Unexpected login url: %s", cfg.Website.LoginURL)
	}
	if cfg.Backup.Dir != "/tmp/backups" {
		t.Errorf("Unexpected backup dir: %s", cfg.Backup.Dir)
	}
	if GlobalConfig != cfg {
		t.Error("Expected GlobalConfig to be set")
	}
}

func TestLoadDefaults(t *testing.T) {
	// Shield the test from ambient environment
	for _, key := range []string{"TELEGRAM_BOT_TOKEN", "WEBSITE_USERNAME", "PORT", "NAME"} {
		t.Setenv(key, "")
	}

	cfg, err := Load("nonexistent-config.yaml")
	if err != nil {
		t.Fatalf("Expected missing config file to be tolerated, got: %v", err)
	}

	if cfg.Server.Port != 3000 {
		t.Errorf("Expected default port 3000, got %d", cfg.Server.Port)
	}
	if cfg.Defaults.Number != "150000" {
		t.Errorf("Expected default number 150000, got %s", cfg.Defaults.Number)
	}
	if cfg.Defaults.Company != "الهرم" {
		t.Errorf("Expected default company الهرم, got %s", cfg.Defaults.Company)
	}
	if cfg.Defaults.Date != "2025-01-01" {
		t.Errorf("Expected default date 2025-01-01, got %s", cfg.Defaults.Date)
	}
	if cfg.Defaults.Status != "0" {
		t.Errorf("Expected default status 0, got %s", cfg.Defaults.Status)
	}
	if cfg.Gemini.Model != "gemini-2.0-flash" {
		t.Errorf("Expected default model gemini-2.0-flash, got %s", cfg.Gemini.Model)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")
	t.Setenv("WEBSITE_USERNAME", "env-user")
	t.Setenv("PORT", "4000")

	cfg, err := Load("nonexistent-config.yaml")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Telegram.Token != "env-token" {
		t.Errorf("Expected token from env, got %s", cfg.Telegram.Token)
	}
	if cfg.Website.Username != "env-user" {
		t.Errorf("Expected username from env, got %s", cfg.Website.Username)
	}
	if cfg.Server.Port != 4000 {
		t.Errorf("Expected port 4000 from env, got %d", cfg.Server.Port)
	}
	// The submitting account defaults to the backend username.
	if cfg.Defaults.User != "env-user" {
		t.Errorf("Expected default user env-user, got %s", cfg.Defaults.User)
	}
}
