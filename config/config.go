package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Telegram TelegramConfig `yaml:"telegram"`
	Gemini   GeminiConfig   `yaml:"gemini"`
	Website  WebsiteConfig  `yaml:"website"`
	Defaults DefaultValues  `yaml:"defaults"`
	Backup   BackupConfig   `yaml:"backup"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TelegramConfig struct {
	Token         string `yaml:"token"`
	AdminChatID   int64  `yaml:"admin_chat_id"`
	HourlyMessage string `yaml:"hourly_message"`
}

type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type WebsiteConfig struct {
	LoginURL string `yaml:"login_url"`
	DataURL  string `yaml:"data_url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// DefaultValues are substituted for any field the vision service cannot
// read off a receipt, and make up the whole record when extraction fails.
type DefaultValues struct {
	Name    string `yaml:"name"`
	Number  string `yaml:"number"`
	Company string `yaml:"company"`
	Date    string `yaml:"date"`
	Status  string `yaml:"status"`
	User    string `yaml:"user"`
}

type BackupConfig struct {
	Dir   string      `yaml:"dir"`
	Minio MinioConfig `yaml:"minio"`
}

// MinioConfig enables the optional object-storage mirror of backup files.
// The mirror is disabled when Endpoint is empty.
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

var GlobalConfig *Config

// Load reads the yaml config file, layers environment variables on top
// (secrets are expected to come from the environment, not the file), and
// applies defaults. A missing config file is not an error: everything can
// be supplied through the environment.
func Load(path string) (*Config, error) {
	// Best effort; a missing .env just means the variables are already set.
	_ = godotenv.Load()

	var cfg Config

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	GlobalConfig = &cfg
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	overrideString(&cfg.Telegram.Token, "TELEGRAM_BOT_TOKEN")
	overrideString(&cfg.Gemini.APIKey, "GEMINI_API_KEY")
	overrideString(&cfg.Website.LoginURL, "WEBSITE_LOGIN_URL")
	overrideString(&cfg.Website.DataURL, "WEBSITE_DATA_URL")
	overrideString(&cfg.Website.Username, "WEBSITE_USERNAME")
	overrideString(&cfg.Website.Password, "WEBSITE_PASSWORD")
	overrideString(&cfg.Defaults.Name, "NAME")

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ADMIN_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Telegram.AdminChatID = id
		}
	}
}

func overrideString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Telegram.HourlyMessage == "" {
		cfg.Telegram.HourlyMessage = "Hourly check-in"
	}
	if cfg.Gemini.Model == "" {
		cfg.Gemini.Model = "gemini-2.0-flash"
	}
	if cfg.Backup.Dir == "" {
		cfg.Backup.Dir = "backups"
	}
	if cfg.Defaults.Number == "" {
		cfg.Defaults.Number = "150000"
	}
	if cfg.Defaults.Company == "" {
		cfg.Defaults.Company = "الهرم"
	}
	if cfg.Defaults.Date == "" {
		cfg.Defaults.Date = "2025-01-01"
	}
	if cfg.Defaults.Status == "" {
		cfg.Defaults.Status = "0"
	}
	if cfg.Defaults.User == "" {
		if cfg.Website.Username != "" {
			cfg.Defaults.User = cfg.Website.Username
		} else {
			cfg.Defaults.User = "hussein"
		}
	}
}
