// Package config loads Questlog settings from an optional YAML file with
// QUESTLOG_* environment overrides. Env always wins so deployments can
// keep credentials out of the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Host        string `yaml:"host"`
	Port        string `yaml:"port"`
	DBPath      string `yaml:"db_path"`
	FrontendURL string `yaml:"frontend_url"`

	// PublicURL is the externally reachable origin of this service, used
	// to build OAuth callback URLs the providers redirect back to.
	PublicURL string `yaml:"public_url"`

	Steam struct {
		APIKey string `yaml:"api_key"`
	} `yaml:"steam"`

	PSN struct {
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
	} `yaml:"psn"`

	Xbox struct {
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
	} `yaml:"xbox"`

	IGDB struct {
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
	} `yaml:"igdb"`

	RAWG struct {
		APIKey string `yaml:"api_key"`
	} `yaml:"rawg"`
}

// Load reads the first config file found (or none) and applies env
// overrides on top.
func Load() (Config, error) {
	cfg := defaults()

	path, err := resolveConfigPath()
	if err != nil {
		return cfg, err
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %q: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func defaults() Config {
	var cfg Config
	cfg.Host = "127.0.0.1"
	cfg.Port = "8080"
	cfg.DBPath = "questlog.db"
	cfg.FrontendURL = "http://localhost:5173"
	cfg.PublicURL = "http://localhost:8080"
	return cfg
}

func resolveConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("QUESTLOG_CONFIG_FILE")); explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", err
		}
		return explicit, nil
	}

	candidates := []string{
		"config/questlog.yaml",
		"./questlog.yaml",
		"/etc/questlog/questlog.yaml",
	}
	if homeDir, err := os.UserHomeDir(); err == nil && homeDir != "" {
		candidates = append(candidates,
			filepath.Join(homeDir, ".config", "questlog", "questlog.yaml"),
		)
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", nil
}

func applyEnv(cfg *Config) {
	override(&cfg.Host, "HOST")
	override(&cfg.Port, "PORT")
	override(&cfg.DBPath, "QUESTLOG_DB_PATH")
	override(&cfg.FrontendURL, "QUESTLOG_FRONTEND_URL")
	override(&cfg.PublicURL, "QUESTLOG_PUBLIC_URL")
	override(&cfg.Steam.APIKey, "QUESTLOG_STEAM_API_KEY")
	override(&cfg.PSN.ClientID, "QUESTLOG_PSN_CLIENT_ID")
	override(&cfg.PSN.ClientSecret, "QUESTLOG_PSN_CLIENT_SECRET")
	override(&cfg.Xbox.ClientID, "QUESTLOG_XBOX_CLIENT_ID")
	override(&cfg.Xbox.ClientSecret, "QUESTLOG_XBOX_CLIENT_SECRET")
	override(&cfg.IGDB.ClientID, "QUESTLOG_IGDB_CLIENT_ID")
	override(&cfg.IGDB.ClientSecret, "QUESTLOG_IGDB_CLIENT_SECRET")
	override(&cfg.RAWG.APIKey, "QUESTLOG_RAWG_API_KEY")
}

func override(dst *string, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*dst = v
	}
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}
