package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envConfigPath = "TAPCALL_CONFIG"

// searchPaths returns config file locations in override order.
func searchPaths() []string {
	paths := []string{"/etc/tapcall/tapcall.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "tapcall", "tapcall.yaml"))
	}
	paths = append(paths, "tapcall.yaml")
	if p := os.Getenv(envConfigPath); p != "" {
		paths = append(paths, p)
	}
	return paths
}

// Load reads ./.env (if present), then YAML files in searchPaths order, then
// environment overrides.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	cfg := Defaults()
	for _, path := range searchPaths() {
		if err := loadFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		}
	}
	return finish(cfg)
}

// LoadFromFile reads a single config file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	cfg := Defaults()
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	if err := loadFile(cfg, path); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadDotEnv never overrides variables already set in the environment.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v := strings.TrimSpace(os.Getenv("TAPCALL_BASE_URL")); v != "" {
		cfg.Server.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("TAPCALL_LOG_LEVEL")); v != "" {
		cfg.Log.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("TAPCALL_STORE_DRIVER")); v != "" {
		cfg.Store.Driver = v
	}
	if v := strings.TrimSpace(os.Getenv("TAPCALL_STATIC_DIR")); v != "" {
		cfg.Static.Dir = v
	}
	return nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

var structValidator = validator.New()

func validate(cfg *Config) error {
	if err := structValidator.Struct(cfg); err != nil {
		return err
	}
	cfg.Server.BaseURL = strings.TrimRight(cfg.Server.BaseURL, "/")
	cfg.Store.DSN = ExpandHome(cfg.Store.DSN)
	cfg.Tenancy.TenantsFile = ExpandHome(cfg.Tenancy.TenantsFile)
	cfg.Static.Dir = ExpandHome(cfg.Static.Dir)
	if cfg.Tenancy.Enabled && cfg.Tenancy.TenantsFile == "" && len(cfg.Tenancy.Tenants) == 0 {
		return fmt.Errorf("tenancy.enabled requires tenancy.tenants_file or tenancy.tenants")
	}
	return nil
}
