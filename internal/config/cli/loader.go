package cli_config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads path if given, then CLASSLY_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		_ = v.ReadInConfig()
	}

	v.SetDefault("base_url", "http://localhost:8080")
	v.SetDefault("http.timeout", "10s")
	v.SetDefault("http.insecure_skip_verify", false)
	v.SetDefault("credentials_file", defaultCredentialsFile())
	v.SetDefault("log_level", "warn")

	v.SetEnvPrefix("classly")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("base_url is required")
	}
	if cfg.CredentialsFile == "" {
		return nil, errors.New("credentials_file is required")
	}
	return &cfg, nil
}

func defaultCredentialsFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".classly-credentials.json"
	}
	return filepath.Join(dir, "classly", "credentials.json")
}
