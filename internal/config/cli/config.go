package cli_config

import (
	"github.com/NordCoder/Classly/internal/client/api"
)

type Config struct {
	BaseURL         string         `mapstructure:"base_url"`
	HTTP            api.HTTPConfig `mapstructure:"http"`
	CredentialsFile string         `mapstructure:"credentials_file"`
	LogLevel        string         `mapstructure:"log_level"`
}
