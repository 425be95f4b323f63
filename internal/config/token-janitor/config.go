package token_janitor_config

import (
	"time"

	"github.com/NordCoder/Classly/internal/obs"
	pginfra "github.com/NordCoder/Classly/internal/repository/postgres"
)

type Janitor struct {
	Tick           time.Duration `mapstructure:"tick"`
	BatchLimit     int           `mapstructure:"batch_limit"`
	MaxBatches     int           `mapstructure:"max_batches"`
	ResetRetention time.Duration `mapstructure:"reset_retention"`
	MetricsAddr    string        `mapstructure:"metrics_addr"`
}

type OTEL struct {
	Enable       bool    `mapstructure:"enable"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

func (oc *OTEL) AsOTELConfig() *obs.OTELConfig {
	return &obs.OTELConfig{
		Enable:      oc.Enable,
		Endpoint:    oc.OTLPEndpoint,
		ServiceName: oc.ServiceName,
		SampleRatio: oc.SampleRatio,
	}
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

func (lc *Log) AsLoggerConfig() obs.LogConfig {
	return obs.LogConfig{Level: lc.Level, Pretty: lc.Pretty, App: "classly/token-janitor"}
}

type Config struct {
	DB      pginfra.Config `mapstructure:"db"`
	Janitor Janitor        `mapstructure:"janitor"`
	OTEL    OTEL           `mapstructure:"otel"`
	Log     Log            `mapstructure:"log"`
}
