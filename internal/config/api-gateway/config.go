package api_gateway_config

import (
	"time"

	"github.com/NordCoder/Classly/internal/obs"
	"github.com/NordCoder/Classly/internal/outbox"
	kafkax "github.com/NordCoder/Classly/internal/repository/kafka"
	pg "github.com/NordCoder/Classly/internal/repository/postgres"
	redisx "github.com/NordCoder/Classly/internal/repository/redis"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type Server struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

type OTEL struct {
	Enable       bool    `mapstructure:"enable"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

func (oc *OTEL) AsOTELConfig(app App) *obs.OTELConfig {
	return &obs.OTELConfig{
		Enable:      oc.Enable,
		Endpoint:    oc.OTLPEndpoint,
		ServiceName: oc.ServiceName,
		Version:     app.Version,
		Env:         app.Env,
		SampleRatio: oc.SampleRatio,
	}
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

func (lc *Log) AsLoggerConfig(app App) obs.LogConfig {
	return obs.LogConfig{
		Level:  lc.Level,
		Pretty: lc.Pretty,
		App:    "classly/" + app.Name,
		Env:    app.Env,
		Ver:    app.Version,
	}
}

type Auth struct {
	AccessSecret  string        `mapstructure:"access_secret"`
	RefreshSecret string        `mapstructure:"refresh_secret"`
	Issuer        string        `mapstructure:"issuer"`
	AccessTTL     time.Duration `mapstructure:"access_ttl"`
	RefreshTTL    time.Duration `mapstructure:"refresh_ttl"`
	ResetTTL      time.Duration `mapstructure:"reset_ttl"`
	BcryptCost    int           `mapstructure:"bcrypt_cost"`

	ExposeResetToken bool `mapstructure:"expose_reset_token"`

	CookieName   string `mapstructure:"cookie_name"`
	CookieDomain string `mapstructure:"cookie_domain"`
	CookiePath   string `mapstructure:"cookie_path"`
	CookieSecure bool   `mapstructure:"cookie_secure"`
}

type Kafka struct {
	Enable  bool             `mapstructure:"enable"`
	Brokers []string         `mapstructure:"brokers"`
	Topic   kafkax.TopicSpec `mapstructure:"topic"`
}

type Window struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

type RateLimit struct {
	Login Window `mapstructure:"login"`
	Reset Window `mapstructure:"reset"`
}

type Config struct {
	App       App           `mapstructure:"app"`
	Server    Server        `mapstructure:"server"`
	Storage   string        `mapstructure:"storage"`
	DB        pg.Config     `mapstructure:"db"`
	OTEL      OTEL          `mapstructure:"otel"`
	Log       Log           `mapstructure:"log"`
	Auth      Auth          `mapstructure:"auth"`
	Kafka     Kafka         `mapstructure:"kafka"`
	Outbox    outbox.Config `mapstructure:"outbox"`
	Redis     redisx.Config `mapstructure:"redis"`
	RateLimit RateLimit     `mapstructure:"rate_limit"`
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
