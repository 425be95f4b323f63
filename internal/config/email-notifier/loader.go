package email_notifier_config

import (
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		_ = v.ReadInConfig()
	}

	v.SetDefault("kafka_in.brokers", []string{"kafka:9092"})
	v.SetDefault("kafka_in.topic", "classly.auth.password-reset")
	v.SetDefault("kafka_in.group_id", "email-notifier")
	v.SetDefault("kafka_in.from_beginning", false)
	v.SetDefault("kafka_in.partitions", 3)
	v.SetDefault("kafka_in.replication_factor", 1)
	v.SetDefault("kafka_in.ensure_wait", "10s")

	v.SetDefault("smtp.addr", "localhost:1025")
	v.SetDefault("smtp.from", "noreply@classly.dev")
	v.SetDefault("smtp.use_tls", false)
	v.SetDefault("smtp.insecure_skip_verify", false)
	v.SetDefault("smtp.timeout", "5s")
	v.SetDefault("smtp.subj_prefix", "[Classly]")

	v.SetDefault("otel.enable", false)
	v.SetDefault("otel.service_name", "email-notifier")
	v.SetDefault("otel.sample_ratio", 1.0)
	v.SetDefault("otel.otlp_endpoint", "localhost:4317")

	v.SetDefault("server.metrics_addr", ":8084")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("reset_url", "http://localhost:3000/reset-password")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if len(cfg.In.Brokers) == 0 || cfg.In.Topic == "" {
		return nil, ErrConfig("kafka_in.brokers and kafka_in.topic are required")
	}
	if u, err := url.Parse(cfg.ResetURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, ErrConfig("reset_url must be an absolute URL")
	}
	return &cfg, nil
}
