package email_notifier_config

import (
	"time"

	"github.com/NordCoder/Classly/internal/obs"
	kafkax "github.com/NordCoder/Classly/internal/repository/kafka"
)

type KafkaIn struct {
	Brokers       []string `mapstructure:"brokers"`
	Topic         string   `mapstructure:"topic"`
	GroupID       string   `mapstructure:"group_id"`
	FromBeginning bool     `mapstructure:"from_beginning"`

	Partitions        int           `mapstructure:"partitions"`
	ReplicationFactor int           `mapstructure:"replication_factor"`
	EnsureWait        time.Duration `mapstructure:"ensure_wait"`
}

func (k *KafkaIn) AsConsumerConfig() *kafkax.ConsumerConfig {
	return &kafkax.ConsumerConfig{
		Brokers:       k.Brokers,
		GroupID:       k.GroupID,
		Topic:         k.Topic,
		FromBeginning: k.FromBeginning,
	}
}

func (k *KafkaIn) TopicSpec() kafkax.TopicSpec {
	return kafkax.TopicSpec{
		Name:              k.Topic,
		NumPartitions:     k.Partitions,
		ReplicationFactor: k.ReplicationFactor,
		MaxWait:           k.EnsureWait,
	}
}

type SMTP struct {
	Addr               string        `mapstructure:"addr"`
	From               string        `mapstructure:"from"`
	User               string        `mapstructure:"user"`
	Password           string        `mapstructure:"password"`
	UseTLS             bool          `mapstructure:"use_tls"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	Timeout            time.Duration `mapstructure:"timeout"`
	SubjPrefix         string        `mapstructure:"subj_prefix"`
}

type Server struct {
	MetricsAddr string `mapstructure:"metrics_addr"`
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
	return obs.LogConfig{
		Level:  lc.Level,
		Pretty: lc.Pretty,
		App:    "classly/email-notifier",
	}
}

type Config struct {
	In       KafkaIn `mapstructure:"kafka_in"`
	SMTP     SMTP    `mapstructure:"smtp"`
	Server   Server  `mapstructure:"server"`
	OTEL     OTEL    `mapstructure:"otel"`
	Log      Log     `mapstructure:"log"`
	ResetURL string  `mapstructure:"reset_url"`
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
