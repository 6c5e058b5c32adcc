// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/Egor251/taskflow/pkg/backoff"
	"github.com/Egor251/taskflow/pkg/redis"
)

// -----------------------------------------------------------------------------
// Структуры
// -----------------------------------------------------------------------------

type Config struct {
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`

	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Redis     redis.Config    `mapstructure:"redis"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	HTTP      HTTPConfig      `mapstructure:"http"`
}

type KafkaConfig struct {
	Brokers          []string       `mapstructure:"brokers"`
	ConsumerTopic    string         `mapstructure:"consumer_topic"`
	ProducerTopic    string         `mapstructure:"producer_topic"`
	ErrorTopicSuffix string         `mapstructure:"error_topic_suffix"`
	ConsumerGroup    string         `mapstructure:"consumer_group"`
	Version          string         `mapstructure:"version"`
	Timeout          time.Duration  `mapstructure:"timeout"`
	Acks             string         `mapstructure:"acks"`
	Compression      string         `mapstructure:"compression"`
	Backoff          backoff.Config `mapstructure:"backoff"`
}

// ErrorTopic — топик ошибок: producer_topic + суффикс.
func (k KafkaConfig) ErrorTopic() string {
	return k.ProducerTopic + k.ErrorTopicSuffix
}

type PipelineConfig struct {
	// Mode: "sequential" — строгий порядок, одна задача за раз;
	// "pool" — пул воркеров, порядок завершения не гарантируется.
	Mode            string `mapstructure:"mode"`
	MaxWorkers      int    `mapstructure:"max_workers"`
	QueueSize       int    `mapstructure:"queue_size"` // 0 → 2×max_workers
	Processor       string `mapstructure:"processor"`
	ValidatorSchema string `mapstructure:"validator_schema"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otel_endpoint"`
	Insecure     bool   `mapstructure:"insecure"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	DevMode bool   `mapstructure:"dev_mode"`
}

type HTTPConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MetricsPath     string        `mapstructure:"metrics_path"`
	HealthzPath     string        `mapstructure:"healthz_path"`
	ReadyzPath      string        `mapstructure:"readyz_path"`
}

// -----------------------------------------------------------------------------
// Load
// -----------------------------------------------------------------------------

func Load(path string) (*Config, error) {
	v := viper.New()

	/* ---------- 1) defaults ---------- */

	v.SetDefault("service_name", "taskflow")
	v.SetDefault("service_version", "v1.0.0")

	// Kafka
	v.SetDefault("kafka.consumer_topic", "service-requests")
	v.SetDefault("kafka.producer_topic", "service-results")
	v.SetDefault("kafka.error_topic_suffix", "-errors")
	v.SetDefault("kafka.consumer_group", "taskflow-group")
	v.SetDefault("kafka.timeout", "15s")
	v.SetDefault("kafka.acks", "all")
	v.SetDefault("kafka.compression", "none")

	// Pipeline
	v.SetDefault("pipeline.mode", "sequential")
	v.SetDefault("pipeline.max_workers", 3)
	v.SetDefault("pipeline.queue_size", 0)
	v.SetDefault("pipeline.processor", "echo")
	v.SetDefault("pipeline.validator_schema", "request")

	// Redis (опционально; нужен только процессорам с состоянием)
	v.SetDefault("redis.ttl", "24h")

	// Telemetry
	v.SetDefault("telemetry.otel_endpoint", "otel-collector:4317")
	v.SetDefault("telemetry.insecure", false)

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.dev_mode", false)

	// HTTP
	v.SetDefault("http.port", 8090)
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "15s")
	v.SetDefault("http.idle_timeout", "60s")
	v.SetDefault("http.shutdown_timeout", "5s")
	v.SetDefault("http.metrics_path", "/metrics")
	v.SetDefault("http.healthz_path", "/healthz")
	v.SetDefault("http.readyz_path", "/readyz")

	/* ---------- 2) env ---------- */

	v.SetEnvPrefix("TASKFLOW")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	/* ---------- 3) optional file ---------- */

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	/* ---------- 4) decode ---------- */

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		func(f, t reflect.Kind, data interface{}) (interface{}, error) {
			if f == reflect.String && t == reflect.Bool {
				return strconv.ParseBool(data.(string))
			}
			return data, nil
		},
	)
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    "mapstructure",
		Result:     &cfg,
		DecodeHook: decodeHook,
	})
	if err != nil {
		return nil, fmt.Errorf("create config decoder: %w", err)
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	/* ---------- 5) validate ---------- */

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// -----------------------------------------------------------------------------
// Validation helpers
// -----------------------------------------------------------------------------

func (c *Config) Validate() error {
	// service
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.ServiceVersion == "" {
		return fmt.Errorf("service_version is required")
	}

	// kafka
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required")
	}
	if c.Kafka.ConsumerTopic == "" {
		return fmt.Errorf("kafka.consumer_topic is required")
	}
	if c.Kafka.ProducerTopic == "" {
		return fmt.Errorf("kafka.producer_topic is required")
	}
	if c.Kafka.ErrorTopicSuffix == "" {
		return fmt.Errorf("kafka.error_topic_suffix is required")
	}
	if c.Kafka.ConsumerGroup == "" {
		return fmt.Errorf("kafka.consumer_group is required")
	}
	if c.Kafka.Timeout <= 0 {
		return fmt.Errorf("kafka.timeout must be > 0")
	}
	switch strings.ToLower(c.Kafka.Acks) {
	case "all", "leader", "none":
	default:
		return fmt.Errorf("kafka.acks must be one of [all, leader, none]")
	}
	switch strings.ToLower(c.Kafka.Compression) {
	case "none", "gzip", "snappy", "lz4", "zstd":
	default:
		return fmt.Errorf("kafka.compression must be one of [none, gzip, snappy, lz4, zstd]")
	}

	// pipeline
	switch c.Pipeline.Mode {
	case "sequential", "pool":
	default:
		return fmt.Errorf("pipeline.mode must be one of [sequential, pool]")
	}
	if c.Pipeline.MaxWorkers < 1 {
		return fmt.Errorf("pipeline.max_workers must be >= 1")
	}
	if c.Pipeline.QueueSize < 0 {
		return fmt.Errorf("pipeline.queue_size must be >= 0")
	}
	if c.Pipeline.Processor == "" {
		return fmt.Errorf("pipeline.processor is required")
	}
	if c.Pipeline.ValidatorSchema == "" {
		return fmt.Errorf("pipeline.validator_schema is required")
	}

	// telemetry
	if c.Telemetry.OTLPEndpoint == "" {
		return fmt.Errorf("telemetry.otel_endpoint is required")
	}

	// logging
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error]")
	}

	// http
	return validateHTTP(&c.HTTP)
}

func validateHTTP(h *HTTPConfig) error {
	if h.Port <= 0 || h.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535")
	}
	durations := map[string]time.Duration{
		"http.read_timeout":     h.ReadTimeout,
		"http.write_timeout":    h.WriteTimeout,
		"http.idle_timeout":     h.IdleTimeout,
		"http.shutdown_timeout": h.ShutdownTimeout,
	}
	for k, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be > 0", k)
		}
	}
	paths := map[string]string{
		"http.metrics_path": h.MetricsPath,
		"http.healthz_path": h.HealthzPath,
		"http.readyz_path":  h.ReadyzPath,
	}
	for k, p := range paths {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("%s must start with '/'", k)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Debug print
// -----------------------------------------------------------------------------

func (c *Config) Print() {
	b, _ := json.MarshalIndent(c, "", "  ")
	fmt.Println("Loaded configuration:\n", string(b))
}
