// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalYAML = `
kafka:
  brokers:
    - "localhost:9092"
`

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Kafka.ConsumerTopic != "service-requests" {
		t.Errorf("consumer_topic = %q", cfg.Kafka.ConsumerTopic)
	}
	if cfg.Kafka.ProducerTopic != "service-results" {
		t.Errorf("producer_topic = %q", cfg.Kafka.ProducerTopic)
	}
	if got := cfg.Kafka.ErrorTopic(); got != "service-results-errors" {
		t.Errorf("ErrorTopic() = %q, want producer topic + suffix", got)
	}
	if cfg.Pipeline.Mode != "sequential" {
		t.Errorf("mode = %q, want sequential", cfg.Pipeline.Mode)
	}
	if cfg.Pipeline.MaxWorkers != 3 {
		t.Errorf("max_workers = %d, want 3", cfg.Pipeline.MaxWorkers)
	}
	if cfg.Pipeline.Processor != "echo" || cfg.Pipeline.ValidatorSchema != "request" {
		t.Errorf("pipeline = %+v", cfg.Pipeline)
	}
	if cfg.HTTP.Port != 8090 {
		t.Errorf("http.port = %d", cfg.HTTP.Port)
	}
	if cfg.HTTP.ReadTimeout != 10*time.Second {
		t.Errorf("read_timeout = %v", cfg.HTTP.ReadTimeout)
	}
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
kafka:
  brokers: ["k1:9092", "k2:9092"]
  producer_topic: "math-results"
  error_topic_suffix: "-dlq"
  acks: "leader"
  compression: "gzip"
pipeline:
  mode: "pool"
  max_workers: 8
  queue_size: 32
  processor: "double"
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(cfg.Kafka.Brokers) != 2 {
		t.Errorf("brokers = %v", cfg.Kafka.Brokers)
	}
	if got := cfg.Kafka.ErrorTopic(); got != "math-results-dlq" {
		t.Errorf("ErrorTopic() = %q", got)
	}
	if cfg.Pipeline.Mode != "pool" || cfg.Pipeline.MaxWorkers != 8 || cfg.Pipeline.QueueSize != 32 {
		t.Errorf("pipeline = %+v", cfg.Pipeline)
	}
	if cfg.Pipeline.Processor != "double" {
		t.Errorf("processor = %q", cfg.Pipeline.Processor)
	}
}

func TestLoad_MissingBrokers(t *testing.T) {
	_, err := Load(writeConfig(t, `
pipeline:
  mode: "sequential"
`))
	if err == nil || !strings.Contains(err.Error(), "brokers") {
		t.Fatalf("err = %v, want brokers validation error", err)
	}
}

func TestLoad_InvalidMode(t *testing.T) {
	_, err := Load(writeConfig(t, minimalYAML+`
pipeline:
  mode: "turbo"
`))
	if err == nil || !strings.Contains(err.Error(), "pipeline.mode") {
		t.Fatalf("err = %v, want mode validation error", err)
	}
}

func TestLoad_InvalidAcks(t *testing.T) {
	_, err := Load(writeConfig(t, `
kafka:
  brokers: ["localhost:9092"]
  acks: "quorum"
`))
	if err == nil || !strings.Contains(err.Error(), "acks") {
		t.Fatalf("err = %v, want acks validation error", err)
	}
}

func TestLoad_ZeroWorkers(t *testing.T) {
	_, err := Load(writeConfig(t, minimalYAML+`
pipeline:
  max_workers: 0
`))
	if err == nil || !strings.Contains(err.Error(), "max_workers") {
		t.Fatalf("err = %v, want max_workers validation error", err)
	}
}
