// pkg/kafka/producer_test.go
package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/Egor251/taskflow/pkg/backoff"
	"github.com/Egor251/taskflow/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", DevMode: true})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func fastBackoff() backoff.Config {
	return backoff.Config{
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		MaxElapsedTime:  50 * time.Millisecond,
	}
}

func TestProducerConfig_Defaults(t *testing.T) {
	cfg := ProducerConfig{Brokers: []string{"localhost:9092"}}
	cfg.applyDefaults()

	if cfg.RequiredAcks != "all" {
		t.Errorf("RequiredAcks = %q, want all", cfg.RequiredAcks)
	}
	if cfg.Compression != "none" {
		t.Errorf("Compression = %q, want none", cfg.Compression)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", cfg.Timeout)
	}
}

func TestProducerConfig_Validate(t *testing.T) {
	cfg := ProducerConfig{}
	if err := cfg.validate(); err == nil {
		t.Error("validate: want error for empty brokers")
	}
}

func TestBuildSaramaConfig_Acks(t *testing.T) {
	cases := []struct {
		acks    string
		want    sarama.RequiredAcks
		wantErr bool
	}{
		{"all", sarama.WaitForAll, false},
		{"leader", sarama.WaitForLocal, false},
		{"none", sarama.NoResponse, false},
		{"ALL", sarama.WaitForAll, false},
		{"quorum", 0, true},
	}
	for _, c := range cases {
		sc, err := buildSaramaConfig(ProducerConfig{RequiredAcks: c.acks, Compression: "none", Timeout: time.Second})
		if c.wantErr {
			if err == nil {
				t.Errorf("acks %q: want error", c.acks)
			}
			continue
		}
		if err != nil {
			t.Errorf("acks %q: %v", c.acks, err)
			continue
		}
		if sc.Producer.RequiredAcks != c.want {
			t.Errorf("acks %q: got %v, want %v", c.acks, sc.Producer.RequiredAcks, c.want)
		}
	}
}

func TestBuildSaramaConfig_Compression(t *testing.T) {
	cases := []struct {
		comp    string
		want    sarama.CompressionCodec
		wantErr bool
	}{
		{"none", sarama.CompressionNone, false},
		{"gzip", sarama.CompressionGZIP, false},
		{"snappy", sarama.CompressionSnappy, false},
		{"lz4", sarama.CompressionLZ4, false},
		{"zstd", sarama.CompressionZSTD, false},
		{"brotli", 0, true},
	}
	for _, c := range cases {
		sc, err := buildSaramaConfig(ProducerConfig{RequiredAcks: "all", Compression: c.comp, Timeout: time.Second})
		if c.wantErr {
			if err == nil {
				t.Errorf("compression %q: want error", c.comp)
			}
			continue
		}
		if err != nil {
			t.Errorf("compression %q: %v", c.comp, err)
			continue
		}
		if sc.Producer.Compression != c.want {
			t.Errorf("compression %q: got %v, want %v", c.comp, sc.Producer.Compression, c.want)
		}
	}
}

// Идемпотентность требует MaxOpenRequests = 1 — иначе sarama падает на старте.
func TestBuildSaramaConfig_Idempotent(t *testing.T) {
	sc, err := buildSaramaConfig(ProducerConfig{RequiredAcks: "all", Compression: "none", Timeout: time.Second})
	if err != nil {
		t.Fatalf("buildSaramaConfig: %v", err)
	}
	if !sc.Producer.Idempotent {
		t.Error("Idempotent = false, want true")
	}
	if sc.Net.MaxOpenRequests != 1 {
		t.Errorf("MaxOpenRequests = %d, want 1", sc.Net.MaxOpenRequests)
	}
}

func TestPublish_Success(t *testing.T) {
	mock := mocks.NewSyncProducer(t, sarama.NewConfig())
	mock.ExpectSendMessageAndSucceed()

	p := &kafkaProducer{prod: mock, logger: testLogger(t), backoffCfg: fastBackoff()}
	err := p.Publish(context.Background(), "out", []byte("k"), []byte("v"),
		map[string][]byte{"h": []byte("1")})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := mock.Close(); err != nil {
		t.Errorf("mock close: %v", err)
	}
}

// Первая отправка падает, retry добивает доставку.
func TestPublish_RetryThenSuccess(t *testing.T) {
	mock := mocks.NewSyncProducer(t, sarama.NewConfig())
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	mock.ExpectSendMessageAndSucceed()

	p := &kafkaProducer{prod: mock, logger: testLogger(t), backoffCfg: fastBackoff()}
	if err := p.Publish(context.Background(), "out", nil, []byte("v"), nil); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := mock.Close(); err != nil {
		t.Errorf("mock close: %v", err)
	}
}

func TestPublish_GivesUp(t *testing.T) {
	mock := mocks.NewSyncProducer(t, sarama.NewConfig())
	for i := 0; i < 16; i++ {
		mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	}

	p := &kafkaProducer{prod: mock, logger: testLogger(t), backoffCfg: fastBackoff()}
	err := p.Publish(context.Background(), "out", nil, []byte("v"), nil)

	var emr *backoff.ErrMaxRetries
	if !errors.As(err, &emr) {
		t.Fatalf("err = %v, want *backoff.ErrMaxRetries", err)
	}
}
