// internal/publisher/publisher_test.go
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Egor251/taskflow/internal/metrics"
	"github.com/Egor251/taskflow/internal/task"
	"github.com/Egor251/taskflow/pkg/kafka"
	"github.com/Egor251/taskflow/pkg/logger"
)

func TestMain(m *testing.M) {
	metrics.Register(prometheus.NewRegistry())
	m.Run()
}

// fakeProducer запоминает опубликованные сообщения.
type fakeProducer struct {
	published []published
	failWith  error
}

type published struct {
	topic   string
	key     []byte
	value   []byte
	headers map[string][]byte
}

func (f *fakeProducer) Publish(_ context.Context, topic string, key, value []byte, headers map[string][]byte) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.published = append(f.published, published{topic, key, value, headers})
	return nil
}

func (f *fakeProducer) Ping(context.Context) error { return nil }
func (f *fakeProducer) Close() error               { return nil }

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", DevMode: true})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func testTask() *task.Task {
	return &task.Task{
		ID:       "t-1",
		Payload:  map[string]any{"x": float64(1)},
		Priority: 2,
		Meta: task.SourceMetadata{
			Topic:     "service-requests",
			Partition: 0,
			Offset:    7,
			Timestamp: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		},
	}
}

func TestPublishSuccess(t *testing.T) {
	fp := &fakeProducer{}
	p := New(fp, "service-results", "service-results-errors", "double", testLogger(t))

	if err := p.PublishSuccess(context.Background(), testTask(), map[string]any{"x": float64(2)}); err != nil {
		t.Fatalf("PublishSuccess: %v", err)
	}
	if len(fp.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(fp.published))
	}

	got := fp.published[0]
	if got.topic != "service-results" {
		t.Errorf("topic = %q, want service-results", got.topic)
	}
	if string(got.key) != "t-1" {
		t.Errorf("key = %q, want task_id", got.key)
	}

	var env task.SuccessEnvelope
	if err := json.Unmarshal(got.value, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.Status != "completed" {
		t.Errorf("status = %q, want completed", env.Status)
	}
	if env.TaskID != "t-1" || env.Processor != "double" {
		t.Errorf("envelope = %+v", env)
	}
	if env.Result["x"] != float64(2) {
		t.Errorf("result = %v, want x=2", env.Result)
	}
	if env.Metadata.Offset != 7 {
		t.Errorf("metadata offset = %d, want 7", env.Metadata.Offset)
	}
	if string(got.headers["processor_type"]) != "double" {
		t.Errorf("headers = %v, missing processor_type", got.headers)
	}
}

func TestPublishFailure_SchemaError(t *testing.T) {
	fp := &fakeProducer{}
	p := New(fp, "service-results", "service-results-errors", "echo", testLogger(t))

	msg := &kafka.Message{
		Value:     []byte(`{"task_id":42}`),
		Topic:     "service-requests",
		Partition: 1,
		Offset:    13,
		Commit:    func() {},
	}
	cause := &task.SchemaError{Schema: "request", Violations: []string{"task_id: expected string, got number"}}

	if err := p.PublishFailure(context.Background(), msg, nil, cause); err != nil {
		t.Fatalf("PublishFailure: %v", err)
	}
	got := fp.published[0]
	if got.topic != "service-results-errors" {
		t.Errorf("topic = %q, want error topic", got.topic)
	}

	var env task.FailureEnvelope
	if err := json.Unmarshal(got.value, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.ErrorType != "SchemaError" {
		t.Errorf("error_type = %q, want SchemaError", env.ErrorType)
	}
	if env.OriginalMessage != `{"task_id":42}` {
		t.Errorf("original_message = %q, исходная нагрузка потеряна", env.OriginalMessage)
	}
	if env.MessageMetadata.Offset != 13 {
		t.Errorf("metadata offset = %d, want 13", env.MessageMetadata.Offset)
	}
	// Задача не была построена — контекста нет.
	if env.Context != nil {
		t.Errorf("context = %v, want nil for pre-validation failure", env.Context)
	}
	if string(got.headers["error_type"]) != "SchemaError" {
		t.Errorf("headers = %v", got.headers)
	}
}

func TestPublishFailure_WithTaskContext(t *testing.T) {
	fp := &fakeProducer{}
	p := New(fp, "service-results", "service-results-errors", "echo", testLogger(t))

	tk := testTask()
	msg := &kafka.Message{Value: []byte(`{}`), Topic: "service-requests", Commit: func() {}}
	cause := &task.ProcessingError{Processor: "echo", Err: errors.New("boom"), Stack: "stacktrace"}

	if err := p.PublishFailure(context.Background(), msg, tk, cause); err != nil {
		t.Fatalf("PublishFailure: %v", err)
	}

	var env task.FailureEnvelope
	if err := json.Unmarshal(fp.published[0].value, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.ErrorType != "ProcessingError" {
		t.Errorf("error_type = %q", env.ErrorType)
	}
	if env.Stack != "stacktrace" {
		t.Errorf("stack = %q, want preserved", env.Stack)
	}
	td, ok := env.Context["task_data"].(map[string]any)
	if !ok {
		t.Fatalf("context = %v, want task_data", env.Context)
	}
	if td["task_id"] != "t-1" {
		t.Errorf("task_data = %v", td)
	}
}

func TestPublishFailure_ProducerDown(t *testing.T) {
	fp := &fakeProducer{failWith: errors.New("broker unavailable")}
	p := New(fp, "service-results", "service-results-errors", "echo", testLogger(t))

	msg := &kafka.Message{Value: []byte(`{}`), Topic: "service-requests", Commit: func() {}}
	err := p.PublishFailure(context.Background(), msg, nil, &task.DecodeError{Err: errors.New("bad json")})

	var pe *task.PublishError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *task.PublishError", err)
	}
	if pe.Topic != "service-results-errors" {
		t.Errorf("topic = %q", pe.Topic)
	}
}
