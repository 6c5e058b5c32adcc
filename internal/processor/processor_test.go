// internal/processor/processor_test.go
package processor

import (
	"context"
	"testing"

	"github.com/Egor251/taskflow/internal/task"
	"github.com/Egor251/taskflow/pkg/logger"
)

// fakeStorage имитирует Redis-хранилище меток.
type fakeStorage struct {
	seen map[string]bool
}

func (f *fakeStorage) SetFirstSeen(_ context.Context, key string) (bool, error) {
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

func (f *fakeStorage) Close() error { return nil }

func testDeps(t *testing.T) Deps {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", DevMode: true})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return Deps{Log: log, Redis: &fakeStorage{}}
}

func TestNew_Unknown(t *testing.T) {
	if _, err := New("no-such-processor", testDeps(t)); err == nil {
		t.Fatal("New: want error for unknown processor")
	}
}

func TestEcho(t *testing.T) {
	p, err := New("echo", testDeps(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	in := map[string]any{"a": "b", "n": float64(7)}
	out, err := p.Process(context.Background(), &task.Task{ID: "t", Payload: in})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out["a"] != "b" || out["n"] != float64(7) {
		t.Errorf("out = %v, want copy of input", out)
	}
}

func TestDouble(t *testing.T) {
	p, err := New("double", testDeps(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := p.Process(context.Background(), &task.Task{
		ID:      "t",
		Payload: map[string]any{"x": float64(1), "s": "keep"},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out["x"] != float64(2) {
		t.Errorf("x = %v, want 2", out["x"])
	}
	if out["s"] != "keep" {
		t.Errorf("s = %v, нечисловые поля должны копироваться как есть", out["s"])
	}
}

func TestDedup(t *testing.T) {
	deps := testDeps(t)
	p, err := New("dedup", deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tk := &task.Task{ID: "t-1", Payload: map[string]any{}}
	out, err := p.Process(context.Background(), tk)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out["duplicate"] != false {
		t.Errorf("first delivery: duplicate = %v, want false", out["duplicate"])
	}

	// Повторная доставка того же task_id.
	out, err = p.Process(context.Background(), tk)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out["duplicate"] != true {
		t.Errorf("redelivery: duplicate = %v, want true", out["duplicate"])
	}
}

func TestDedup_RequiresRedis(t *testing.T) {
	deps := testDeps(t)
	deps.Redis = nil
	if _, err := New("dedup", deps); err == nil {
		t.Fatal("New: want error when redis storage is absent")
	}
}
