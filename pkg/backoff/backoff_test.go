// pkg/backoff/backoff_test.go
package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

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

func fastConfig() Config {
	return Config{
		InitialInterval:     time.Millisecond,
		RandomizationFactor: 0.1,
		Multiplier:          1.5,
		MaxInterval:         5 * time.Millisecond,
		MaxElapsedTime:      100 * time.Millisecond,
	}
}

func TestExecute_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Execute(context.Background(), fastConfig(), testLogger(t), "test-op", func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestExecute_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Execute(context.Background(), fastConfig(), testLogger(t), "test-op", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestExecute_GivesUpAfterMaxElapsed(t *testing.T) {
	boom := errors.New("still broken")
	err := Execute(context.Background(), fastConfig(), testLogger(t), "test-op", func(context.Context) error {
		return boom
	})

	var emr *ErrMaxRetries
	if !errors.As(err, &emr) {
		t.Fatalf("err = %v, want *ErrMaxRetries", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("err does not wrap the last failure")
	}
	if emr.Attempts < 2 {
		t.Errorf("attempts = %d, want at least 2", emr.Attempts)
	}
}

func TestExecute_PermanentStopsImmediately(t *testing.T) {
	calls := 0
	boom := errors.New("fatal")
	err := Execute(context.Background(), fastConfig(), testLogger(t), "test-op", func(context.Context) error {
		calls++
		return Permanent(boom)
	})
	if err == nil {
		t.Fatal("Execute: want error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, permanent errors must not be retried", calls)
	}
}

func TestExecute_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Execute(ctx, Config{InitialInterval: time.Hour}, testLogger(t), "test-op", func(context.Context) error {
		return errors.New("transient")
	})
	if err == nil {
		t.Fatal("Execute: want error after context cancellation")
	}
}

func TestConfig_Validate(t *testing.T) {
	bad := Config{RandomizationFactor: 2}
	if err := Execute(context.Background(), bad, testLogger(t), "test-op", func(context.Context) error { return nil }); err == nil {
		t.Error("want validation error for RandomizationFactor > 1")
	}

	bad = Config{Multiplier: 0.5}
	if err := Execute(context.Background(), bad, testLogger(t), "test-op", func(context.Context) error { return nil }); err == nil {
		t.Error("want validation error for Multiplier < 1")
	}
}
