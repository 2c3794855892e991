package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Factor:       2.0,
	}
}

func TestDoSucceedsFirstTry(t *testing.T) {
	calls := 0
	result := Do(context.Background(), fastConfig(), func() error {
		calls++
		return nil
	})
	if result.Err != nil || result.Attempts != 1 || calls != 1 {
		t.Errorf("result = %+v, calls = %d", result, calls)
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	result := Do(context.Background(), fastConfig(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if result.Err != nil || result.Attempts != 3 {
		t.Errorf("result = %+v", result)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	wantErr := errors.New("always failing")
	result := Do(context.Background(), fastConfig(), func() error { return wantErr })
	if !errors.Is(result.Err, wantErr) || result.Attempts != 3 {
		t.Errorf("result = %+v", result)
	}
}

func TestDoStopsOnPermanent(t *testing.T) {
	calls := 0
	result := Do(context.Background(), fastConfig(), func() error {
		calls++
		return Permanent(errors.New("bad request"))
	})
	if calls != 1 || result.Attempts != 1 {
		t.Errorf("permanent error retried: calls = %d", calls)
	}
	if !IsPermanent(result.Err) {
		t.Error("permanence lost on the way out")
	}
}

func TestDoRetryIf(t *testing.T) {
	transient := errors.New("rate limited")
	fatal := errors.New("invalid key")
	cfg := fastConfig()
	cfg.RetryIf = func(err error) bool { return errors.Is(err, transient) }

	t.Run("accepted error retries", func(t *testing.T) {
		calls := 0
		result := Do(context.Background(), cfg, func() error {
			calls++
			if calls == 1 {
				return transient
			}
			return nil
		})
		if result.Err != nil || result.Attempts != 2 {
			t.Errorf("result = %+v", result)
		}
	})

	t.Run("rejected error stops immediately", func(t *testing.T) {
		calls := 0
		result := Do(context.Background(), cfg, func() error {
			calls++
			return fatal
		})
		if calls != 1 || !errors.Is(result.Err, fatal) {
			t.Errorf("calls = %d, err = %v", calls, result.Err)
		}
	})
}

func TestDoContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	cfg := fastConfig()
	cfg.InitialDelay = time.Hour

	done := make(chan Result, 1)
	go func() {
		done <- Do(ctx, cfg, func() error {
			calls++
			return errors.New("transient")
		})
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case result := <-done:
		if !errors.Is(result.Err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", result.Err)
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	case <-time.After(time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestDoWithValue(t *testing.T) {
	calls := 0
	value, result := DoWithValue(context.Background(), fastConfig(), func() (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("transient")
		}
		return "answer", nil
	})
	if value != "answer" || result.Err != nil || result.Attempts != 2 {
		t.Errorf("value = %q, result = %+v", value, result)
	}
}

func TestPermanentNil(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
	if IsPermanent(errors.New("plain")) {
		t.Error("plain error reported permanent")
	}
}

func TestExponential(t *testing.T) {
	cfg := Exponential(5, time.Second, time.Minute)
	if cfg.MaxAttempts != 5 || cfg.InitialDelay != time.Second || cfg.MaxDelay != time.Minute {
		t.Errorf("cfg = %+v", cfg)
	}
}
