package actor

import (
	"context"
	"errors"
	"testing"
	"time"

	"fleetops/internal/api"
)

func TestRetryOnce(t *testing.T) {
	retryable := errors.New("retry me")
	classify := func(err error) (api.Wait, bool) {
		if errors.Is(err, retryable) {
			return api.Wait{Kind: api.WaitCooldown, Duration: time.Second}, true
		}
		return api.Wait{}, false
	}

	cases := []struct {
		name      string
		results   []error
		wantCalls int
		wantWaits int
		wantErr   error
	}{
		{"success", []error{nil}, 1, 0, nil},
		{"terminal", []error{errors.New("boom")}, 1, 0, nil},
		{"retry succeeds", []error{retryable, nil}, 2, 1, nil},
		{"retry fails", []error{retryable, retryable}, 2, 1, retryable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			calls, waits := 0, 0
			op := func(context.Context) error {
				err := tc.results[calls]
				calls++
				return err
			}
			wait := func(_ context.Context, w api.Wait) error {
				waits++
				if w.Duration != time.Second {
					t.Fatalf("wait got %v", w.Duration)
				}
				return nil
			}
			err := RetryOnce(context.Background(), op, classify, wait)
			if calls != tc.wantCalls || waits != tc.wantWaits {
				t.Fatalf("calls=%d waits=%d, want %d/%d", calls, waits, tc.wantCalls, tc.wantWaits)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			if tc.name == "success" || tc.name == "retry succeeds" {
				if err != nil {
					t.Fatalf("unexpected error %v", err)
				}
			}
		})
	}
}

func TestRetryOnceStopsWhenWaitFails(t *testing.T) {
	calls := 0
	op := func(context.Context) error { calls++; return errors.New("cooldown for 5 seconds") }
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := RetryOnce(ctx, op, api.Classify, func(ctx context.Context, _ api.Wait) error { return ctx.Err() })
	if !errors.Is(err, context.Canceled) || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}
