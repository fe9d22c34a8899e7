package sheetsource

import (
	"errors"
	"testing"

	"google.golang.org/api/googleapi"
)

func TestRetry_SucceedsWithoutRetryOnFirstAttempt(t *testing.T) {
	calls := 0
	err := retry(2, func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected exactly one call, got %d", calls)
	}
}

func TestRetry_RetriesOnRateLimitThenSucceeds(t *testing.T) {
	calls := 0
	err := retry(2, func() error {
		calls++
		if calls < 2 {
			return &googleapi.Error{Code: 429}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestRetry_DoesNotRetryNonTransientError(t *testing.T) {
	calls := 0
	wantErr := errors.New("permission denied")
	err := retry(3, func() error {
		calls++
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("expected the original error to surface, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected exactly one call for a non-transient error, got %d", calls)
	}
}

func TestRetry_ExhaustsRetriesOnPersistentRateLimit(t *testing.T) {
	calls := 0
	err := retry(2, func() error {
		calls++
		return &googleapi.Error{Code: 503}
	})
	if err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
	if calls != 3 {
		t.Errorf("expected 1 initial attempt + 2 retries = 3 calls, got %d", calls)
	}
}
