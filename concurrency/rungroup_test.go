package concurrency

import (
	"context"
	"errors"
	"testing"
)

func TestRunGroupWaitsForAllAndReturnsNilOnSuccess(t *testing.T) {
	var calls int32
	err := RunGroup(context.Background(),
		func(ctx context.Context) error { calls++; return nil },
		func(ctx context.Context) error { calls++; return nil },
	)
	if err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

var errBoom = errors.New("boom")

func TestRunGroupReturnsFirstErrorAndCancelsOthers(t *testing.T) {
	cancelled := make(chan struct{})

	err := RunGroup(context.Background(),
		func(ctx context.Context) error { return errBoom },
		func(ctx context.Context) error {
			<-ctx.Done()
			close(cancelled)

			return nil
		},
	)
	if !errors.Is(err, errBoom) {
		t.Errorf("err = %v, want errBoom", err)
	}

	select {
	case <-cancelled:
	default:
		t.Error("expected the sibling function's context to be cancelled")
	}
}
