package sweep

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestRun_AllItems(t *testing.T) {
	var count int32
	errs := Run(context.Background(), 25, 4, func(_ context.Context, i int) error {
		atomic.AddInt32(&count, 1)
		if i == 7 {
			return errors.New("boom")
		}
		return nil
	})
	if count != 25 {
		t.Errorf("expected 25 calls, got %d", count)
	}
	if len(errs) != 25 {
		t.Fatalf("expected 25 results, got %d", len(errs))
	}
	for i, err := range errs {
		if i == 7 && err == nil {
			t.Error("expected error at index 7")
		}
		if i != 7 && err != nil {
			t.Errorf("unexpected error at %d: %v", i, err)
		}
	}
}

func TestRun_BoundsConcurrency(t *testing.T) {
	var inFlight, peak int32
	Run(context.Background(), 40, 3, func(_ context.Context, _ int) error {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		atomic.AddInt32(&inFlight, -1)
		return nil
	})
	if peak > 3 {
		t.Errorf("expected at most 3 in flight, saw %d", peak)
	}
}

func TestRun_CancelBetweenSubBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int32

	errs := Run(ctx, 10, 2, func(_ context.Context, i int) error {
		atomic.AddInt32(&calls, 1)
		if i == 1 {
			cancel()
		}
		return nil
	})

	if calls != 2 {
		t.Errorf("expected only the first sub-batch to run, got %d calls", calls)
	}
	if errs[0] != nil || errs[1] != nil {
		t.Errorf("in-flight sub-batch results must be kept, got %v %v", errs[0], errs[1])
	}
	for i := 2; i < 10; i++ {
		if !errors.Is(errs[i], context.Canceled) {
			t.Errorf("index %d: expected context.Canceled, got %v", i, errs[i])
		}
	}
}

func TestRun_Empty(t *testing.T) {
	if errs := Run(context.Background(), 0, 4, nil); len(errs) != 0 {
		t.Errorf("expected no results, got %d", len(errs))
	}
}
