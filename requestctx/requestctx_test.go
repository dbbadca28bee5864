package requestctx

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestAccessorsOutsideContext(t *testing.T) {
	ctx := context.Background()

	if Has(ctx) {
		t.Error("Has should be false with no context bound")
	}
	if _, err := RequestID(ctx); !errors.Is(err, ErrNotBound) {
		t.Errorf("expected ErrNotBound, got %v", err)
	}
	if _, err := Logger(ctx); !errors.Is(err, ErrNotBound) {
		t.Errorf("expected ErrNotBound, got %v", err)
	}
	if _, err := StartTime(ctx); !errors.Is(err, ErrNotBound) {
		t.Errorf("expected ErrNotBound, got %v", err)
	}
}

func TestBoundContext(t *testing.T) {
	start := time.Now()
	ctx := With(context.Background(), Context{
		Logger:    zerolog.Nop(),
		RequestID: "req-1",
		StartTime: start,
	})

	if !Has(ctx) {
		t.Fatal("Has should be true")
	}
	id, err := RequestID(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "req-1" {
		t.Errorf("expected req-1, got %s", id)
	}
	got, err := StartTime(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(start) {
		t.Errorf("expected %v, got %v", start, got)
	}
}

func TestNestingShadowsAndRestores(t *testing.T) {
	outer := With(context.Background(), Context{RequestID: "outer"})
	inner := With(outer, Context{RequestID: "inner"})

	if id, _ := RequestID(inner); id != "inner" {
		t.Errorf("inner subtree should observe inner, got %s", id)
	}
	if id, _ := RequestID(outer); id != "outer" {
		t.Errorf("outer context should be untouched, got %s", id)
	}
}

// Two interleaved request call graphs must never observe each other's
// request ID, including after suspension points.
func TestConcurrentIsolation(t *testing.T) {
	const rounds = 100
	var wg sync.WaitGroup

	worker := func(id string) {
		defer wg.Done()
		ctx := With(context.Background(), Context{RequestID: id})
		for i := 0; i < rounds; i++ {
			time.Sleep(time.Microsecond)
			got, err := RequestID(ctx)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if got != id {
				t.Errorf("request %s observed %s", id, got)
				return
			}
		}
	}

	wg.Add(2)
	go worker("A")
	go worker("B")
	wg.Wait()
}
