package events

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"
)

const (
	dispatchMaxAttempts = 5
	dispatchBaseDelay   = 30 * time.Second
	dispatchMaxDelay    = 30 * time.Minute
)

// DispatchFunc delivers one event to its consumers. Returning an error
// schedules a retry per the dispatch retry policy.
type DispatchFunc func(ctx context.Context, msg Message) error

// DispatchWorker works event_dispatch jobs enqueued by RiverPublisher.
type DispatchWorker struct {
	river.WorkerDefaults[DispatchArgs]
	dispatch DispatchFunc
}

func (w DispatchWorker) Work(ctx context.Context, job *river.Job[DispatchArgs]) error {
	msg := Message{Type: job.Args.Type}
	if len(job.Args.Payload) > 0 {
		msg.Payload = job.Args.Payload
	}
	if err := w.dispatch(ctx, msg); err != nil {
		return fmt.Errorf("events: dispatch %s: %w", job.Args.Type, err)
	}
	return nil
}

// RetryPolicy backs off exponentially from dispatchBaseDelay, capped at
// dispatchMaxDelay.
type RetryPolicy struct{}

func (RetryPolicy) NextRetry(job *rivertype.JobRow) time.Time {
	attempt := job.Attempt
	if attempt < 1 {
		attempt = 1
	}

	delay := time.Duration(float64(dispatchBaseDelay) * math.Pow(2, float64(attempt-1)))
	if delay > dispatchMaxDelay {
		delay = dispatchMaxDelay
	}

	if job.AttemptedAt != nil {
		return job.AttemptedAt.Add(delay)
	}
	return time.Now().Add(delay)
}

// NewWorkerClient builds a working River client that consumes the event
// queue with fn. Callers own Start/Stop.
func NewWorkerClient(pool *pgxpool.Pool, fn DispatchFunc) (*river.Client[pgx.Tx], error) {
	if fn == nil {
		return nil, fmt.Errorf("events: dispatch func is nil")
	}

	workers := river.NewWorkers()
	river.AddWorker[DispatchArgs](workers, DispatchWorker{dispatch: fn})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Workers:     workers,
		RetryPolicy: RetryPolicy{},
		MaxAttempts: dispatchMaxAttempts,
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("events: worker client: %w", err)
	}
	return client, nil
}
