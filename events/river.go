package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"

	"github.com/Togather-Foundation/conduit/config"
	"github.com/Togather-Foundation/conduit/database"
	"github.com/Togather-Foundation/conduit/registry"
)

// JobKindEventDispatch is the River job kind carrying published events.
const JobKindEventDispatch = "event_dispatch"

// DispatchArgs is the River job payload for one published event. Worker
// processes register a worker for this kind to fan events out to their
// actual consumers.
type DispatchArgs struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (DispatchArgs) Kind() string { return JobKindEventDispatch }

// RiverPublisher enqueues events as River jobs in Postgres, so publication
// rides on the database the rest of the system already trusts.
type RiverPublisher struct {
	client *river.Client[pgx.Tx]
}

// NewRiverPublisher returns a publisher backed by an insert-only River
// client on pool.
func NewRiverPublisher(pool *pgxpool.Pool) (*RiverPublisher, error) {
	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{})
	if err != nil {
		return nil, fmt.Errorf("events: river client: %w", err)
	}
	return &RiverPublisher{client: client}, nil
}

func (p *RiverPublisher) Publish(ctx context.Context, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}

	params := make([]river.InsertManyParams, 0, len(messages))
	for _, msg := range messages {
		payload, err := json.Marshal(msg.Payload)
		if err != nil {
			return fmt.Errorf("events: marshal payload for %s: %w", msg.Type, err)
		}
		params = append(params, river.InsertManyParams{
			Args: DispatchArgs{Type: msg.Type, Payload: payload},
		})
	}

	if _, err := p.client.InsertMany(ctx, params); err != nil {
		return fmt.Errorf("events: enqueue: %w", err)
	}
	return nil
}

func (p *RiverPublisher) Close(ctx context.Context) error {
	return p.client.Stop(ctx)
}

// Service returns a registry descriptor for a River publisher built from
// DATABASE_URL.
func Service(name string) *registry.Descriptor {
	return registry.NewService(name, func(ctx context.Context, env *config.Env) (any, error) {
		url, err := env.Require("DATABASE_URL")
		if err != nil {
			return nil, err
		}
		pool, err := database.Connect(ctx, url, env.Int("EVENTS_MAX_CONNECTIONS", 5))
		if err != nil {
			return nil, err
		}
		return NewRiverPublisher(pool)
	})
}
