package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgcontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/Togather-Foundation/conduit/audit"
	"github.com/Togather-Foundation/conduit/database"
)

var (
	sharedOnce    sync.Once
	sharedInitErr error
	sharedPool    *pgxpool.Pool
	sharedDBURL   string
)

const sharedContainerName = "conduit-audit-db"

func TestMain(m *testing.M) {
	code := m.Run()
	if sharedPool != nil {
		sharedPool.Close()
	}
	os.Exit(code)
}

func setupStorage(t *testing.T, ctx context.Context) *Storage {
	t.Helper()

	initShared(t)

	_, err := sharedPool.Exec(ctx, "TRUNCATE TABLE audit_log")
	require.NoError(t, err)

	db, err := database.New(sharedPool)
	require.NoError(t, err)
	storage, err := NewStorage(db, "db")
	require.NoError(t, err)
	return storage
}

func initShared(t *testing.T) {
	t.Helper()
	sharedOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		// Disable ryuk (resource reaper) to prevent premature container cleanup
		_ = os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

		container, err := pgcontainer.Run(
			ctx,
			"postgres:16-alpine",
			pgcontainer.WithDatabase("conduit"),
			pgcontainer.WithUsername("conduit"),
			pgcontainer.WithPassword("conduit_dev"),
			testcontainers.WithReuseByName(sharedContainerName),
		)
		if err != nil {
			sharedInitErr = err
			return
		}

		dbURL, err := container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			sharedInitErr = err
			return
		}
		sharedDBURL = dbURL

		if err := Migrate(dbURL); err != nil {
			sharedInitErr = err
			return
		}

		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			sharedInitErr = err
			return
		}
		sharedPool = pool
	})

	require.NoError(t, sharedInitErr)
}

func makeRecord(typ, table, entityID string, payload any) audit.Record {
	return audit.Record{
		ID:          ulid.Make().String(),
		Type:        typ,
		EntityTable: table,
		EntityID:    entityID,
		RequestID:   "req-test",
		Payload:     payload,
		RecordedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestStorageWriteAndQuery(t *testing.T) {
	ctx := context.Background()
	storage := setupStorage(t, ctx)

	records := []audit.Record{
		makeRecord("user.created", "users", "u1", map[string]any{"name": "Ada"}),
		makeRecord("user.created", "users", "u2", map[string]any{"name": "Grace"}),
		makeRecord("user.deleted", "users", "u1", nil),
	}
	require.NoError(t, storage.Write(ctx, nil, records))

	all, err := storage.Query(ctx, nil, audit.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	created, err := storage.Query(ctx, nil, audit.Filter{Type: "user.created"})
	require.NoError(t, err)
	require.Len(t, created, 2)

	byEntity, err := storage.Query(ctx, nil, audit.Filter{EntityTable: "users", EntityID: "u1"})
	require.NoError(t, err)
	require.Len(t, byEntity, 2)

	limited, err := storage.Query(ctx, nil, audit.Filter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestStoragePayloadRoundTrip(t *testing.T) {
	ctx := context.Background()
	storage := setupStorage(t, ctx)

	rec := makeRecord("order.placed", "orders", "o1", map[string]any{"total": "19.90", "items": float64(3)})
	require.NoError(t, storage.Write(ctx, nil, []audit.Record{rec}))

	got, err := storage.Query(ctx, nil, audit.Filter{Type: "order.placed"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, rec.ID, got[0].ID)
	require.Equal(t, rec.RequestID, got[0].RequestID)

	payload, ok := got[0].Payload.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "19.90", payload["total"])
	require.Equal(t, float64(3), payload["items"])
}

func TestStorageQuerySince(t *testing.T) {
	ctx := context.Background()
	storage := setupStorage(t, ctx)

	old := makeRecord("user.created", "users", "u1", nil)
	old.RecordedAt = time.Now().UTC().Add(-time.Hour)
	recent := makeRecord("user.created", "users", "u2", nil)
	require.NoError(t, storage.Write(ctx, nil, []audit.Record{old, recent}))

	got, err := storage.Query(ctx, nil, audit.Filter{Since: time.Now().UTC().Add(-time.Minute)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, recent.ID, got[0].ID)
}

// Writes routed through a caller transaction must roll back with it.
func TestStorageWriteRollsBackWithTransaction(t *testing.T) {
	ctx := context.Background()
	storage := setupStorage(t, ctx)

	sentinel := errors.New("handler failed")
	err := storage.Backing().WithTx(ctx, func(ctx context.Context, db *database.DB) error {
		rec := makeRecord("user.created", "users", "u1", nil)
		if err := storage.Write(ctx, db.Querier(), []audit.Record{rec}); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	got, err := storage.Query(ctx, nil, audit.Filter{})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestMigrateIdempotent(t *testing.T) {
	initShared(t)
	require.NoError(t, Migrate(sharedDBURL))
	require.NoError(t, Migrate(sharedDBURL))
}
