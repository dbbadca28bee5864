// Package postgres persists audit records in an audit_log table. The
// storage writes through whatever querier the coordinator supplies, so the
// same code path serves both the shared-transaction case (records join the
// endpoint's transaction) and the independent case (records use the
// storage's own backing connection).
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Togather-Foundation/conduit/audit"
	"github.com/Togather-Foundation/conduit/config"
	"github.com/Togather-Foundation/conduit/database"
	"github.com/Togather-Foundation/conduit/registry"
)

// Storage is a Postgres-backed audit storage.
type Storage struct {
	db          *database.DB
	serviceName string
}

// NewStorage returns a storage writing through db. databaseServiceName
// names the registry database service db was built from; when it matches
// an endpoint's declared database service, the coordinator routes audit
// writes through that endpoint's transaction instead of db.
func NewStorage(db *database.DB, databaseServiceName string) (*Storage, error) {
	if db == nil {
		return nil, fmt.Errorf("audit postgres: db is nil")
	}
	return &Storage{db: db, serviceName: databaseServiceName}, nil
}

// Service returns a registry descriptor for a Postgres audit storage built
// from DATABASE_URL. databaseServiceName tags the storage for transaction
// sharing with endpoints that declare that database service.
func Service(name, databaseServiceName string) *registry.Descriptor {
	return registry.NewService(name, func(ctx context.Context, env *config.Env) (any, error) {
		url, err := env.Require("DATABASE_URL")
		if err != nil {
			return nil, err
		}
		pool, err := database.Connect(ctx, url, env.Int("AUDIT_MAX_CONNECTIONS", 5))
		if err != nil {
			return nil, err
		}
		db, err := database.New(pool)
		if err != nil {
			return nil, err
		}
		return NewStorage(db, databaseServiceName)
	})
}

func (s *Storage) Write(ctx context.Context, q database.Querier, records []audit.Record) error {
	if q == nil {
		q = s.db.Querier()
	}
	for _, rec := range records {
		payload, err := json.Marshal(rec.Payload)
		if err != nil {
			return fmt.Errorf("audit postgres: marshal payload for %s: %w", rec.Type, err)
		}
		_, err = q.Exec(ctx, `
			INSERT INTO audit_log (id, type, entity_table, entity_id, request_id, payload, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			rec.ID, rec.Type, rec.EntityTable, rec.EntityID, rec.RequestID, payload, rec.RecordedAt,
		)
		if err != nil {
			return fmt.Errorf("audit postgres: insert %s: %w", rec.Type, err)
		}
	}
	return nil
}

func (s *Storage) Query(ctx context.Context, q database.Querier, filter audit.Filter) ([]audit.Record, error) {
	if q == nil {
		q = s.db.Querier()
	}

	var (
		conditions []string
		args       []any
	)
	addCondition := func(clause string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(clause, len(args)))
	}
	if filter.Type != "" {
		addCondition("type = $%d", filter.Type)
	}
	if filter.EntityTable != "" {
		addCondition("entity_table = $%d", filter.EntityTable)
	}
	if filter.EntityID != "" {
		addCondition("entity_id = $%d", filter.EntityID)
	}
	if !filter.Since.IsZero() {
		addCondition("recorded_at >= $%d", filter.Since)
	}

	query := "SELECT id, type, entity_table, entity_id, request_id, payload, recorded_at FROM audit_log"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY recorded_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit postgres: query: %w", err)
	}
	defer rows.Close()

	var records []audit.Record
	for rows.Next() {
		var (
			rec     audit.Record
			payload []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Type, &rec.EntityTable, &rec.EntityID, &rec.RequestID, &payload, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("audit postgres: scan: %w", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &rec.Payload); err != nil {
				return nil, fmt.Errorf("audit postgres: decode payload for %s: %w", rec.ID, err)
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit postgres: rows: %w", err)
	}
	return records, nil
}

func (s *Storage) Backing() *database.DB { return s.db }

func (s *Storage) DatabaseServiceName() string { return s.serviceName }
