package audit

import (
	"context"
	"fmt"

	"github.com/Togather-Foundation/conduit/database"
)

// Plan tells the coordinator how one request's audit writes relate to the
// handler's database effects.
type Plan struct {
	// Storage is nil when the endpoint declares no auditor; the body then
	// runs with a nil recorder and mappings are skipped.
	Storage Storage

	// DB is the endpoint's database handle, already bound to the request
	// transaction when SharedDB is set.
	DB *database.DB

	// SharedDB marks that the storage writes through the same database
	// service the endpoint declared, so audit writes join the handler's
	// transaction and roll back with it.
	SharedDB bool

	Mappings  []Mapping
	RequestID string
}

// Recorder is the manual audit surface handed to handlers. Records raised
// through it join the same transactional unit as the declarative mappings.
type Recorder struct {
	write     func(ctx context.Context, records []Record) error
	buffered  []Record
	requestID string
}

// RecordOption annotates a manually raised record.
type RecordOption func(*Record)

// WithTable sets the entity table a record refers to.
func WithTable(table string) RecordOption {
	return func(r *Record) { r.EntityTable = table }
}

// WithEntityID sets the entity a record refers to.
func WithEntityID(id string) RecordOption {
	return func(r *Record) { r.EntityID = id }
}

// Audit records one entry immediately. With a transactional storage the
// write lands in the open transaction and is discarded on rollback; without
// one the entry is buffered until the handler succeeds.
func (r *Recorder) Audit(ctx context.Context, typ string, payload any, opts ...RecordOption) error {
	if r == nil {
		return fmt.Errorf("audit: no audit storage configured for this endpoint")
	}
	rec := newRecord(typ, payload, r.requestID)
	for _, opt := range opts {
		opt(&rec)
	}
	if r.write == nil {
		r.buffered = append(r.buffered, rec)
		return nil
	}
	return r.write(ctx, []Record{rec})
}

// ExecuteInTransaction runs body inside the audit transactional unit the
// plan describes and, on success, evaluates the declarative mappings
// against body's result. On any body failure no audit record is persisted,
// declarative or manual.
func ExecuteInTransaction(ctx context.Context, plan Plan, body func(ctx context.Context, rec *Recorder) (any, error)) (any, error) {
	if plan.Storage == nil {
		return body(ctx, nil)
	}

	if plan.SharedDB {
		return executeShared(ctx, plan, body)
	}
	if backing := plan.Storage.Backing(); backing != nil {
		return executeOwnTx(ctx, plan, backing, body)
	}
	return executeBuffered(ctx, plan, body)
}

// executeShared writes audit records through the endpoint's own open
// transaction: handler writes and audit writes commit or roll back as one.
func executeShared(ctx context.Context, plan Plan, body func(ctx context.Context, rec *Recorder) (any, error)) (any, error) {
	if plan.DB == nil || !plan.DB.InTx() {
		return nil, fmt.Errorf("audit: shared storage requires an open request transaction")
	}

	recorder := &Recorder{
		requestID: plan.RequestID,
		write: func(ctx context.Context, records []Record) error {
			return plan.Storage.Write(ctx, plan.DB.Querier(), records)
		},
	}

	output, err := body(ctx, recorder)
	if err != nil {
		return nil, err
	}
	if records := evaluate(plan.Mappings, output, plan.RequestID); len(records) > 0 {
		if err := plan.Storage.Write(ctx, plan.DB.Querier(), records); err != nil {
			return nil, fmt.Errorf("audit: write mapped records: %w", err)
		}
	}
	return output, nil
}

// executeOwnTx runs audit writes in an independent transaction on the
// storage's backing connection. Handler effects and audit effects are
// separate units: a failed audit write does not roll the handler back,
// and vice versa.
func executeOwnTx(ctx context.Context, plan Plan, backing *database.DB, body func(ctx context.Context, rec *Recorder) (any, error)) (any, error) {
	var output any
	err := backing.WithTx(ctx, func(ctx context.Context, txdb *database.DB) error {
		recorder := &Recorder{
			requestID: plan.RequestID,
			write: func(ctx context.Context, records []Record) error {
				return plan.Storage.Write(ctx, txdb.Querier(), records)
			},
		}

		var bodyErr error
		output, bodyErr = body(ctx, recorder)
		if bodyErr != nil {
			return bodyErr
		}
		if records := evaluate(plan.Mappings, output, plan.RequestID); len(records) > 0 {
			if err := plan.Storage.Write(ctx, txdb.Querier(), records); err != nil {
				return fmt.Errorf("audit: write mapped records: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return output, nil
}

// executeBuffered serves storages without a transactional backing: manual
// records are held in memory and flushed together with the mapped ones only
// after the body succeeds, which is observably the same as write-then-
// rollback.
func executeBuffered(ctx context.Context, plan Plan, body func(ctx context.Context, rec *Recorder) (any, error)) (any, error) {
	recorder := &Recorder{requestID: plan.RequestID}

	output, err := body(ctx, recorder)
	if err != nil {
		return nil, err
	}

	records := append(recorder.buffered, evaluate(plan.Mappings, output, plan.RequestID)...)
	if len(records) > 0 {
		if err := plan.Storage.Write(ctx, nil, records); err != nil {
			return nil, fmt.Errorf("audit: flush records: %w", err)
		}
	}
	return output, nil
}
