package rls

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedExec struct {
	sql  string
	args []any
}

// recordingQuerier captures Exec calls and optionally fails on a
// configured parameter name.
type recordingQuerier struct {
	execs  []recordedExec
	failOn string
}

func (q *recordingQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	q.execs = append(q.execs, recordedExec{sql: sql, args: args})
	if q.failOn != "" && len(args) > 0 && args[0] == q.failOn {
		return pgconn.CommandTag{}, errors.New("connection reset")
	}
	return pgconn.CommandTag{}, nil
}

func (q *recordingQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (q *recordingQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

func TestApplySetsTransactionLocalParameters(t *testing.T) {
	q := &recordingQuerier{}
	err := Apply(t.Context(), q, "app", Context{
		"tenant_id": "t-1",
		"role":      "member",
	})
	require.NoError(t, err)

	require.Len(t, q.execs, 2)
	for _, exec := range q.execs {
		assert.Equal(t, "SELECT set_config($1, $2, true)", exec.sql)
	}
	// Keys are applied in sorted order.
	assert.Equal(t, []any{"app.role", "member"}, q.execs[0].args)
	assert.Equal(t, []any{"app.tenant_id", "t-1"}, q.execs[1].args)
}

func TestApplyDefaultsPrefix(t *testing.T) {
	q := &recordingQuerier{}
	require.NoError(t, Apply(t.Context(), q, "", Context{"tenant_id": "t-1"}))

	require.Len(t, q.execs, 1)
	assert.Equal(t, []any{"app.tenant_id", "t-1"}, q.execs[0].args)
}

func TestApplyRejectsMalformedKeyBeforeQuerying(t *testing.T) {
	q := &recordingQuerier{}
	err := Apply(t.Context(), q, "app", Context{"tenant;drop": "x"})
	require.Error(t, err)
	assert.Empty(t, q.execs)
}

func TestApplyStopsOnFirstFailure(t *testing.T) {
	q := &recordingQuerier{failOn: "app.role"}
	err := Apply(t.Context(), q, "app", Context{
		"tenant_id": "t-1",
		"role":      "member",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "app.role")
	require.Len(t, q.execs, 1)
}
