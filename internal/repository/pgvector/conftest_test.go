package pgvector

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakePool records statements and replays canned rows.
type fakePool struct {
	execs   []string
	batches []*pgx.Batch

	execErr  error
	batchErr error
	queryErr error
	rows     [][]any
	count    int
}

func (f *fakePool) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	return pgconn.CommandTag{}, f.execErr
}

func (f *fakePool) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return &fakeRows{rows: f.rows, pos: -1}, nil
}

func (f *fakePool) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	return fakeRow{vals: []any{f.count}, err: f.queryErr}
}

func (f *fakePool) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	f.batches = append(f.batches, b)
	return &fakeBatchResults{err: f.batchErr}
}

func (f *fakePool) Ping(context.Context) error { return nil }

type fakeBatchResults struct {
	err    error
	closed bool
}

func (b *fakeBatchResults) Exec() (pgconn.CommandTag, error) { return pgconn.CommandTag{}, b.err }
func (b *fakeBatchResults) Query() (pgx.Rows, error)         { return nil, b.err }
func (b *fakeBatchResults) QueryRow() pgx.Row                { return fakeRow{err: b.err} }
func (b *fakeBatchResults) Close() error {
	b.closed = true
	return nil
}

type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(r.vals, dest)
}

type fakeRows struct {
	rows [][]any
	pos  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return r.rows[r.pos], nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos < len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error {
	return assign(r.rows[r.pos], dest)
}

func assign(vals, dest []any) error {
	if len(vals) != len(dest) {
		return fmt.Errorf("scan: %d values into %d targets", len(vals), len(dest))
	}
	for i, v := range vals {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *int:
			*d = v.(int)
		case *float64:
			*d = v.(float64)
		default:
			return fmt.Errorf("scan: unsupported target %T", d)
		}
	}
	return nil
}
