package sqlstore

import (
	"context"

	"github.com/msa-portal/portal-backend/internal/backend"
	"gorm.io/gorm"
)

// Tx exposes the collection operations bound to the transaction of a running procedure.
type Tx struct {
	store *Store
	conn  *gorm.DB
}

func (t *Tx) Query(ctx context.Context, collection string, spec backend.QuerySpec) ([]backend.Row, int, error) {
	return t.store.query(ctx, t.conn, collection, spec)
}

// Get loads a single row by id.
func (t *Tx) Get(ctx context.Context, collection, id string) (backend.Row, error) {
	rows, _, err := t.store.query(ctx, t.conn, collection, backend.QuerySpec{
		Filters: []backend.Filter{backend.Eq(backend.FieldID, id)},
		Limit:   1,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, backend.Errorf(backend.KindNotFound, "get "+collection, "%s %s not found", collection, id)
	}
	return rows[0], nil
}

func (t *Tx) Insert(ctx context.Context, collection string, row backend.Row) (backend.Row, error) {
	return t.store.insert(ctx, t.conn, collection, row)
}

func (t *Tx) Update(ctx context.Context, collection, id string, patch backend.Row) (backend.Row, error) {
	return t.store.update(ctx, t.conn, collection, id, patch)
}

func (t *Tx) Delete(ctx context.Context, collection, id string) error {
	return t.store.delete(ctx, t.conn, collection, id)
}

// Exec runs a raw statement inside the transaction and returns the affected rows.
func (t *Tx) Exec(ctx context.Context, statement string, args ...any) (int64, error) {
	res := t.conn.WithContext(ctx).Exec(statement, args...)
	if res.Error != nil {
		return 0, classify("exec", res.Error)
	}
	return res.RowsAffected, nil
}
