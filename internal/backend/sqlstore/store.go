package sqlstore

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/msa-portal/portal-backend/internal/backend"
	"github.com/msa-portal/portal-backend/pkg/db"
	"github.com/msa-portal/portal-backend/pkg/logger"
	"gorm.io/gorm"
)

var identifierRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Procedure is a server-side routine executed atomically inside one transaction.
type Procedure func(ctx context.Context, tx *Tx, args map[string]any) (any, error)

type conn interface {
	DB() *gorm.DB
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Params configure the SQL backend.
type Params struct {
	DB     conn
	Logger *logger.Logger
	Now    func() time.Time
	NewID  func() string
}

// Store implements backend.Backend on top of the shared gorm connection.
type Store struct {
	db    conn
	logg  *logger.Logger
	now   func() time.Time
	newID func() string

	mu         sync.RWMutex
	procedures map[string]Procedure
}

var _ backend.Backend = (*Store)(nil)

// New builds a SQL backend.
func New(params Params) (*Store, error) {
	if params.DB == nil {
		return nil, errors.New("db client required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	newID := params.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &Store{
		db:         params.DB,
		logg:       params.Logger,
		now:        now,
		newID:      newID,
		procedures: map[string]Procedure{},
	}, nil
}

// NewFromClient is a convenience wrapper for the shared db client.
func NewFromClient(client *db.Client, logg *logger.Logger) (*Store, error) {
	if client == nil {
		return nil, errors.New("db client required")
	}
	return New(Params{DB: client, Logger: logg})
}

// Register makes a procedure callable through Call. Later registrations win.
func (s *Store) Register(name string, proc Procedure) {
	if proc == nil || !identifierRe.MatchString(name) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.procedures[name] = proc
}

func (s *Store) procedure(name string) (Procedure, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	proc, ok := s.procedures[name]
	return proc, ok
}

func (s *Store) Query(ctx context.Context, collection string, spec backend.QuerySpec) ([]backend.Row, int, error) {
	return s.query(ctx, s.db.DB(), collection, spec)
}

func (s *Store) Insert(ctx context.Context, collection string, row backend.Row) (backend.Row, error) {
	return s.insert(ctx, s.db.DB(), collection, row)
}

func (s *Store) Update(ctx context.Context, collection, id string, patch backend.Row) (backend.Row, error) {
	return s.update(ctx, s.db.DB(), collection, id, patch)
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	return s.delete(ctx, s.db.DB(), collection, id)
}

// Call runs a registered procedure in a transaction. Unregistered names are
// forwarded to a database function taking and returning jsonb on Postgres.
func (s *Store) Call(ctx context.Context, procedure string, args map[string]any) (backend.Payload, error) {
	op := "call " + procedure
	if !identifierRe.MatchString(procedure) {
		return nil, backend.Errorf(backend.KindProcedureMissing, op, "invalid procedure name")
	}
	proc, ok := s.procedure(procedure)
	if !ok {
		return s.callDatabaseFunction(ctx, procedure, args)
	}

	var result any
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		out, err := proc(ctx, &Tx{store: s, conn: tx}, args)
		if err != nil {
			return err
		}
		result = out
		return nil
	})
	if err != nil {
		return nil, classify(op, err)
	}
	payload, err := backend.NewPayload(result)
	if err != nil {
		return nil, &backend.Error{Kind: backend.KindMalformed, Op: op, Err: err}
	}
	return payload, nil
}

func (s *Store) callDatabaseFunction(ctx context.Context, procedure string, args map[string]any) (backend.Payload, error) {
	op := "call " + procedure
	if s.db.DB().Dialector.Name() != "postgres" {
		return nil, backend.Errorf(backend.KindProcedureMissing, op, "procedure %q is not registered", procedure)
	}
	encoded, err := backend.NewPayload(args)
	if err != nil {
		return nil, &backend.Error{Kind: backend.KindMalformed, Op: op, Err: err}
	}
	var raw []byte
	row := s.db.DB().WithContext(ctx).Raw(fmt.Sprintf("SELECT %s(?::jsonb)", procedure), string(encoded)).Row()
	if err := row.Scan(&raw); err != nil {
		return nil, classify(op, err)
	}
	return backend.Payload(raw), nil
}

// CurrentUser returns the caller attached to ctx by the auth middleware.
func (s *Store) CurrentUser(ctx context.Context) (*backend.User, error) {
	return backend.UserFromContext(ctx), nil
}

func (s *Store) query(ctx context.Context, conn *gorm.DB, collection string, spec backend.QuerySpec) ([]backend.Row, int, error) {
	op := "query " + collection
	if err := validateIdentifier(op, collection); err != nil {
		return nil, 0, err
	}

	base := conn.WithContext(ctx).Table(collection)
	base, err := applyFilters(op, base, spec.Filters)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, classify(op, err)
	}

	read := base.Session(&gorm.Session{})
	for _, order := range spec.Order {
		if err := validateIdentifier(op, order.Field); err != nil {
			return nil, 0, err
		}
		direction := "ASC"
		if order.Desc {
			direction = "DESC"
		}
		read = read.Order(fmt.Sprintf("%s %s", order.Field, direction))
	}
	if spec.Limit > 0 {
		read = read.Limit(spec.Limit)
	}
	if spec.Offset > 0 {
		read = read.Offset(spec.Offset)
	}

	var raw []map[string]any
	if err := read.Find(&raw).Error; err != nil {
		return nil, 0, classify(op, err)
	}

	rows := make([]backend.Row, 0, len(raw))
	for _, r := range raw {
		rows = append(rows, scannedRow(r))
	}
	return rows, int(total), nil
}

func applyFilters(op string, q *gorm.DB, filters []backend.Filter) (*gorm.DB, error) {
	for _, f := range filters {
		if err := validateIdentifier(op, f.Field); err != nil {
			return nil, err
		}
		switch f.Op {
		case backend.OpEq, "":
			q = q.Where(fmt.Sprintf("%s = ?", f.Field), f.Value)
		case backend.OpNeq:
			q = q.Where(fmt.Sprintf("%s <> ?", f.Field), f.Value)
		case backend.OpILike:
			needle := strings.ToLower(fmt.Sprint(f.Value))
			q = q.Where(fmt.Sprintf("LOWER(%s) LIKE ?", f.Field), "%"+needle+"%")
		case backend.OpIn:
			q = q.Where(fmt.Sprintf("%s IN ?", f.Field), f.Value)
		case backend.OpGte:
			q = q.Where(fmt.Sprintf("%s >= ?", f.Field), f.Value)
		case backend.OpLte:
			q = q.Where(fmt.Sprintf("%s <= ?", f.Field), f.Value)
		default:
			return nil, backend.Errorf(backend.KindMalformed, op, "unsupported filter op %q", f.Op)
		}
	}
	return q, nil
}

func (s *Store) insert(ctx context.Context, conn *gorm.DB, collection string, row backend.Row) (backend.Row, error) {
	op := "insert " + collection
	if err := validateIdentifier(op, collection); err != nil {
		return nil, err
	}
	record := row.Clone()
	if record.ID() == "" {
		record[backend.FieldID] = s.newID()
	}
	now := s.now().UTC()
	record[backend.FieldCreatedAt] = now
	record[backend.FieldUpdatedAt] = now
	for field := range record {
		if err := validateIdentifier(op, field); err != nil {
			return nil, err
		}
	}

	if err := conn.WithContext(ctx).Table(collection).Create(map[string]any(record)).Error; err != nil {
		return nil, classify(op, err)
	}
	return record, nil
}

func (s *Store) update(ctx context.Context, conn *gorm.DB, collection, id string, patch backend.Row) (backend.Row, error) {
	op := "update " + collection
	if err := validateIdentifier(op, collection); err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, backend.Errorf(backend.KindMalformed, op, "id is required")
	}
	changes := patch.Clone()
	delete(changes, backend.FieldID)
	delete(changes, backend.FieldCreatedAt)
	changes[backend.FieldUpdatedAt] = s.now().UTC()
	for field := range changes {
		if err := validateIdentifier(op, field); err != nil {
			return nil, err
		}
	}

	res := conn.WithContext(ctx).Table(collection).Where("id = ?", id).Updates(map[string]any(changes))
	if res.Error != nil {
		return nil, classify(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, backend.Errorf(backend.KindNotFound, op, "%s %s not found", collection, id)
	}

	out := map[string]any{}
	if err := conn.WithContext(ctx).Table(collection).Where("id = ?", id).Take(&out).Error; err != nil {
		return nil, classify(op, err)
	}
	return scannedRow(out), nil
}

// scannedRow unwraps the scan destinations gorm leaves in map results. The
// SQLite driver reports UUID and TIMESTAMPTZ columns without a scan type, so
// their values arrive as *any.
func scannedRow(raw map[string]any) backend.Row {
	row := make(backend.Row, len(raw))
	for field, value := range raw {
		row[field] = scannedValue(value)
	}
	return row
}

func scannedValue(v any) any {
	for depth := 0; depth < 4; depth++ {
		switch v.(type) {
		case nil, time.Time, string, []byte:
			return v
		}
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Pointer && rv.IsNil() {
			return nil
		}
		if valuer, ok := v.(driver.Valuer); ok {
			val, err := valuer.Value()
			if err != nil {
				return v
			}
			v = val
			continue
		}
		if rv.Kind() != reflect.Pointer {
			return v
		}
		v = rv.Elem().Interface()
	}
	return v
}

func (s *Store) delete(ctx context.Context, conn *gorm.DB, collection, id string) error {
	op := "delete " + collection
	if err := validateIdentifier(op, collection); err != nil {
		return err
	}
	if strings.TrimSpace(id) == "" {
		return backend.Errorf(backend.KindMalformed, op, "id is required")
	}
	res := conn.WithContext(ctx).Exec(fmt.Sprintf("DELETE FROM %s WHERE id = ?", collection), id)
	if res.Error != nil {
		return classify(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return backend.Errorf(backend.KindNotFound, op, "%s %s not found", collection, id)
	}
	return nil
}

func validateIdentifier(op, name string) error {
	if !identifierRe.MatchString(name) {
		return backend.Errorf(backend.KindMalformed, op, "invalid identifier %q", name)
	}
	return nil
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var typed *backend.Error
	if errors.As(err, &typed) {
		return err
	}
	kind := backend.KindTransport
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		kind = backend.KindNotFound
	case db.IsUniqueViolation(err, ""):
		kind = backend.KindDuplicate
	case db.IsUndefinedTable(err):
		kind = backend.KindCollectionMissing
	case db.IsUndefinedFunction(err):
		kind = backend.KindProcedureMissing
	case db.IsInsufficientPrivilege(err):
		kind = backend.KindPermission
	}
	return &backend.Error{Kind: kind, Op: op, Err: err}
}
