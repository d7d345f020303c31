package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// DBFields carries the driver-level details of a database failure.
type DBFields struct {
	Driver     string `json:"db_driver"`
	Code       string `json:"db_code,omitempty"`
	Constraint string `json:"db_constraint,omitempty"`
	Table      string `json:"db_table,omitempty"`
	Column     string `json:"db_column,omitempty"`
	Detail     string `json:"db_detail,omitempty"`
	Message    string `json:"db_message,omitempty"`
}

// ErrorDump is the log-friendly breakdown of an error chain.
type ErrorDump struct {
	TopMessage string    `json:"top_message"`
	Code       Code      `json:"code,omitempty"`
	Chain      []string  `json:"chain,omitempty"`
	DB         *DBFields `json:"db,omitempty"`
}

// Fields flattens the dump into logger fields.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{"error_chain": d.Chain}
	if d.Code != "" {
		fields["error_code"] = d.Code
	}
	if d.DB == nil {
		return fields
	}
	fields["db_driver"] = d.DB.Driver
	for key, value := range map[string]string{
		"db_code":       d.DB.Code,
		"db_constraint": d.DB.Constraint,
		"db_table":      d.DB.Table,
		"db_column":     d.DB.Column,
		"db_detail":     d.DB.Detail,
	} {
		if value != "" {
			fields[key] = value
		}
	}
	return fields
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	d.DB = dbFields(err)
	return d
}

func dbFields(err error) *DBFields {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return &DBFields{
			Driver:     "pgx",
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &DBFields{
			Driver:     "pq",
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return &DBFields{
			Driver:  "sqlite",
			Code:    fmt.Sprint(int(liteErr.ExtendedCode)),
			Message: liteErr.Error(),
		}
	}
	return nil
}
