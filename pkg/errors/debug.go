package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// PGDetail holds the Postgres diagnostics of a driver error, from either pgx or lib/pq.
type PGDetail struct {
	Code       string `json:"pg_code,omitempty"`
	Constraint string `json:"pg_constraint,omitempty"`
	Table      string `json:"pg_table,omitempty"`
	Column     string `json:"pg_column,omitempty"`
	Detail     string `json:"pg_detail,omitempty"`
	Message    string `json:"pg_message,omitempty"`
}

// ErrorDump flattens an error chain for structured logs.
type ErrorDump struct {
	TopMessage string    `json:"top_message"`
	Code       Code      `json:"code,omitempty"`
	Chain      []string  `json:"chain,omitempty"`
	PG         *PGDetail `json:"pg,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error()}
	if typed := As(err); typed != nil {
		d.Code = typed.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	d.PG = pgDetail(err)
	return d
}

// Fields renders the dump as logger fields, omitting empty Postgres data.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.TopMessage,
		"error_code":  d.Code,
		"error_chain": d.Chain,
	}
	if d.PG != nil {
		fields["pg_code"] = d.PG.Code
		fields["pg_constraint"] = d.PG.Constraint
		fields["pg_table"] = d.PG.Table
		fields["pg_detail"] = d.PG.Detail
	}
	return fields
}

func pgDetail(err error) *PGDetail {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return &PGDetail{
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
		return &PGDetail{
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	}
	return nil
}
