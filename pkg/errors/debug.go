package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrorDump flattens an error chain into log fields. Postgres diagnostics are
// lifted from either driver the gorm stack may surface.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Chain      []string `json:"chain,omitempty"`
	Postgres   PGDiag   `json:"postgres"`
}

// PGDiag is the subset of a server error worth logging.
type PGDiag struct {
	Code       string `json:"pg_code,omitempty"`
	Constraint string `json:"pg_constraint,omitempty"`
	Table      string `json:"pg_table,omitempty"`
	Column     string `json:"pg_column,omitempty"`
	Detail     string `json:"pg_detail,omitempty"`
	Message    string `json:"pg_message,omitempty"`
}

func (d PGDiag) Empty() bool {
	return d.Code == "" && d.Message == ""
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error(), Postgres: PostgresDiag(err)}
	if typed := As(err); typed != nil {
		d.Code = typed.Code()
	}
	for e := err; e != nil; e = stdErrors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	return d
}

// Fields renders the dump as logger fields, omitting empty Postgres diagnostics.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.TopMessage,
		"error_code":  d.Code,
		"error_chain": d.Chain,
	}
	if !d.Postgres.Empty() {
		fields["pg_code"] = d.Postgres.Code
		fields["pg_message"] = d.Postgres.Message
		fields["pg_detail"] = d.Postgres.Detail
		fields["pg_table"] = d.Postgres.Table
		fields["pg_column"] = d.Postgres.Column
		fields["pg_constraint"] = d.Postgres.Constraint
	}
	return fields
}

// PostgresDiag extracts server diagnostics from a pgx or lib/pq error in err's chain.
func PostgresDiag(err error) PGDiag {
	var pgxErr *pgconn.PgError
	if stdErrors.As(err, &pgxErr) {
		return PGDiag{
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}
	}
	var pqErr *pq.Error
	if stdErrors.As(err, &pqErr) {
		return PGDiag{
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	}
	return PGDiag{}
}
