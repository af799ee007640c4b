package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// ErrorDump flattens an error chain for structured logs. Driver fields are
// filled from whichever of pgx, lib/pq or sqlite produced the root cause.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Chain      []string `json:"chain,omitempty"`

	// Step names the saga step for recording and restore failures.
	Step string `json:"step,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGColumn     string `json:"pg_column,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`

	SQLiteCode     int `json:"sqlite_code,omitempty"`
	SQLiteExtended int `json:"sqlite_extended,omitempty"`
}

// Fields returns the non-empty dump entries keyed for logger.WithFields.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.TopMessage,
		"error_chain": d.Chain,
	}
	set := func(key string, value any, ok bool) {
		if ok {
			fields[key] = value
		}
	}
	set("error_code", d.Code, d.Code != "")
	set("step", d.Step, d.Step != "")
	set("pg_code", d.PGCode, d.PGCode != "")
	set("pg_constraint", d.PGConstraint, d.PGConstraint != "")
	set("pg_table", d.PGTable, d.PGTable != "")
	set("pg_column", d.PGColumn, d.PGColumn != "")
	set("pg_detail", d.PGDetail, d.PGDetail != "")
	set("pg_message", d.PGMessage, d.PGMessage != "")
	set("sqlite_code", d.SQLiteCode, d.SQLiteCode != 0)
	set("sqlite_extended", d.SQLiteExtended, d.SQLiteExtended != 0)
	return fields
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
		if details, ok := te.Details().(map[string]any); ok {
			if step, ok := details["step"].(string); ok {
				d.Step = step
			}
		}
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		d.PGCode = pgxErr.Code
		d.PGConstraint = pgxErr.ConstraintName
		d.PGTable = pgxErr.TableName
		d.PGColumn = pgxErr.ColumnName
		d.PGDetail = pgxErr.Detail
		d.PGMessage = pgxErr.Message
		return d
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		d.PGCode = string(pqErr.Code)
		d.PGConstraint = pqErr.Constraint
		d.PGTable = pqErr.Table
		d.PGColumn = pqErr.Column
		d.PGDetail = pqErr.Detail
		d.PGMessage = pqErr.Message
		return d
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		d.SQLiteCode = int(liteErr.Code)
		d.SQLiteExtended = int(liteErr.ExtendedCode)
	}
	return d
}
