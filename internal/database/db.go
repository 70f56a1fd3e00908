package database

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// New returns Queries speaking the SQL flavour of dialect.
func New(db DBTX, dialect Dialect) *Queries {
	return &Queries{db: db, sql: statementsFor(dialect)}
}

// Queries holds the message log statements.
type Queries struct {
	db  DBTX
	sql statements
}

