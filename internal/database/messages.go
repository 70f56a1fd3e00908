package database

import (
	"context"
	"database/sql"
	"strings"

	"github.com/johndosdos/wschat/internal/model"
)

// Dialect selects the SQL flavour of the backing database.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

type statements struct {
	createMessage  string
	listMessages   string
	searchMessages string
}

func statementsFor(dialect Dialect) statements {
	if dialect == DialectPostgres {
		return statements{
			createMessage: `INSERT INTO messages (from_user, to_user, content, timestamp, is_private)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`,
			listMessages: `SELECT id, from_user, to_user, content, timestamp, is_private
FROM messages
ORDER BY id DESC
LIMIT $1`,
			searchMessages: `SELECT id, from_user, to_user, content, timestamp, is_private
FROM messages
WHERE content ILIKE $1 ESCAPE '\'
ORDER BY id DESC
LIMIT $2`,
		}
	}

	// SQLite's LIKE folds ASCII letters only; ILIKE above folds all of Unicode.
	return statements{
		createMessage: `INSERT INTO messages (from_user, to_user, content, timestamp, is_private)
VALUES (?, ?, ?, ?, ?)
RETURNING id`,
		listMessages: `SELECT id, from_user, to_user, content, timestamp, is_private
FROM messages
ORDER BY id DESC
LIMIT ?`,
		searchMessages: `SELECT id, from_user, to_user, content, timestamp, is_private
FROM messages
WHERE content LIKE ? ESCAPE '\'
ORDER BY id DESC
LIMIT ?`,
	}
}

// CreateMessage inserts rec and returns the id the database assigned.
func (q *Queries) CreateMessage(ctx context.Context, rec model.MessageRecord) (int64, error) {
	var toUser sql.NullString
	if rec.ToUser != nil {
		toUser = sql.NullString{String: *rec.ToUser, Valid: true}
	}

	isPrivate := 0
	if rec.IsPrivate {
		isPrivate = 1
	}

	row := q.db.QueryRowContext(ctx, q.sql.createMessage,
		rec.FromUser,
		toUser,
		rec.Content,
		rec.Timestamp,
		isPrivate,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

// ListMessages returns the newest limit messages, newest first.
func (q *Queries) ListMessages(ctx context.Context, limit int) ([]model.MessageRecord, error) {
	rows, err := q.db.QueryContext(ctx, q.sql.listMessages, limit)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

// SearchMessages returns up to limit messages whose content contains keyword,
// newest first. Matching ignores case.
func (q *Queries) SearchMessages(ctx context.Context, keyword string, limit int) ([]model.MessageRecord, error) {
	rows, err := q.db.QueryContext(ctx, q.sql.searchMessages, containsPattern(keyword), limit)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]model.MessageRecord, error) {
	defer rows.Close()

	items := []model.MessageRecord{}
	for rows.Next() {
		var (
			i         model.MessageRecord
			toUser    sql.NullString
			isPrivate int64
		)
		if err := rows.Scan(
			&i.ID,
			&i.FromUser,
			&toUser,
			&i.Content,
			&i.Timestamp,
			&isPrivate,
		); err != nil {
			return nil, err
		}
		if toUser.Valid {
			i.ToUser = &toUser.String
		}
		i.IsPrivate = isPrivate != 0
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern turns keyword into a LIKE pattern matching it literally.
func containsPattern(keyword string) string {
	return "%" + likeEscaper.Replace(keyword) + "%"
}
