// Package journal is the append-only log of accepted actions.
//
// Only actions the engine committed are appended, in commit order. Replaying
// the log into an empty engine rebuilds the exact state the server had.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/atmx/prediction-engine/internal/action"
	"github.com/atmx/prediction-engine/internal/engine"
)

const schema = `
CREATE TABLE IF NOT EXISTS actions (
    seq      INTEGER PRIMARY KEY AUTOINCREMENT,
    kind     TEXT    NOT NULL,
    caller   TEXT    NOT NULL,
    at       INTEGER NOT NULL,
    envelope TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_actions_caller ON actions(caller);
`

// ErrDiverged is returned by Replay when a journalled action is rejected,
// meaning the log does not match the engine it is replayed into.
var ErrDiverged = errors.New("journal: replay diverged")

// SQLite stores the journal in a SQLite database (pure Go, no cgo).
type SQLite struct {
	db *sql.DB
}

// Open opens or creates the journal at path. ":memory:" gives a private
// in-memory journal.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal.Open: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal.Open: apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the database.
func (j *SQLite) Close() error {
	return j.db.Close()
}

// Append records one accepted action and returns its sequence number.
func (j *SQLite) Append(ctx context.Context, env action.Envelope) (int64, error) {
	raw, err := action.Encode(env)
	if err != nil {
		return 0, fmt.Errorf("journal.Append: %w", err)
	}
	res, err := j.db.ExecContext(ctx,
		`INSERT INTO actions (kind, caller, at, envelope) VALUES (?, ?, ?, ?)`,
		string(env.Kind), string(env.Caller), env.At.Micros(), string(raw),
	)
	if err != nil {
		return 0, fmt.Errorf("journal.Append: insert: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("journal.Append: last insert id: %w", err)
	}
	return seq, nil
}

// Len returns the number of journalled actions.
func (j *SQLite) Len(ctx context.Context) (int64, error) {
	var n int64
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM actions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("journal.Len: %w", err)
	}
	return n, nil
}

// Iterate calls fn for every action with seq > after, in order. Iteration
// stops at the first error fn returns.
func (j *SQLite) Iterate(ctx context.Context, after int64, fn func(seq int64, env action.Envelope) error) error {
	rows, err := j.db.QueryContext(ctx,
		`SELECT seq, envelope FROM actions WHERE seq > ? ORDER BY seq`, after)
	if err != nil {
		return fmt.Errorf("journal.Iterate: query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			seq int64
			raw string
		)
		if err := rows.Scan(&seq, &raw); err != nil {
			return fmt.Errorf("journal.Iterate: scan: %w", err)
		}
		env, err := action.Decode([]byte(raw))
		if err != nil {
			return fmt.Errorf("journal.Iterate: seq %d: %w", seq, err)
		}
		if err := fn(seq, env); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Replay applies every journalled action to e in order and returns how many
// were applied.
func Replay(ctx context.Context, j *SQLite, e *engine.Engine) (int, error) {
	n := 0
	err := j.Iterate(ctx, 0, func(seq int64, env action.Envelope) error {
		if _, err := action.Apply(e, env); err != nil {
			return fmt.Errorf("%w: seq %d (%s): %v", ErrDiverged, seq, env.Kind, err)
		}
		n++
		return nil
	})
	return n, err
}
