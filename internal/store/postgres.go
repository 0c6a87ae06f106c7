package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atmx/prediction-engine/internal/ledger"
	"github.com/atmx/prediction-engine/internal/model"
)

// Schema creates the tables PostgresStore reads and writes. Entities are kept
// as JSONB documents; the columns beside them exist for ad-hoc queries.
// Balances are stored as NUMERIC for exact decimal precision.
const Schema = `
CREATE TABLE IF NOT EXISTS players (
	id            TEXT PRIMARY KEY,
	token_balance NUMERIC NOT NULL,
	level         INTEGER NOT NULL,
	guild_id      BIGINT,
	body          JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS markets (
	id      BIGINT PRIMARY KEY,
	creator TEXT NOT NULL,
	status  TEXT NOT NULL,
	reserve NUMERIC NOT NULL,
	body    JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS guilds (
	id          BIGINT PRIMARY KEY,
	name        TEXT NOT NULL,
	shared_pool NUMERIC NOT NULL,
	body        JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS predictions (
	player       TEXT NOT NULL,
	period       TEXT NOT NULL,
	period_start BIGINT NOT NULL,
	status       TEXT NOT NULL,
	body         JSONB NOT NULL,
	PRIMARY KEY (player, period, period_start)
);
CREATE TABLE IF NOT EXISTS periods (
	period       TEXT NOT NULL,
	period_start BIGINT NOT NULL,
	resolved     BOOLEAN NOT NULL,
	body         JSONB NOT NULL,
	PRIMARY KEY (period, period_start)
);
CREATE TABLE IF NOT EXISTS globals (
	id            SMALLINT PRIMARY KEY CHECK (id = 1),
	total_supply  NUMERIC NOT NULL,
	platform_pool NUMERIC NOT NULL,
	body          JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	seq      BIGINT NOT NULL,
	id       TEXT PRIMARY KEY,
	type     TEXT NOT NULL,
	at       BIGINT NOT NULL,
	subjects TEXT[] NOT NULL,
	payload  JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS events_seq_idx ON events (seq);
CREATE INDEX IF NOT EXISTS events_subjects_idx ON events USING GIN (subjects);
`

// PostgresStore implements Store using PostgreSQL as the source of truth.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates missing tables.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context) (*model.Snapshot, error) {
	snap := &model.Snapshot{}

	var supply, pool string
	var body []byte
	err := s.pool.QueryRow(ctx,
		`SELECT total_supply::TEXT, platform_pool::TEXT, body FROM globals WHERE id = 1`).
		Scan(&supply, &pool, &body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, fmt.Errorf("load globals: %w", err)
	}
	if err := json.Unmarshal(body, &snap.Globals); err != nil {
		return nil, fmt.Errorf("decode globals: %w", err)
	}
	if snap.Globals.TotalSupply, err = ledger.Parse(supply); err != nil {
		return nil, fmt.Errorf("total supply: %w", err)
	}
	if snap.Globals.PlatformPool, err = ledger.Parse(pool); err != nil {
		return nil, fmt.Errorf("platform pool: %w", err)
	}

	if snap.Players, err = loadBodies[model.Player](ctx, s.pool,
		`SELECT body FROM players ORDER BY id`); err != nil {
		return nil, fmt.Errorf("load players: %w", err)
	}
	if snap.Markets, err = loadBodies[model.Market](ctx, s.pool,
		`SELECT body FROM markets ORDER BY id`); err != nil {
		return nil, fmt.Errorf("load markets: %w", err)
	}
	if snap.Guilds, err = loadBodies[model.Guild](ctx, s.pool,
		`SELECT body FROM guilds ORDER BY id`); err != nil {
		return nil, fmt.Errorf("load guilds: %w", err)
	}
	if snap.Predictions, err = loadBodies[model.PlayerPrediction](ctx, s.pool,
		`SELECT body FROM predictions ORDER BY player, period, period_start`); err != nil {
		return nil, fmt.Errorf("load predictions: %w", err)
	}
	if snap.Periods, err = loadBodies[model.PeriodPriceData](ctx, s.pool,
		`SELECT body FROM periods ORDER BY period, period_start`); err != nil {
		return nil, fmt.Errorf("load periods: %w", err)
	}
	return snap, nil
}

func loadBodies[T any](ctx context.Context, pool *pgxpool.Pool, query string) ([]T, error) {
	rows, err := pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Save writes a change set in a single transaction.
func (s *PostgresStore) Save(ctx context.Context, changes *model.Snapshot) error {
	b := &pgx.Batch{}

	for i := range changes.Players {
		p := &changes.Players[i]
		body, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode player %s: %w", p.ID, err)
		}
		var guild *int64
		if p.GuildID != nil {
			g := int64(*p.GuildID)
			guild = &g
		}
		b.Queue(`INSERT INTO players (id, token_balance, level, guild_id, body)
			 VALUES ($1, $2::NUMERIC, $3, $4, $5::JSONB)
			 ON CONFLICT (id) DO UPDATE SET token_balance = EXCLUDED.token_balance,
			     level = EXCLUDED.level, guild_id = EXCLUDED.guild_id, body = EXCLUDED.body`,
			string(p.ID), p.TokenBalance.String(), int64(p.Level), guild, string(body))
	}
	for i := range changes.Markets {
		m := &changes.Markets[i]
		body, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode market %s: %w", m.ID, err)
		}
		b.Queue(`INSERT INTO markets (id, creator, status, reserve, body)
			 VALUES ($1, $2, $3, $4::NUMERIC, $5::JSONB)
			 ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status,
			     reserve = EXCLUDED.reserve, body = EXCLUDED.body`,
			int64(m.ID), string(m.Creator), string(m.Status), m.Reserve.String(), string(body))
	}
	for i := range changes.Guilds {
		g := &changes.Guilds[i]
		body, err := json.Marshal(g)
		if err != nil {
			return fmt.Errorf("encode guild %s: %w", g.ID, err)
		}
		b.Queue(`INSERT INTO guilds (id, name, shared_pool, body)
			 VALUES ($1, $2, $3::NUMERIC, $4::JSONB)
			 ON CONFLICT (id) DO UPDATE SET shared_pool = EXCLUDED.shared_pool, body = EXCLUDED.body`,
			int64(g.ID), g.Name, g.SharedPool.String(), string(body))
	}
	for _, id := range changes.DeletedGuilds {
		b.Queue(`DELETE FROM guilds WHERE id = $1`, int64(id))
	}
	for i := range changes.Predictions {
		p := &changes.Predictions[i]
		body, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode prediction: %w", err)
		}
		b.Queue(`INSERT INTO predictions (player, period, period_start, status, body)
			 VALUES ($1, $2, $3, $4, $5::JSONB)
			 ON CONFLICT (player, period, period_start) DO UPDATE SET status = EXCLUDED.status, body = EXCLUDED.body`,
			string(p.Player), string(p.Kind), p.PeriodStart.Micros(), string(p.Status), string(body))
	}
	for i := range changes.Periods {
		p := &changes.Periods[i]
		body, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode period: %w", err)
		}
		b.Queue(`INSERT INTO periods (period, period_start, resolved, body)
			 VALUES ($1, $2, $3, $4::JSONB)
			 ON CONFLICT (period, period_start) DO UPDATE SET resolved = EXCLUDED.resolved, body = EXCLUDED.body`,
			string(p.Kind), p.PeriodStart.Micros(), p.Resolved, string(body))
	}

	globals, err := json.Marshal(changes.Globals)
	if err != nil {
		return fmt.Errorf("encode globals: %w", err)
	}
	b.Queue(`INSERT INTO globals (id, total_supply, platform_pool, body)
		 VALUES (1, $1::NUMERIC, $2::NUMERIC, $3::JSONB)
		 ON CONFLICT (id) DO UPDATE SET total_supply = EXCLUDED.total_supply,
		     platform_pool = EXCLUDED.platform_pool, body = EXCLUDED.body`,
		changes.Globals.TotalSupply.String(), changes.Globals.PlatformPool.String(), string(globals))

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, b).Close()
	})
}

func (s *PostgresStore) AppendEvents(ctx context.Context, records []model.EventRecord) error {
	if len(records) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, r := range records {
		subjects := make([]string, len(r.Subjects))
		for i, id := range r.Subjects {
			subjects[i] = string(id)
		}
		b.Queue(`INSERT INTO events (seq, id, type, at, subjects, payload)
			 VALUES ($1, $2, $3, $4, $5, $6::JSONB)
			 ON CONFLICT (id) DO NOTHING`,
			int64(r.Seq), r.ID, string(r.Type), r.At.Micros(), subjects, string(r.Payload))
	}
	return s.pool.SendBatch(ctx, b).Close()
}

func (s *PostgresStore) EventsByPlayer(ctx context.Context, id ledger.PlayerID, limit int) ([]model.EventRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT seq, id, type, at, subjects, payload FROM (
			SELECT seq, id, type, at, subjects, payload
			FROM events WHERE $1 = ANY(subjects)
			ORDER BY seq DESC LIMIT $2
		 ) e ORDER BY seq`, string(id), sqlLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

func (s *PostgresStore) RecentEvents(ctx context.Context, limit int) ([]model.EventRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT seq, id, type, at, subjects, payload FROM (
			SELECT seq, id, type, at, subjects, payload
			FROM events ORDER BY seq DESC LIMIT $1
		 ) e ORDER BY seq`, sqlLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

// sqlLimit maps a non-positive limit to NULL, which Postgres reads as no limit.
func sqlLimit(n int) *int64 {
	if n <= 0 {
		return nil
	}
	v := int64(n)
	return &v
}

type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanEvents(rows pgxRows) ([]model.EventRecord, error) {
	var out []model.EventRecord
	for rows.Next() {
		var (
			r        model.EventRecord
			seq, at  int64
			typ      string
			subjects []string
			payload  []byte
		)
		if err := rows.Scan(&seq, &r.ID, &typ, &at, &subjects, &payload); err != nil {
			return nil, err
		}
		r.Seq = uint64(seq)
		r.Type = model.EventType(typ)
		r.At = ledger.Timestamp(at)
		for _, id := range subjects {
			r.Subjects = append(r.Subjects, ledger.PlayerID(id))
		}
		r.Payload = json.RawMessage(payload)
		out = append(out, r)
	}
	return out, rows.Err()
}
