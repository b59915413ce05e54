package policy

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PGStore loads grants from a policy_grants table.
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

// Open connects to Postgres with pool defaults tuned for the gateway's
// read-mostly access pattern.
func Open(dsn string) (*PGStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &PGStore{db: db}, nil
}

// NewPGStore wraps an existing connection pool.
func NewPGStore(db *sql.DB) *PGStore { return &PGStore{db: db} }

func (s *PGStore) Close() error { return s.db.Close() }

func (s *PGStore) DB() *sql.DB { return s.db }

func (s *PGStore) Grants(ctx context.Context) ([]Grant, error) {
	rows, err := s.db.QueryContext(ctx, `select role, action, subject from policy_grants order by role, action, subject`)
	if err != nil {
		return nil, fmt.Errorf("policy: load grants: %w", err)
	}
	defer rows.Close()

	var grants []Grant
	for rows.Next() {
		var g Grant
		if err := rows.Scan(&g.Role, &g.Action, &g.Subject); err != nil {
			return nil, fmt.Errorf("policy: scan grant: %w", err)
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("policy: load grants: %w", err)
	}
	return grants, nil
}

// Ensure inserts the given grants, skipping rows that already exist. Used by
// gatectl and at startup to seed the builtin table.
func (s *PGStore) Ensure(ctx context.Context, grants []Grant) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, g := range grants {
		role := strings.ToLower(strings.TrimSpace(g.Role))
		action := strings.ToLower(strings.TrimSpace(g.Action))
		subject := strings.ToLower(strings.TrimSpace(g.Subject))
		if role == "" || action == "" || subject == "" {
			return fmt.Errorf("%w: %+v", ErrInvalidGrant, g)
		}
		if _, err := tx.ExecContext(ctx, `
			insert into policy_grants(role, action, subject)
			values ($1, $2, $3)
			on conflict (role, action, subject) do nothing`,
			role, action, subject,
		); err != nil {
			return fmt.Errorf("policy: ensure grant: %w", err)
		}
	}
	return tx.Commit()
}
