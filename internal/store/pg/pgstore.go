// Package pg implements the persistence interfaces on PostgreSQL.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// Store bundles the PostgreSQL-backed stores over a shared pool.
type Store struct {
	db *sql.DB

	Employees *EmployeeDirectory
	Attempts  *AttemptLedger
	Tokens    *SetupTokenStore
	Accounts  *AccountStore
	Sessions  *SessionStore
	Grants    *GrantStore
	Audit     *AuditStore
}

func Open(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("pg: empty dsn")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return NewStore(db), nil
}

// NewStore wraps an existing pool. Used by tests with sqlmock.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:        db,
		Employees: &EmployeeDirectory{db: db},
		Attempts:  &AttemptLedger{db: db},
		Tokens:    &SetupTokenStore{db: db},
		Accounts:  &AccountStore{db: db},
		Sessions:  &SessionStore{db: db},
		Grants:    &GrantStore{db: db},
		Audit:     &AuditStore{db: db},
	}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullIfZero(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
