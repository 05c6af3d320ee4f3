// Package postgres stores users, sessions and email verification requests in
// PostgreSQL through a pgx connection pool. Open applies the embedded goose
// migrations.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/MrEthical07/shelfauth"
	"github.com/MrEthical07/shelfauth/password"
	"github.com/MrEthical07/shelfauth/session"
	"github.com/MrEthical07/shelfauth/storage"
	"github.com/MrEthical07/shelfauth/verification"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
	codeNotNullViolation    = "23502"
)

var _ shelfauth.Store = (*Store)(nil)

// Store implements shelfauth.Store over a pgxpool.Pool.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn, applies migrations and returns the store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{pool: pool}, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return err
	}
	_, err = provider.Up(ctx)
	return err
}

// Close releases the pool.
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
}

// translate maps uniqueness and foreign key violations to storage.ErrConflict
// and schema checks to storage.ErrInvalidRecord.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation, codeForeignKeyViolation:
			return storage.ErrConflict
		case codeCheckViolation, codeNotNullViolation:
			return fmt.Errorf("%w: %v", storage.ErrInvalidRecord, err)
		}
	}
	return unavailable(err)
}

/*
====================================
USERS
====================================
*/

const userColumns = `id, email, full_name, auth_method, password_hash, status, email_verified_at, created_at`

func credentialColumns(c password.Credential) (string, *string, error) {
	if !c.Valid() {
		return "", nil, errors.New("user credential is not set")
	}
	hash, ok := c.Hash()
	if !ok {
		return c.Method().String(), nil, nil
	}
	return c.Method().String(), &hash, nil
}

// CreateUser inserts u. A taken email, in any case, returns storage.ErrConflict.
func (s *Store) CreateUser(ctx context.Context, u *shelfauth.User) error {
	method, hash, err := credentialColumns(u.Credential)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, strings.ToLower(u.Email), u.FullName, method, hash, string(u.Status),
		u.EmailVerifiedAt, u.CreatedAt.UTC(),
	)
	if err != nil {
		return translate(err)
	}
	return nil
}

func scanUser(row pgx.Row) (*shelfauth.User, error) {
	var (
		u          shelfauth.User
		method     string
		hash       *string
		status     string
		verifiedAt *time.Time
	)
	if err := row.Scan(&u.ID, &u.Email, &u.FullName, &method, &hash, &status, &verifiedAt, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, unavailable(err)
	}

	m, ok := password.ParseMethod(method)
	switch {
	case !ok:
		return nil, fmt.Errorf("user %s: unknown auth method %q", u.ID, method)
	case m == password.MethodFederated:
		u.Credential = password.FederatedOnly()
	case hash != nil:
		u.Credential = password.PasswordCredential(*hash)
	}
	u.Status = shelfauth.AccountStatus(status)
	u.EmailVerifiedAt = verifiedAt
	return &u, nil
}

// GetUserByEmail finds a user by email, ignoring case.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*shelfauth.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
}

// GetUserByID finds a user by id.
func (s *Store) GetUserByID(ctx context.Context, id string) (*shelfauth.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// UpdateUserStatus moves the user from `from` to `to`, returning
// storage.ErrConflict when the current status differs.
func (s *Store) UpdateUserStatus(ctx context.Context, id string, from, to shelfauth.AccountStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET status = $1 WHERE id = $2 AND status = $3`, string(to), id, string(from))
	if err != nil {
		return translate(err)
	}
	return s.expectOne(ctx, tag, id)
}

// UpdateUserCredential replaces the stored credential.
func (s *Store) UpdateUserCredential(ctx context.Context, id string, cred password.Credential) error {
	method, hash, err := credentialColumns(cred)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `UPDATE users SET auth_method = $1, password_hash = $2 WHERE id = $3`, method, hash, id)
	if err != nil {
		return translate(err)
	}
	return s.expectOne(ctx, tag, id)
}

// MarkEmailVerified records the first verification time.
func (s *Store) MarkEmailVerified(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET email_verified_at = COALESCE(email_verified_at, $1) WHERE id = $2`,
		at.UTC(), id,
	)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) expectOne(ctx context.Context, tag pgconn.CommandTag, id string) error {
	if tag.RowsAffected() == 1 {
		return nil
	}
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM users WHERE id = $1`, id).Scan(&one)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return storage.ErrNotFound
	case err != nil:
		return unavailable(err)
	default:
		return storage.ErrConflict
	}
}

/*
====================================
SESSIONS
====================================
*/

// SaveSession upserts sess.
func (s *Store) SaveSession(ctx context.Context, sess *session.Session) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id, user_id, issued_at, expires_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET user_id = EXCLUDED.user_id, issued_at = EXCLUDED.issued_at, expires_at = EXCLUDED.expires_at`,
		sess.ID, sess.UserID, sess.IssuedAt.UTC(), sess.ExpiresAt.UTC(),
	)
	if err != nil {
		return translate(err)
	}
	return nil
}

// GetSession loads a session by hashed id.
func (s *Store) GetSession(ctx context.Context, id string) (*session.Session, error) {
	var sess session.Session
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, issued_at, expires_at FROM sessions WHERE id = $1`, id,
	).Scan(&sess.ID, &sess.UserID, &sess.IssuedAt, &sess.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, unavailable(err)
	}
	return &sess, nil
}

// UpdateSessionExpiry moves the expiry of an existing session.
func (s *Store) UpdateSessionExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE sessions SET expires_at = $1 WHERE id = $2`, expiresAt.UTC(), id)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteSession removes one session.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return unavailable(err)
	}
	return nil
}

// DeleteUserSessions removes every session of userID.
func (s *Store) DeleteUserSessions(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID); err != nil {
		return unavailable(err)
	}
	return nil
}

/*
====================================
EMAIL VERIFICATION
====================================
*/

// ReplaceVerificationRequest deletes the user's other requests and inserts req in
// one transaction.
func (s *Store) ReplaceVerificationRequest(ctx context.Context, req *verification.Request) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM email_verification_requests WHERE user_id = $1`, req.UserID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO email_verification_requests (id, user_id, email, code, expires_at, consumed_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			req.ID, req.UserID, req.Email, req.Code, req.ExpiresAt.UTC(), req.ConsumedAt,
		)
		return err
	})
	if err != nil {
		return translate(err)
	}
	return nil
}

// GetVerificationRequest loads a request by id.
func (s *Store) GetVerificationRequest(ctx context.Context, id string) (*verification.Request, error) {
	var req verification.Request
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, email, code, expires_at, consumed_at FROM email_verification_requests WHERE id = $1`, id,
	).Scan(&req.ID, &req.UserID, &req.Email, &req.Code, &req.ExpiresAt, &req.ConsumedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, unavailable(err)
	}
	return &req, nil
}

// ConsumeVerificationRequest marks the request consumed if nothing has yet and
// reports whether this call won.
func (s *Store) ConsumeVerificationRequest(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE email_verification_requests SET consumed_at = $1 WHERE id = $2 AND consumed_at IS NULL`,
		at.UTC(), id,
	)
	if err != nil {
		return false, unavailable(err)
	}
	return tag.RowsAffected() == 1, nil
}

// PurgeExpired deletes sessions and verification requests that expired before now.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	for _, q := range []string{
		`DELETE FROM sessions WHERE expires_at <= $1`,
		`DELETE FROM email_verification_requests WHERE expires_at <= $1`,
	} {
		tag, err := s.pool.Exec(ctx, q, now.UTC())
		if err != nil {
			return total, unavailable(err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}
