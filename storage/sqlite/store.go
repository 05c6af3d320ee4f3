package sqlite

import (
	"context"
	"database/sql"
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
	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var _ shelfauth.Store = (*Store)(nil)

// Store implements shelfauth.Store over one SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens the database at path, applies migrations and returns the store.
// path may carry a "sqlite://" or "file:" prefix.
func Open(ctx context.Context, path string) (*Store, error) {
	path = strings.TrimPrefix(path, "sqlite://")
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}

	dsn := path
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Writers serialise on the file lock anyway.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return err
	}
	_, err = provider.Up(ctx)
	return err
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
}

// translate maps uniqueness and foreign key violations to storage.ErrConflict.
// The driver reports extended result codes, so CHECK and NOT NULL failures
// are told apart and returned as storage.ErrInvalidRecord.
func translate(err error) error {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return unavailable(err)
	}
	switch serr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return storage.ErrConflict
	}
	if serr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		return fmt.Errorf("%w: %v", storage.ErrInvalidRecord, err)
	}
	return unavailable(err)
}

/*
====================================
USERS
====================================
*/

const userColumns = `id, email, full_name, auth_method, password_hash, status, email_verified_at, created_at`

func credentialColumns(c password.Credential) (string, sql.NullString, error) {
	if !c.Valid() {
		return "", sql.NullString{}, errors.New("user credential is not set")
	}
	hash, ok := c.Hash()
	return c.Method().String(), sql.NullString{String: hash, Valid: ok}, nil
}

// CreateUser inserts u. A taken email returns storage.ErrConflict.
func (s *Store) CreateUser(ctx context.Context, u *shelfauth.User) error {
	method, hash, err := credentialColumns(u.Credential)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, strings.ToLower(u.Email), u.FullName, method, hash, string(u.Status),
		nullMillis(u.EmailVerifiedAt), toMillis(u.CreatedAt),
	)
	if err != nil {
		return translate(err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*shelfauth.User, error) {
	var (
		u          shelfauth.User
		method     string
		hash       sql.NullString
		status     string
		verifiedAt sql.NullInt64
		createdAt  int64
	)
	if err := row.Scan(&u.ID, &u.Email, &u.FullName, &method, &hash, &status, &verifiedAt, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
	default:
		u.Credential = password.PasswordCredential(hash.String)
	}
	u.Status = shelfauth.AccountStatus(status)
	u.EmailVerifiedAt = fromNullMillis(verifiedAt)
	u.CreatedAt = fromMillis(createdAt)
	return &u, nil
}

// GetUserByEmail finds a user by email, ignoring case.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*shelfauth.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return scanUser(row)
}

// GetUserByID finds a user by id.
func (s *Store) GetUserByID(ctx context.Context, id string) (*shelfauth.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// UpdateUserStatus moves the user from `from` to `to`. It returns
// storage.ErrConflict when the current status is not `from`.
func (s *Store) UpdateUserStatus(ctx context.Context, id string, from, to shelfauth.AccountStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET status = ? WHERE id = ? AND status = ?`,
		string(to), id, string(from),
	)
	if err != nil {
		return unavailable(err)
	}
	return s.expectOne(ctx, res, id)
}

// UpdateUserCredential replaces the stored credential.
func (s *Store) UpdateUserCredential(ctx context.Context, id string, cred password.Credential) error {
	method, hash, err := credentialColumns(cred)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET auth_method = ?, password_hash = ? WHERE id = ?`,
		method, hash, id,
	)
	if err != nil {
		return unavailable(err)
	}
	return s.expectOne(ctx, res, id)
}

// MarkEmailVerified records the first verification time. Later calls keep it.
func (s *Store) MarkEmailVerified(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET email_verified_at = COALESCE(email_verified_at, ?) WHERE id = ?`,
		toMillis(at), id,
	)
	if err != nil {
		return unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// expectOne turns a zero-row user update into ErrNotFound or ErrConflict.
func (s *Store) expectOne(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 1 {
		return nil
	}
	var one int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, id).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
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

// SaveSession inserts sess, replacing a record with the same id.
func (s *Store) SaveSession(ctx context.Context, sess *session.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions (id, user_id, issued_at, expires_at) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.UserID, toMillis(sess.IssuedAt), toMillis(sess.ExpiresAt),
	)
	if err != nil {
		return translate(err)
	}
	return nil
}

// GetSession loads a session by hashed id. Expiry is left to the caller.
func (s *Store) GetSession(ctx context.Context, id string) (*session.Session, error) {
	var (
		sess            session.Session
		issued, expires int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, issued_at, expires_at FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.UserID, &issued, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, unavailable(err)
	}
	sess.IssuedAt = fromMillis(issued)
	sess.ExpiresAt = fromMillis(expires)
	return &sess, nil
}

// UpdateSessionExpiry moves the expiry of an existing session.
func (s *Store) UpdateSessionExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET expires_at = ? WHERE id = ?`, toMillis(expiresAt), id)
	if err != nil {
		return unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteSession removes one session. Missing ids are not an error.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return unavailable(err)
	}
	return nil
}

// DeleteUserSessions removes every session of userID.
func (s *Store) DeleteUserSessions(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
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
func (s *Store) ReplaceVerificationRequest(ctx context.Context, req *verification.Request) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM email_verification_requests WHERE user_id = ?`, req.UserID); err != nil {
		return unavailable(err)
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO email_verification_requests (id, user_id, email, code, expires_at, consumed_at) VALUES (?, ?, ?, ?, ?, ?)`,
		req.ID, req.UserID, req.Email, req.Code, toMillis(req.ExpiresAt), nullMillis(req.ConsumedAt),
	); err != nil {
		return translate(err)
	}
	if err = tx.Commit(); err != nil {
		return unavailable(err)
	}
	return nil
}

// GetVerificationRequest loads a request by id.
func (s *Store) GetVerificationRequest(ctx context.Context, id string) (*verification.Request, error) {
	var (
		req      verification.Request
		expires  int64
		consumed sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, email, code, expires_at, consumed_at FROM email_verification_requests WHERE id = ?`, id,
	).Scan(&req.ID, &req.UserID, &req.Email, &req.Code, &expires, &consumed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, unavailable(err)
	}
	req.ExpiresAt = fromMillis(expires)
	req.ConsumedAt = fromNullMillis(consumed)
	return &req, nil
}

// ConsumeVerificationRequest marks the request consumed at `at` if nothing has
// consumed it yet. It reports whether this call won.
func (s *Store) ConsumeVerificationRequest(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE email_verification_requests SET consumed_at = ? WHERE id = ? AND consumed_at IS NULL`,
		toMillis(at), id,
	)
	if err != nil {
		return false, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable(err)
	}
	return n == 1, nil
}

/*
====================================
MAINTENANCE
====================================
*/

// PurgeExpired deletes sessions and verification requests that expired before now.
// It returns the number of rows removed.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	cutoff := toMillis(now)
	var total int64
	for _, q := range []string{
		`DELETE FROM sessions WHERE expires_at <= ?`,
		`DELETE FROM email_verification_requests WHERE expires_at <= ?`,
	} {
		res, err := s.db.ExecContext(ctx, q, cutoff)
		if err != nil {
			return total, unavailable(err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}
