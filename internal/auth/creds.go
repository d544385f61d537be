package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrNoCredential is returned when no cached credential exists for an email.
var ErrNoCredential = errors.New("auth: no cached credential")

// Credential is a locally cached login artifact. PasswordHash is a bcrypt
// hash; the plaintext password is never persisted anywhere.
type Credential struct {
	UserID       int64
	Email        string
	PasswordHash string
	Role         string
	Nom          string
	Prenom       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CredentialStore is the dedicated credential database, kept in a separate
// file from the document store so clearing one never touches the other.
type CredentialStore struct {
	conn *sql.DB
}

// OpenCredentials creates or opens the credential database at path.
func OpenCredentials(path string) (*CredentialStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create credential directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping credential database: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS credentials (
		user_id       INTEGER PRIMARY KEY,
		email         TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		role          TEXT NOT NULL,
		nom           TEXT,
		prenom        TEXT,
		created_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_credentials_email ON credentials(email);
	`
	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize credential schema: %w", err)
	}
	return &CredentialStore{conn: conn}, nil
}

// Close closes the credential database.
func (cs *CredentialStore) Close() error {
	if cs.conn == nil {
		return nil
	}
	err := cs.conn.Close()
	cs.conn = nil
	return err
}

// Save inserts or overwrites the credential for cred.Email.
func (cs *CredentialStore) Save(ctx context.Context, cred *Credential) error {
	now := time.Now().UTC().Format(time.RFC3339)
	query := `
	INSERT INTO credentials (user_id, email, password_hash, role, nom, prenom, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(email) DO UPDATE SET
		user_id       = excluded.user_id,
		password_hash = excluded.password_hash,
		role          = excluded.role,
		nom           = excluded.nom,
		prenom        = excluded.prenom,
		updated_at    = excluded.updated_at
	`
	_, err := cs.conn.ExecContext(ctx, query,
		cred.UserID, cred.Email, cred.PasswordHash, cred.Role, cred.Nom, cred.Prenom, now, now)
	if err != nil {
		return fmt.Errorf("failed to save credential for %s: %w", cred.Email, err)
	}
	return nil
}

// GetByEmail returns the cached credential for email, or ErrNoCredential.
func (cs *CredentialStore) GetByEmail(ctx context.Context, email string) (*Credential, error) {
	row := cs.conn.QueryRowContext(ctx, `
	SELECT user_id, email, password_hash, role, nom, prenom, created_at, updated_at
	FROM credentials WHERE email = ?
	`, email)

	var (
		cred                 Credential
		createdAt, updatedAt string
	)
	err := row.Scan(&cred.UserID, &cred.Email, &cred.PasswordHash,
		&cred.Role, &cred.Nom, &cred.Prenom, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("credential for %s: %w", email, ErrNoCredential)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credential for %s: %w", email, err)
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		cred.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		cred.UpdatedAt = t
	}
	return &cred, nil
}

// Has reports whether a cached credential exists for email.
func (cs *CredentialStore) Has(ctx context.Context, email string) (bool, error) {
	var n int
	err := cs.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM credentials WHERE email = ?", email).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check credential for %s: %w", email, err)
	}
	return n > 0, nil
}

// Clear removes every cached credential.
func (cs *CredentialStore) Clear(ctx context.Context) error {
	if _, err := cs.conn.ExecContext(ctx, "DELETE FROM credentials"); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}
