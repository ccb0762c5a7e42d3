package auth

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/oauth2"
)

//go:embed schema.sql
var schemaSQL string

// Well-known token rows.
const (
	KeyTogglPlan = "toggl_plan"
	KeyGoogle    = "google"
)

// TokenStore caches OAuth tokens in a SQLite database, one row per key.
type TokenStore struct {
	db *sql.DB
}

// OpenTokenStore creates or opens the token database at path.
func OpenTokenStore(path string) (*TokenStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create token directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open token database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to token database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply token schema: %w", err)
	}
	return &TokenStore{db: db}, nil
}

// Close closes the database.
func (s *TokenStore) Close() error {
	return s.db.Close()
}

// Load returns the cached token for key, or nil when there is none.
func (s *TokenStore) Load(ctx context.Context, key string) (*oauth2.Token, error) {
	var (
		tok     oauth2.Token
		expires int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT access_token, refresh_token, token_type, expires_at FROM tokens WHERE id = ?`, key,
	).Scan(&tok.AccessToken, &tok.RefreshToken, &tok.TokenType, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load token %s: %w", key, err)
	}
	if expires > 0 {
		tok.Expiry = time.Unix(expires, 0)
	}
	return &tok, nil
}

// Save replaces the cached token for key.
func (s *TokenStore) Save(ctx context.Context, key string, tok *oauth2.Token) error {
	var expires int64
	if !tok.Expiry.IsZero() {
		expires = tok.Expiry.Unix()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO tokens (id, access_token, refresh_token, token_type, expires_at)
		VALUES (?, ?, ?, ?, ?)`,
		key, tok.AccessToken, tok.RefreshToken, tok.TokenType, expires)
	if err != nil {
		return fmt.Errorf("save token %s: %w", key, err)
	}
	return nil
}

// Delete drops the cached token for key.
func (s *TokenStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tokens WHERE id = ?`, key); err != nil {
		return fmt.Errorf("delete token %s: %w", key, err)
	}
	return nil
}
