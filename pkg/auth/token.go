package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// TokenPrefix identifies aqarly API tokens
	TokenPrefix = "aqly_"
	// TokenLength is the number of random bytes in a token
	TokenLength = 32
)

// ErrInvalidToken rejects unknown, expired or malformed tokens
var ErrInvalidToken = errors.New("invalid or expired token")

// APIToken is a stored token record. Only the SHA256 hash is persisted.
type APIToken struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	Name       string     `json:"name"`
	TokenHash  string     `json:"-"`
	Prefix     string     `json:"prefix"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// GenerateToken creates a token string, its storage hash and a display
// prefix. Format: aqly_<base64url(32 random bytes)>.
func GenerateToken() (token, tokenHash, prefix string, err error) {
	randomBytes := make([]byte, TokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(randomBytes)
	token = TokenPrefix + encoded
	tokenHash = HashToken(token)
	prefix = TokenPrefix + encoded[:8]
	return token, tokenHash, prefix, nil
}

// HashToken computes the SHA256 hash used for token lookup
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateTokenFormat rejects tokens that cannot possibly be ours
// before touching the database
func ValidateTokenFormat(token string) error {
	if !strings.HasPrefix(token, TokenPrefix) {
		return ErrInvalidToken
	}
	encoded := strings.TrimPrefix(token, TokenPrefix)
	if len(encoded) == 0 {
		return ErrInvalidToken
	}
	if _, err := base64.RawURLEncoding.DecodeString(encoded); err != nil {
		return ErrInvalidToken
	}
	return nil
}

// TokenManager issues and validates API tokens against the database
type TokenManager struct {
	db    *sql.DB
	store *Store
}

// NewTokenManager creates a token manager
func NewTokenManager(db *sql.DB, store *Store) *TokenManager {
	return &TokenManager{db: db, store: store}
}

// CreateToken issues a token for a user. The plaintext token is
// returned once and never stored.
func (tm *TokenManager) CreateToken(ctx context.Context, userID int64, name string, expiresAt *time.Time) (*APIToken, string, error) {
	token, tokenHash, prefix, err := GenerateToken()
	if err != nil {
		return nil, "", err
	}

	record := &APIToken{
		UserID:    userID,
		Name:      name,
		TokenHash: tokenHash,
		Prefix:    prefix,
		ExpiresAt: expiresAt,
	}

	query := `
		INSERT INTO api_tokens (user_id, name, token_hash, prefix, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`
	err = tm.db.QueryRowContext(ctx, query,
		record.UserID, record.Name, record.TokenHash, record.Prefix, record.ExpiresAt,
	).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create api token: %w", err)
	}
	return record, token, nil
}

// ValidateToken resolves a bearer token to its user. Expired and
// unknown tokens both come back as ErrInvalidToken.
func (tm *TokenManager) ValidateToken(ctx context.Context, token string) (*User, error) {
	if err := ValidateTokenFormat(token); err != nil {
		return nil, err
	}

	var userID int64
	query := `
		SELECT user_id
		FROM api_tokens
		WHERE token_hash = $1 AND (expires_at IS NULL OR expires_at > NOW())`
	err := tm.db.QueryRowContext(ctx, query, HashToken(token)).Scan(&userID)
	if err == sql.ErrNoRows {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up api token: %w", err)
	}

	// best-effort usage stamp, failures don't block the request
	_, _ = tm.db.ExecContext(ctx,
		`UPDATE api_tokens SET last_used_at = NOW() WHERE token_hash = $1`, HashToken(token))

	return tm.store.GetUser(ctx, userID)
}

// RevokeToken deletes a token by id for a user
func (tm *TokenManager) RevokeToken(ctx context.Context, userID, tokenID int64) error {
	result, err := tm.db.ExecContext(ctx,
		`DELETE FROM api_tokens WHERE id = $1 AND user_id = $2`, tokenID, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke api token: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return ErrInvalidToken
	}
	return nil
}
