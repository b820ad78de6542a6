package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

const (
	// TokenPrefix identifies Camber tokens
	TokenPrefix = "camber_"
	// TokenLength is the total length of random bytes (32 bytes = 256 bits)
	TokenLength = 32
)

// TokenGenerator generates and validates API tokens
type TokenGenerator struct{}

// NewTokenGenerator creates a new token generator
func NewTokenGenerator() *TokenGenerator {
	return &TokenGenerator{}
}

// GenerateToken creates a new API token
// Format: camber_<base64url(32 random bytes)>
func (tg *TokenGenerator) GenerateToken() (token string, tokenHash string, tokenPrefix string, err error) {
	randomBytes := make([]byte, TokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encodedToken := base64.RawURLEncoding.EncodeToString(randomBytes)
	fullToken := TokenPrefix + encodedToken

	hash := sha256.Sum256([]byte(fullToken))
	hashStr := hex.EncodeToString(hash[:])

	prefix := TokenPrefix
	if len(encodedToken) >= 8 {
		prefix = TokenPrefix + encodedToken[:8]
	}

	return fullToken, hashStr, prefix, nil
}

// HashToken computes the SHA256 hash of a token for lookup
func (tg *TokenGenerator) HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateTokenFormat checks if a token has the correct format
func (tg *TokenGenerator) ValidateTokenFormat(token string) error {
	if !strings.HasPrefix(token, TokenPrefix) {
		return fmt.Errorf("token must start with %q", TokenPrefix)
	}

	encodedPart := strings.TrimPrefix(token, TokenPrefix)
	if len(encodedPart) == 0 {
		return fmt.Errorf("token is too short")
	}

	if _, err := base64.RawURLEncoding.DecodeString(encodedPart); err != nil {
		return fmt.Errorf("invalid token encoding: %w", err)
	}

	return nil
}

// TokenManager manages API token lifecycle and principal resolution.
//
// The users/staff/membership tables it reads are platform tables, not
// tenant-scoped tables: they are the inputs to context resolution and are
// consulted before any tenant context exists.
type TokenManager struct {
	db        *sql.DB
	generator *TokenGenerator
}

// NewTokenManager creates a new token manager
func NewTokenManager(db *sql.DB) *TokenManager {
	return &TokenManager{
		db:        db,
		generator: NewTokenGenerator(),
	}
}

// CreateToken creates a new API token and returns the plaintext exactly once
func (tm *TokenManager) CreateToken(ctx context.Context, userID int64, name string, expiresAt *time.Time) (*APIToken, string, error) {
	token, tokenHash, tokenPrefix, err := tm.generator.GenerateToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	apiToken := &APIToken{
		UserID:      userID,
		TokenHash:   tokenHash,
		TokenPrefix: tokenPrefix,
		Name:        name,
		ExpiresAt:   expiresAt,
		CreatedAt:   time.Now().UTC(),
	}

	query := `
		INSERT INTO api_tokens (user_id, token_hash, token_prefix, name, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err = tm.db.QueryRowContext(ctx, query,
		apiToken.UserID, apiToken.TokenHash, apiToken.TokenPrefix,
		apiToken.Name, apiToken.ExpiresAt, apiToken.CreatedAt,
	).Scan(&apiToken.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to store token: %w", err)
	}

	return apiToken, token, nil
}

// ValidateToken validates a token and returns the associated token record
func (tm *TokenManager) ValidateToken(ctx context.Context, token string) (*APIToken, error) {
	if err := tm.generator.ValidateTokenFormat(token); err != nil {
		return nil, fmt.Errorf("invalid token format: %w", err)
	}

	tokenHash := tm.generator.HashToken(token)

	query := `
		SELECT id, user_id, token_prefix, name, expires_at, last_used_at, created_at
		FROM api_tokens
		WHERE token_hash = $1
		  AND revoked_at IS NULL
		  AND (expires_at IS NULL OR expires_at > NOW())
	`

	var apiToken APIToken
	err := tm.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&apiToken.ID,
		&apiToken.UserID,
		&apiToken.TokenPrefix,
		&apiToken.Name,
		&apiToken.ExpiresAt,
		&apiToken.LastUsedAt,
		&apiToken.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("invalid or expired token")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}
	apiToken.TokenHash = tokenHash

	// Best effort; token validity does not depend on it
	_, _ = tm.db.ExecContext(ctx, "UPDATE api_tokens SET last_used_at = NOW() WHERE id = $1", apiToken.ID)

	return &apiToken, nil
}

// RevokeToken revokes a token
func (tm *TokenManager) RevokeToken(ctx context.Context, tokenID int64, revokedBy int64, reason string) error {
	result, err := tm.db.ExecContext(ctx, `
		UPDATE api_tokens
		SET revoked_at = NOW(), revoked_by = $2, revoke_reason = $3
		WHERE id = $1 AND revoked_at IS NULL
	`, tokenID, revokedBy, reason)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("token not found or already revoked: %d", tokenID)
	}
	return nil
}

// ResolvePrincipal loads the full principal for a validated token: the user,
// every organization membership with its role, and the staff record if one
// exists.
func (tm *TokenManager) ResolvePrincipal(ctx context.Context, apiToken *APIToken) (*Principal, error) {
	user, err := tm.loadUser(ctx, apiToken.UserID)
	if err != nil {
		return nil, err
	}

	memberships, err := tm.loadMemberships(ctx, apiToken.UserID)
	if err != nil {
		return nil, err
	}

	staff, err := tm.loadStaffRecord(ctx, apiToken.UserID)
	if err != nil {
		return nil, err
	}

	return &Principal{
		User:        user,
		Memberships: memberships,
		Staff:       staff,
		Token:       apiToken,
	}, nil
}

func (tm *TokenManager) loadUser(ctx context.Context, userID int64) (*User, error) {
	var user User
	err := tm.db.QueryRowContext(ctx, `
		SELECT id, username, email, full_name, is_active, created_at, updated_at, last_login_at
		FROM users
		WHERE id = $1 AND is_active = true
	`, userID).Scan(
		&user.ID, &user.Username, &user.Email, &user.FullName,
		&user.IsActive, &user.CreatedAt, &user.UpdatedAt, &user.LastLoginAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user not found or inactive: %d", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &user, nil
}

func (tm *TokenManager) loadMemberships(ctx context.Context, userID int64) ([]OrgMembership, error) {
	rows, err := tm.db.QueryContext(ctx, `
		SELECT organization_id, role, is_default, joined_at
		FROM org_memberships
		WHERE user_id = $1
		ORDER BY organization_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load memberships: %w", err)
	}
	defer rows.Close()

	var memberships []OrgMembership
	for rows.Next() {
		var m OrgMembership
		if err := rows.Scan(&m.OrganizationID, &m.Role, &m.IsDefault, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

func (tm *TokenManager) loadStaffRecord(ctx context.Context, userID int64) (*StaffRecord, error) {
	var record StaffRecord
	var roles, pillars []string
	err := tm.db.QueryRowContext(ctx, `
		SELECT id, user_id, roles, pillars
		FROM staff_records
		WHERE user_id = $1
	`, userID).Scan(&record.ID, &record.UserID, pq.Array(&roles), pq.Array(&pillars))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load staff record: %w", err)
	}

	for _, r := range roles {
		record.Roles = append(record.Roles, StaffRole(r))
	}
	for _, p := range pillars {
		record.Pillars = append(record.Pillars, Pillar(p))
	}
	return &record, nil
}
