package auth

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenGenerator_GenerateToken(t *testing.T) {
	tg := NewTokenGenerator()

	token, hash, prefix, err := tg.GenerateToken()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(token, TokenPrefix))
	assert.Len(t, hash, 64) // hex-encoded SHA-256
	assert.True(t, strings.HasPrefix(prefix, TokenPrefix))
	assert.Len(t, prefix, len(TokenPrefix)+8)
	assert.Equal(t, tg.HashToken(token), hash)

	// Two tokens never collide
	token2, _, _, err := tg.GenerateToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, token2)
}

func TestTokenGenerator_ValidateTokenFormat(t *testing.T) {
	tg := NewTokenGenerator()

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{"valid token", TokenPrefix + "abcDEF123_-xyz", false},
		{"missing prefix", "abcDEF123", true},
		{"prefix only", TokenPrefix, true},
		{"invalid base64url", TokenPrefix + "not!valid", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tg.ValidateTokenFormat(tt.token)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTokenManager_ValidateToken(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	tm := NewTokenManager(db)
	token := TokenPrefix + "dGVzdHRva2VudGVzdHRva2Vu"
	hash := tm.generator.HashToken(token)

	t.Run("valid token", func(t *testing.T) {
		now := time.Now()
		rows := sqlmock.NewRows([]string{"id", "user_id", "token_prefix", "name", "expires_at", "last_used_at", "created_at"}).
			AddRow(1, 42, TokenPrefix+"dGVzdHRv", "ci", nil, nil, now)
		mock.ExpectQuery(regexp.QuoteMeta("FROM api_tokens")).
			WithArgs(hash).
			WillReturnRows(rows)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE api_tokens SET last_used_at")).
			WithArgs(int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		apiToken, err := tm.ValidateToken(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, int64(42), apiToken.UserID)
		assert.Equal(t, hash, apiToken.TokenHash)
	})

	t.Run("unknown token", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM api_tokens")).
			WithArgs(hash).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := tm.ValidateToken(context.Background(), token)
		assert.Error(t, err)
	})

	t.Run("malformed token skips database", func(t *testing.T) {
		_, err := tm.ValidateToken(context.Background(), "not-a-token")
		assert.Error(t, err)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenManager_RevokeToken(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	tm := NewTokenManager(db)

	t.Run("revokes active token", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("UPDATE api_tokens")).
			WithArgs(int64(7), int64(42), "rotated").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, tm.RevokeToken(context.Background(), 7, 42, "rotated"))
	})

	t.Run("already revoked", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("UPDATE api_tokens")).
			WithArgs(int64(7), int64(42), "rotated").
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.Error(t, tm.RevokeToken(context.Background(), 7, 42, "rotated"))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
