package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"valid", "Secret1!", false},
		{"unicode symbols", "Pässw0rd€", false},
		{"too short", "Se1!", true},
		{"no uppercase", "secret1!", true},
		{"no lowercase", "SECRET1!", true},
		{"no digit", "Secret!!", true},
		{"no special", "Secret12", true},
		{"over bcrypt limit", "Aa1!" + strings.Repeat("x", 69), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrWeakPassword)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword(testPassword, bcrypt.MinCost)
	require.NoError(t, err)

	assert.NotEqual(t, testPassword, hash)
	assert.True(t, CheckPasswordHash(testPassword, hash))
	assert.False(t, CheckPasswordHash("Secret2!", hash))
	assert.False(t, CheckPasswordHash(testPassword, ExternalPasswordHash))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "a@x.com", normalizeEmail("  A@X.Com "))
}
