package auth

import (
	"testing"
	"time"

	"github.com/chukwumela909/taskhub-server/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_IssueAndVerify(t *testing.T) {
	p, err := NewProvider("s3cret", "taskhub")
	require.NoError(t, err)

	token, err := p.Issue(domain.Principal{ID: "user-1", Role: domain.RoleTasker}, time.Hour)
	require.NoError(t, err)

	principal, err := p.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, domain.Principal{ID: "user-1", Role: domain.RoleTasker}, principal)
}

func TestProvider_Rejects(t *testing.T) {
	p, err := NewProvider("s3cret", "taskhub")
	require.NoError(t, err)
	other, err := NewProvider("different", "taskhub")
	require.NoError(t, err)
	foreign, err := NewProvider("s3cret", "someone-else")
	require.NoError(t, err)

	principal := domain.Principal{ID: "user-1", Role: domain.RoleRequester}
	wrongKey, err := other.Issue(principal, time.Hour)
	require.NoError(t, err)
	wrongIssuer, err := foreign.Issue(principal, time.Hour)
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "user-1", Role: "requester"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	badRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:             "admin",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", Issuer: "taskhub"},
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":      "not-a-token",
		"wrong key":    wrongKey,
		"wrong issuer": wrongIssuer,
		"alg none":     unsigned,
		"unknown role": badRole,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := p.Verify(token)
			assert.ErrorIs(t, err, ErrInvalidToken())
		})
	}
}

func TestProvider_Expired(t *testing.T) {
	p, err := NewProvider("s3cret", "")
	require.NoError(t, err)
	issuedAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return issuedAt }

	token, err := p.Issue(domain.Principal{ID: "user-1", Role: domain.RoleTasker}, time.Minute)
	require.NoError(t, err)

	p.now = func() time.Time { return issuedAt.Add(2 * time.Minute) }
	_, err = p.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired())
}

func TestProvider_LegacyIDClaim(t *testing.T) {
	p, err := NewProvider("s3cret", "")
	require.NoError(t, err)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: "user-9", Role: "requester"}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	principal, err := p.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-9", principal.ID)
	assert.Equal(t, domain.RoleRequester, principal.Role)
}

func TestNewProvider_RequiresSecret(t *testing.T) {
	_, err := NewProvider("", "taskhub")
	assert.Error(t, err)

	p, err := NewProvider("s3cret", "")
	require.NoError(t, err)
	_, err = p.Issue(domain.Principal{ID: "user-1", Role: "admin"}, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument())
}
