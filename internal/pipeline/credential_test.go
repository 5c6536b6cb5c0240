package pipeline

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintAndParse(t *testing.T) {
	p := NewCredentialParser("secret", "aegis")

	token, err := p.Mint("subject-1", "sess-1", time.Now())
	require.NoError(t, err)

	claims, err := p.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "subject-1", claims.SubjectID)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.Equal(t, "aegis", claims.Issuer)
	assert.NotEmpty(t, claims.ID, "each credential carries a unique id")
}

func TestParseRejectsForeignKey(t *testing.T) {
	token, err := NewCredentialParser("other-secret", "aegis").Mint("subject-1", "sess-1", time.Now())
	require.NoError(t, err)

	_, err = NewCredentialParser("secret", "aegis").Parse(token)
	require.Error(t, err)
}

func TestParseRejectsExpired(t *testing.T) {
	p := NewCredentialParser("secret", "aegis")
	token, err := p.Mint("subject-1", "sess-1", time.Now().Add(-time.Hour))
	require.NoError(t, err)

	_, err = p.Parse(token)
	require.Error(t, err)
}

func TestParseRejectsNonHMACAlgorithm(t *testing.T) {
	// A token claiming alg=none must never validate against the HMAC key.
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{SubjectID: "subject-1", SessionID: "sess-1"})
	raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewCredentialParser("secret", "aegis").Parse(raw)
	require.Error(t, err)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := NewCredentialParser("secret", "aegis").Parse("not-a-token")
	require.Error(t, err)
}
