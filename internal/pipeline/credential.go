package pipeline

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Cookie name of the signed access credential. The authentication
// collaborator sets it as HttpOnly, Secure, SameSite=Strict; refresh handling
// stays on its side of the contract.
const (
	AccessCookie = "accessToken"

	// AccessTokenTTL is the access credential lifetime.
	AccessTokenTTL = 15 * time.Minute
)

// Claims binds the access credential to a session.
type Claims struct {
	SubjectID string `json:"subject_id"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// CredentialParser validates the signed access credential and extracts the
// session binding. Minting lives here too so tests and the authentication
// collaborator share one shape.
type CredentialParser struct {
	signingKey []byte
	issuer     string
}

func NewCredentialParser(signingKey, issuer string) *CredentialParser {
	return &CredentialParser{signingKey: []byte(signingKey), issuer: issuer}
}

// Parse validates signature and expiry and returns the claims.
func (p *CredentialParser) Parse(raw string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return p.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse access credential: %w", err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid access credential claims")
	}
	return claims, nil
}

// Mint issues an access credential bound to a session.
func (p *CredentialParser) Mint(subjectID, sessionID string, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		SubjectID: subjectID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(AccessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    p.issuer,
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(p.signingKey)
}
