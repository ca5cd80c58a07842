package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer is the fixed issuer identity carried by every assertion token.
const Issuer = "age-assertion-service"

// Claims is the full claim set of an assertion token. AgeOver carries the
// attested threshold, never the subject's true age or birthdate.
type Claims struct {
	AgeOver        int    `json:"age_over"`
	Nonce          string `json:"nonce"`
	ProofRequestID string `json:"proof_request_id,omitempty"`
	VerifierRef    string `json:"verifier_ref,omitempty"`
	jwt.RegisteredClaims
}

// Minter signs and parses assertion tokens with a symmetric server-held key.
type Minter struct {
	signingKey []byte
	ttl        time.Duration
}

func NewMinter(signingSecret string, ttl time.Duration) *Minter {
	return &Minter{signingKey: []byte(signingSecret), ttl: ttl}
}

// TTL returns the configured assertion lifetime.
func (m *Minter) TTL() time.Duration {
	return m.ttl
}

// MintInput carries everything the token encodes beyond what the minter
// itself owns (issuer constant, jti, timestamps).
type MintInput struct {
	AgeOver        int
	Nonce          string
	ProofRequestID string
	VerifierRef    string
	Audience       string
	Subject        string
}

// Mint produces a signed compact token. The returned claims include the
// generated jti and the issued-at/expiry timestamps.
func (m *Minter) Mint(input MintInput) (string, *Claims, error) {
	jti, err := randomTokenID()
	if err != nil {
		return "", nil, fmt.Errorf("generate token id: %w", err)
	}

	now := time.Now().UTC()
	claims := &Claims{
		AgeOver:        input.AgeOver,
		Nonce:          input.Nonce,
		ProofRequestID: input.ProofRequestID,
		VerifierRef:    input.VerifierRef,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   input.Subject,
			Audience:  []string{input.Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        jti,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.signingKey)
	if err != nil {
		return "", nil, fmt.Errorf("sign assertion: %w", err)
	}
	return signed, claims, nil
}

// Parse verifies signature, issuer, audience, and expiry in one pass and
// returns the claims. Callers must not distinguish which check failed when
// reporting errors to clients.
func (m *Minter) Parse(raw, audience string) (*Claims, error) {
	claims := new(Claims)
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenUnverifiable
		}
		return m.signingKey, nil
	},
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return nil, fmt.Errorf("parse assertion: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("parse assertion: token invalid")
	}
	return claims, nil
}

func randomTokenID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// RandomNonce generates a fresh nonce for callers that did not supply one.
func RandomNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("crypto/rand failed: %w", err)
	}
	return hex.EncodeToString(b), nil
}
