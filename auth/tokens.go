package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenTypeAccess = "access"

	refreshTokenBytes = 40
	resetTokenBytes   = 32
)

// AccessClaims is the self-contained claim set of a bearer access token.
// The type claim keeps refresh and reset tokens from ever being accepted
// as bearer credentials.
type AccessClaims struct {
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies the short-lived stateless access tokens.
type TokenIssuer struct {
	secret    []byte
	accessTTL time.Duration
	clock     Clock
}

func NewTokenIssuer(secret string, accessTTL time.Duration, clock Clock) *TokenIssuer {
	if clock == nil {
		clock = SystemClock
	}
	return &TokenIssuer{secret: []byte(secret), accessTTL: accessTTL, clock: clock}
}

func (i *TokenIssuer) IssueAccessToken(userID string) (string, error) {
	now := i.clock()
	claims := AccessClaims{
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// ParseAccessToken verifies signature, expiry and token type. Expiry is
// checked against the injected clock, not the wall clock.
func (i *TokenIssuer) ParseAccessToken(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return i.clock() }),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid || claims.TokenType != tokenTypeAccess {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// NewRefreshTokenValue returns a 40-byte cryptographically random opaque
// value, hex encoded. The value is the lookup key of the persisted record.
func NewRefreshTokenValue() (string, error) {
	return randomHex(refreshTokenBytes)
}

// NewResetTokenValue returns the plaintext single-use reset token. Only its
// sha256 digest is persisted.
func NewResetTokenValue() (string, error) {
	return randomHex(resetTokenBytes)
}

// HashResetToken is the one-way at-rest form of a reset token.
func HashResetToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
