package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	clock := newFakeClock()
	issuer := NewTokenIssuer(testSecret, 15*time.Minute, clock.Now)

	signed, err := issuer.IssueAccessToken("user-123")
	if err != nil {
		t.Fatal(err)
	}
	claims, err := issuer.ParseAccessToken(signed)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "user-123" {
		t.Errorf("subject = %q, want user-123", claims.Subject)
	}
	if claims.TokenType != tokenTypeAccess {
		t.Errorf("type = %q, want access", claims.TokenType)
	}
	if got, want := claims.IssuedAt.Time, clock.Now(); !got.Equal(want.Truncate(time.Second)) {
		t.Errorf("iat = %v, want %v", got, want)
	}
}

func TestAccessTokenExpiresAgainstInjectedClock(t *testing.T) {
	clock := newFakeClock()
	issuer := NewTokenIssuer(testSecret, 15*time.Minute, clock.Now)

	signed, err := issuer.IssueAccessToken("user-123")
	if err != nil {
		t.Fatal(err)
	}

	clock.Advance(14 * time.Minute)
	if _, err := issuer.ParseAccessToken(signed); err != nil {
		t.Fatalf("token should still be valid: %v", err)
	}

	clock.Advance(2 * time.Minute)
	if _, err := issuer.ParseAccessToken(signed); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("err = %v, want ErrTokenExpired", err)
	}
}

func TestAccessTokenWrongSecret(t *testing.T) {
	clock := newFakeClock()
	issuer := NewTokenIssuer(testSecret, 15*time.Minute, clock.Now)
	other := NewTokenIssuer("another-secret", 15*time.Minute, clock.Now)

	signed, err := other.IssueAccessToken("user-123")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := issuer.ParseAccessToken(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestAccessTokenRejectsForeignSigningMethod(t *testing.T) {
	clock := newFakeClock()
	issuer := NewTokenIssuer(testSecret, 15*time.Minute, clock.Now)

	now := clock.Now()
	claims := AccessClaims{
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := issuer.ParseAccessToken(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestAccessTokenGarbage(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, 15*time.Minute, nil)
	for _, tok := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := issuer.ParseAccessToken(tok); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("token %q: err = %v, want ErrInvalidToken", tok, err)
		}
	}
}

func TestRefreshTokenValuesAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		value, err := NewRefreshTokenValue()
		if err != nil {
			t.Fatal(err)
		}
		if len(value) != 80 {
			t.Fatalf("length = %d, want 80 hex chars", len(value))
		}
		if seen[value] {
			t.Fatal("duplicate refresh token value")
		}
		seen[value] = true
	}
}

func TestHashResetTokenIsDeterministicOneWay(t *testing.T) {
	plain, err := NewResetTokenValue()
	if err != nil {
		t.Fatal(err)
	}
	if len(plain) != 64 {
		t.Fatalf("length = %d, want 64 hex chars", len(plain))
	}
	if HashResetToken(plain) != HashResetToken(plain) {
		t.Error("hash must be deterministic")
	}
	if HashResetToken(plain) == plain {
		t.Error("hash must differ from plaintext")
	}
	if len(HashResetToken(plain)) != 64 {
		t.Errorf("sha256 hex length = %d, want 64", len(HashResetToken(plain)))
	}
}
