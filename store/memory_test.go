package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/taskhive/backend/models"
)

func seedUser(t *testing.T, s *MemoryUserStore, email string) *models.User {
	t.Helper()
	user := &models.User{
		Name:         "Test User",
		Email:        email,
		PasswordHash: "hash",
		Role:         models.RoleUser,
		IsActive:     true,
	}
	if err := s.Insert(context.Background(), user); err != nil {
		t.Fatal(err)
	}
	return user
}

func TestUserStoreDuplicateEmail(t *testing.T) {
	s := NewMemoryUserStore()
	seedUser(t, s, "a@example.com")

	err := s.Insert(context.Background(), &models.User{Email: "a@example.com"})
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("err = %v, want ErrDuplicateEmail", err)
	}
}

func TestRecordFailedLoginThreshold(t *testing.T) {
	s := NewMemoryUserStore()
	user := seedUser(t, s, "a@example.com")
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 1; i <= 4; i++ {
		if err := s.RecordFailedLogin(ctx, user.ID, 5, 2*time.Hour, now); err != nil {
			t.Fatal(err)
		}
		got, _ := s.FindByID(ctx, user.ID)
		if got.LoginAttempts != i {
			t.Fatalf("attempts = %d, want %d", got.LoginAttempts, i)
		}
		if got.LockUntil != nil {
			t.Fatalf("lock set at attempt %d, want none before threshold", i)
		}
	}

	if err := s.RecordFailedLogin(ctx, user.ID, 5, 2*time.Hour, now); err != nil {
		t.Fatal(err)
	}
	got, _ := s.FindByID(ctx, user.ID)
	if got.LockUntil == nil || !got.LockUntil.Equal(now.Add(2*time.Hour)) {
		t.Fatalf("lockUntil = %v, want %v", got.LockUntil, now.Add(2*time.Hour))
	}

	// Further failures while locked extend the counter, not the lock.
	if err := s.RecordFailedLogin(ctx, user.ID, 5, 2*time.Hour, now.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	got, _ = s.FindByID(ctx, user.ID)
	if got.LoginAttempts != 6 {
		t.Errorf("attempts = %d, want 6", got.LoginAttempts)
	}
	if !got.LockUntil.Equal(now.Add(2 * time.Hour)) {
		t.Errorf("lock deadline moved to %v, want unchanged", got.LockUntil)
	}
}

func TestRecordFailedLoginStaleLockRestarts(t *testing.T) {
	s := NewMemoryUserStore()
	user := seedUser(t, s, "a@example.com")
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		if err := s.RecordFailedLogin(ctx, user.ID, 5, 2*time.Hour, now); err != nil {
			t.Fatal(err)
		}
	}

	after := now.Add(2*time.Hour + time.Second)
	if err := s.RecordFailedLogin(ctx, user.ID, 5, 2*time.Hour, after); err != nil {
		t.Fatal(err)
	}
	got, _ := s.FindByID(ctx, user.ID)
	if got.LoginAttempts != 1 {
		t.Errorf("attempts = %d, want restart at 1", got.LoginAttempts)
	}
	if got.LockUntil != nil {
		t.Errorf("lockUntil = %v, want cleared", got.LockUntil)
	}
}

func TestFindByResetTokenHonorsExpiry(t *testing.T) {
	s := NewMemoryUserStore()
	user := seedUser(t, s, "a@example.com")
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := s.SetResetToken(ctx, user.ID, "tokenhash", now.Add(30*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.FindByResetToken(ctx, "tokenhash", now); err != nil {
		t.Fatalf("unexpired token: %v", err)
	}
	if _, err := s.FindByResetToken(ctx, "tokenhash", now.Add(31*time.Minute)); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expired token err = %v, want ErrUserNotFound", err)
	}
	if _, err := s.FindByResetToken(ctx, "", now); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("empty hash must never match, err = %v", err)
	}
}

func TestSetPasswordClearsResetToken(t *testing.T) {
	s := NewMemoryUserStore()
	user := seedUser(t, s, "a@example.com")
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := s.SetResetToken(ctx, user.ID, "tokenhash", now.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := s.SetPassword(ctx, user.ID, "newhash", now); err != nil {
		t.Fatal(err)
	}
	got, _ := s.FindByID(ctx, user.ID)
	if got.PasswordHash != "newhash" {
		t.Errorf("hash = %q", got.PasswordHash)
	}
	if got.PasswordChangedAt == nil || !got.PasswordChangedAt.Equal(now) {
		t.Errorf("passwordChangedAt = %v, want %v", got.PasswordChangedAt, now)
	}
	if got.PasswordResetToken != "" || got.PasswordResetExpires != nil {
		t.Error("reset fields must be cleared with the password write")
	}
}

func seedToken(t *testing.T, s *MemoryRefreshTokenStore, userID bson.ObjectID, value string, expires time.Time) {
	t.Helper()
	if err := s.Insert(context.Background(), &models.RefreshToken{
		UserID:    userID,
		Token:     value,
		ExpiresAt: expires,
		CreatedAt: expires.Add(-7 * 24 * time.Hour),
	}); err != nil {
		t.Fatal(err)
	}
}

func TestRevokeWinsExactlyOnce(t *testing.T) {
	s := NewMemoryRefreshTokenStore()
	userID := bson.NewObjectID()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedToken(t, s, userID, "tok-1", now.Add(time.Hour))
	ctx := context.Background()

	won, err := s.Revoke(ctx, "tok-1", now, "1.2.3.4", "tok-2")
	if err != nil || !won {
		t.Fatalf("first revoke: won=%v err=%v", won, err)
	}
	won, err = s.Revoke(ctx, "tok-1", now, "5.6.7.8", "tok-3")
	if err != nil {
		t.Fatal(err)
	}
	if won {
		t.Fatal("second revoke of the same token must not win")
	}

	got, _ := s.FindByToken(ctx, "tok-1")
	if got.RevokedByIP != "1.2.3.4" || got.ReplacedByToken != "tok-2" {
		t.Errorf("audit fields overwritten by losing revoke: ip=%q replacedBy=%q", got.RevokedByIP, got.ReplacedByToken)
	}

	won, err = s.Revoke(ctx, "no-such-token", now, "1.2.3.4", "")
	if err != nil || won {
		t.Fatalf("unknown token: won=%v err=%v", won, err)
	}
}

func TestRevokeAllForUser(t *testing.T) {
	s := NewMemoryRefreshTokenStore()
	alice := bson.NewObjectID()
	bob := bson.NewObjectID()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedToken(t, s, alice, "a-1", now.Add(time.Hour))
	seedToken(t, s, alice, "a-2", now.Add(time.Hour))
	seedToken(t, s, bob, "b-1", now.Add(time.Hour))
	ctx := context.Background()

	if _, err := s.Revoke(ctx, "a-1", now, "ip", ""); err != nil {
		t.Fatal(err)
	}
	n, err := s.RevokeAllForUser(ctx, alice, now, "ip")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("revoked = %d, want 1 (a-1 already revoked)", n)
	}
	got, _ := s.FindByToken(ctx, "b-1")
	if got.RevokedAt != nil {
		t.Error("other users' tokens must be untouched")
	}
}

func TestPurgeExpiredKeepsAuditWindow(t *testing.T) {
	s := NewMemoryRefreshTokenStore()
	userID := bson.NewObjectID()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	// expired and never revoked: purged
	seedToken(t, s, userID, "expired", now.Add(-time.Hour))
	// revoked recently: retained for audit
	seedToken(t, s, userID, "revoked-recent", now.Add(time.Hour))
	s.Revoke(ctx, "revoked-recent", now.Add(-time.Hour), "ip", "")
	// revoked past the audit window: purged
	seedToken(t, s, userID, "revoked-old", now.Add(time.Hour))
	s.Revoke(ctx, "revoked-old", now.Add(-8*24*time.Hour), "ip", "")
	// live: retained
	seedToken(t, s, userID, "live", now.Add(time.Hour))

	if err := s.PurgeExpired(ctx, now, 7*24*time.Hour); err != nil {
		t.Fatal(err)
	}

	for _, tc := range []struct {
		value string
		want  bool
	}{
		{"expired", false},
		{"revoked-recent", true},
		{"revoked-old", false},
		{"live", true},
	} {
		_, err := s.FindByToken(ctx, tc.value)
		if found := err == nil; found != tc.want {
			t.Errorf("token %q present = %v, want %v", tc.value, found, tc.want)
		}
	}
}
