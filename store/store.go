package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/taskhive/backend/models"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrTokenNotFound  = errors.New("refresh token not found")
	ErrDuplicateEmail = errors.New("email already registered")
)

// ProfileUpdate carries the optional profile fields of a partial update.
// Nil pointers leave the stored value untouched.
type ProfileUpdate struct {
	Name   *string
	Email  *string
	Avatar *string
}

// UserStore persists credential records. Every mutation is a single
// conditional update against the datastore; callers never read, modify and
// write a record back, so concurrent logins cannot lose updates.
type UserStore interface {
	Insert(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id bson.ObjectID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)

	// RecordFailedLogin atomically increments the failed-attempt counter,
	// setting the lock deadline in the same update when the counter crosses
	// maxAttempts. A previously expired lock restarts the count at 1.
	RecordFailedLogin(ctx context.Context, id bson.ObjectID, maxAttempts int, lockFor time.Duration, now time.Time) error

	// ResetLoginAttempts zeroes the counter and clears any lock.
	ResetLoginAttempts(ctx context.Context, id bson.ObjectID) error

	UpdateProfile(ctx context.Context, id bson.ObjectID, update ProfileUpdate, now time.Time) error

	// SetActive flips the account's active flag.
	SetActive(ctx context.Context, id bson.ObjectID, active bool, now time.Time) error

	// SetPassword stores a new hash, stamps passwordChangedAt and clears any
	// outstanding reset token in one update.
	SetPassword(ctx context.Context, id bson.ObjectID, passwordHash string, changedAt time.Time) error

	SetResetToken(ctx context.Context, id bson.ObjectID, tokenHash string, expires time.Time) error
	FindByResetToken(ctx context.Context, tokenHash string, now time.Time) (*models.User, error)
}

// RefreshTokenStore persists the rotatable session credentials.
type RefreshTokenStore interface {
	Insert(ctx context.Context, token *models.RefreshToken) error
	FindByToken(ctx context.Context, value string) (*models.RefreshToken, error)

	// Revoke marks the token revoked if and only if it is still unrevoked at
	// write time, recording the revoking IP and, for rotations, the
	// replacement token value. It reports whether this call won the write;
	// a false return means a concurrent request revoked the token first.
	Revoke(ctx context.Context, value string, now time.Time, ip string, replacedBy string) (bool, error)

	// RevokeAllForUser revokes every unrevoked token owned by the user and
	// returns how many were revoked.
	RevokeAllForUser(ctx context.Context, userID bson.ObjectID, now time.Time, ip string) (int64, error)

	// PurgeExpired removes expired unrevoked tokens and revoked tokens older
	// than the audit window.
	PurgeExpired(ctx context.Context, now time.Time, auditWindow time.Duration) error
}
