package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Lockout policy applied by the credential store.
const (
	MaxLoginAttempts = 5
	LockDuration     = 2 * time.Hour
)

type User struct {
	ID           bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Name         string        `bson:"name" json:"name"`
	Email        string        `bson:"email" json:"email"`
	PasswordHash string        `bson:"passwordHash" json:"-"` // never expose
	Role         Role          `bson:"role" json:"role"`
	Avatar       string        `bson:"avatar,omitempty" json:"avatar"`
	IsActive     bool          `bson:"isActive" json:"isActive"`

	LoginAttempts int        `bson:"loginAttempts" json:"-"`
	LockUntil     *time.Time `bson:"lockUntil,omitempty" json:"-"`

	// Set on every password mutation; access tokens issued before this
	// instant are rejected by the session authenticator.
	PasswordChangedAt *time.Time `bson:"passwordChangedAt,omitempty" json:"-"`

	PasswordResetToken   string     `bson:"passwordResetToken,omitempty" json:"-"`
	PasswordResetExpires *time.Time `bson:"passwordResetExpires,omitempty" json:"-"`

	EmailVerified            bool       `bson:"emailVerified" json:"emailVerified"`
	EmailVerificationToken   string     `bson:"emailVerificationToken,omitempty" json:"-"`
	EmailVerificationExpires *time.Time `bson:"emailVerificationExpires,omitempty" json:"-"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// IsLocked reports whether the lockout window is still open. A lock whose
// deadline has passed counts as cleared; the stored fields are reset lazily
// on the next login attempt rather than by a background sweep.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockUntil != nil && now.Before(*u.LockUntil)
}

// PasswordChangedAfter reports whether the password was mutated after the
// given token issue time (unix-second resolution, matching JWT iat claims).
func (u *User) PasswordChangedAfter(issuedAt time.Time) bool {
	if u.PasswordChangedAt == nil {
		return false
	}
	return issuedAt.Unix() < u.PasswordChangedAt.Unix()
}
