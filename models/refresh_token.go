package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// RefreshToken is a persisted, single-use-per-rotation session credential.
// Rotation revokes the presented token and records the replacement value,
// forming an append-only chain usable for replay audits.
type RefreshToken struct {
	ID        bson.ObjectID `bson:"_id,omitempty" json:"-"`
	UserID    bson.ObjectID `bson:"userId" json:"userId"`
	Token     string        `bson:"token" json:"-"`
	ExpiresAt time.Time     `bson:"expiresAt" json:"expiresAt"`

	CreatedAt   time.Time `bson:"createdAt" json:"createdAt"`
	CreatedByIP string    `bson:"createdByIp,omitempty" json:"createdByIp"`

	RevokedAt       *time.Time `bson:"revokedAt,omitempty" json:"revokedAt,omitempty"`
	RevokedByIP     string     `bson:"revokedByIp,omitempty" json:"revokedByIp,omitempty"`
	ReplacedByToken string     `bson:"replacedByToken,omitempty" json:"-"`
}

func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsActive is false once the token is revoked, regardless of expiry.
// Revocation is monotonic and never un-set.
func (t *RefreshToken) IsActive(now time.Time) bool {
	return t.RevokedAt == nil && !t.IsExpired(now)
}
