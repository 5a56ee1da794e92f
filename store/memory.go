package store

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/taskhive/backend/models"
)

// MemoryUserStore is an in-process UserStore with the same conditional
// update semantics as the Mongo implementation. It backs the test suites
// and local development without a database.
type MemoryUserStore struct {
	mu    sync.Mutex
	users map[bson.ObjectID]*models.User
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: map[bson.ObjectID]*models.User{}}
}

func (s *MemoryUserStore) Insert(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == user.Email {
			return ErrDuplicateEmail
		}
	}
	if user.ID.IsZero() {
		user.ID = bson.NewObjectID()
	}
	cp := *user
	s.users[cp.ID] = &cp
	return nil
}

func (s *MemoryUserStore) FindByID(_ context.Context, id bson.ObjectID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryUserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *MemoryUserStore) RecordFailedLogin(_ context.Context, id bson.ObjectID, maxAttempts int, lockFor time.Duration, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	if u.LockUntil != nil && !now.Before(*u.LockUntil) {
		// Stale lock: this failure restarts the count.
		u.LoginAttempts = 1
		u.LockUntil = nil
	} else {
		u.LoginAttempts++
		if u.LoginAttempts >= maxAttempts && u.LockUntil == nil {
			until := now.Add(lockFor)
			u.LockUntil = &until
		}
	}
	u.UpdatedAt = now
	return nil
}

func (s *MemoryUserStore) ResetLoginAttempts(_ context.Context, id bson.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		u.LoginAttempts = 0
		u.LockUntil = nil
	}
	return nil
}

func (s *MemoryUserStore) UpdateProfile(_ context.Context, id bson.ObjectID, update ProfileUpdate, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	if update.Email != nil {
		for _, other := range s.users {
			if other.ID != id && other.Email == *update.Email {
				return ErrDuplicateEmail
			}
		}
		u.Email = *update.Email
	}
	if update.Name != nil {
		u.Name = *update.Name
	}
	if update.Avatar != nil {
		u.Avatar = *update.Avatar
	}
	u.UpdatedAt = now
	return nil
}

func (s *MemoryUserStore) SetActive(_ context.Context, id bson.ObjectID, active bool, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.IsActive = active
	u.UpdatedAt = now
	return nil
}

func (s *MemoryUserStore) SetPassword(_ context.Context, id bson.ObjectID, passwordHash string, changedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	changed := changedAt
	u.PasswordChangedAt = &changed
	u.PasswordResetToken = ""
	u.PasswordResetExpires = nil
	u.UpdatedAt = changedAt
	return nil
}

func (s *MemoryUserStore) SetResetToken(_ context.Context, id bson.ObjectID, tokenHash string, expires time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordResetToken = tokenHash
	exp := expires
	u.PasswordResetExpires = &exp
	return nil
}

func (s *MemoryUserStore) FindByResetToken(_ context.Context, tokenHash string, now time.Time) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.PasswordResetToken == tokenHash && tokenHash != "" &&
			u.PasswordResetExpires != nil && now.Before(*u.PasswordResetExpires) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

// MemoryRefreshTokenStore mirrors the Mongo token store, including the
// revoke-wins-once behavior relied on by the rotation protocol.
type MemoryRefreshTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*models.RefreshToken
}

func NewMemoryRefreshTokenStore() *MemoryRefreshTokenStore {
	return &MemoryRefreshTokenStore{tokens: map[string]*models.RefreshToken{}}
}

func (s *MemoryRefreshTokenStore) Insert(_ context.Context, token *models.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token.ID.IsZero() {
		token.ID = bson.NewObjectID()
	}
	cp := *token
	s.tokens[cp.Token] = &cp
	return nil
}

func (s *MemoryRefreshTokenStore) FindByToken(_ context.Context, value string) (*models.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[value]
	if !ok {
		return nil, ErrTokenNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryRefreshTokenStore) Revoke(_ context.Context, value string, now time.Time, ip string, replacedBy string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[value]
	if !ok || t.RevokedAt != nil {
		return false, nil
	}
	revoked := now
	t.RevokedAt = &revoked
	t.RevokedByIP = ip
	if replacedBy != "" {
		t.ReplacedByToken = replacedBy
	}
	return true, nil
}

func (s *MemoryRefreshTokenStore) RevokeAllForUser(_ context.Context, userID bson.ObjectID, now time.Time, ip string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, t := range s.tokens {
		if t.UserID == userID && t.RevokedAt == nil {
			revoked := now
			t.RevokedAt = &revoked
			t.RevokedByIP = ip
			n++
		}
	}
	return n, nil
}

func (s *MemoryRefreshTokenStore) PurgeExpired(_ context.Context, now time.Time, auditWindow time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for value, t := range s.tokens {
		expiredUnrevoked := t.RevokedAt == nil && t.IsExpired(now)
		pastAudit := t.RevokedAt != nil && t.RevokedAt.Before(now.Add(-auditWindow))
		if expiredUnrevoked || pastAudit {
			delete(s.tokens, value)
		}
	}
	return nil
}
