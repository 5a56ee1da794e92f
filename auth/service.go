package auth

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/taskhive/backend/models"
	"github.com/taskhive/backend/store"
	"github.com/taskhive/backend/utils"
)

const (
	defaultRefreshTTL    = 7 * 24 * time.Hour
	defaultResetTokenTTL = 30 * time.Minute
)

// revokedByReset is recorded as the revoking IP when a password reset bulk
// revokes a user's sessions.
const revokedByReset = "password-reset"

// TokenPair is what a successful register, login or refresh hands back to
// the client: a stateless bearer token plus the persisted rotation secret.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

type ServiceOptions struct {
	RefreshTTL       time.Duration
	ResetTokenTTL    time.Duration
	MaxLoginAttempts int
	LockDuration     time.Duration
	BcryptCost       int
	Clock            Clock
}

// Service implements the authentication and session lifecycle over the
// credential and refresh-token stores. All time comparisons go through the
// injected clock; all store mutations are single conditional updates.
type Service struct {
	users  store.UserStore
	tokens store.RefreshTokenStore
	issuer *TokenIssuer
	clock  Clock

	refreshTTL    time.Duration
	resetTokenTTL time.Duration
	maxAttempts   int
	lockDuration  time.Duration
	bcryptCost    int
}

func NewService(users store.UserStore, tokens store.RefreshTokenStore, issuer *TokenIssuer, opts ServiceOptions) *Service {
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = defaultRefreshTTL
	}
	if opts.ResetTokenTTL <= 0 {
		opts.ResetTokenTTL = defaultResetTokenTTL
	}
	if opts.MaxLoginAttempts <= 0 {
		opts.MaxLoginAttempts = models.MaxLoginAttempts
	}
	if opts.LockDuration <= 0 {
		opts.LockDuration = models.LockDuration
	}
	if opts.BcryptCost <= 0 {
		opts.BcryptCost = utils.DefaultBcryptCost
	}
	return &Service{
		users:         users,
		tokens:        tokens,
		issuer:        issuer,
		clock:         opts.Clock,
		refreshTTL:    opts.RefreshTTL,
		resetTokenTTL: opts.ResetTokenTTL,
		maxAttempts:   opts.MaxLoginAttempts,
		lockDuration:  opts.LockDuration,
		bcryptCost:    opts.BcryptCost,
	}
}

// Register creates an account and opens its first session lineage.
func (s *Service) Register(ctx context.Context, name, email, password, ip string) (*models.User, *TokenPair, error) {
	if err := utils.ValidatePassword(password); err != nil {
		return nil, nil, ErrWeakPassword
	}
	hash, err := utils.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, nil, err
	}

	now := s.clock()
	changedAt := now.Add(-time.Second)
	user := &models.User{
		Name:              utils.NormalizeName(name),
		Email:             utils.NormalizeEmail(email),
		PasswordHash:      hash,
		Role:              models.RoleUser,
		IsActive:          true,
		PasswordChangedAt: &changedAt,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.users.Insert(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, nil, ErrAccountExists
		}
		return nil, nil, err
	}

	pair, err := s.issuePair(ctx, user, ip)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Login verifies credentials and rotates the account onto a fresh session
// lineage: every previously active refresh token is revoked first.
func (s *Service) Login(ctx context.Context, email, password, ip string) (*models.User, *TokenPair, error) {
	user, err := s.users.FindByEmail(ctx, utils.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	now := s.clock()
	if user.IsLocked(now) {
		return nil, nil, ErrAccountLocked
	}
	if !user.IsActive {
		return nil, nil, ErrAccountDisabled
	}

	if err := utils.CheckPassword(user.PasswordHash, password); err != nil {
		if err := s.users.RecordFailedLogin(ctx, user.ID, s.maxAttempts, s.lockDuration, now); err != nil {
			return nil, nil, err
		}
		return nil, nil, ErrInvalidCredentials
	}

	if user.LoginAttempts > 0 || user.LockUntil != nil {
		if err := s.users.ResetLoginAttempts(ctx, user.ID); err != nil {
			return nil, nil, err
		}
	}

	if _, err := s.tokens.RevokeAllForUser(ctx, user.ID, now, ip); err != nil {
		return nil, nil, err
	}

	pair, err := s.issuePair(ctx, user, ip)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Refresh rotates the presented refresh token. The presented value is
// revoked with a forward pointer to its replacement before the replacement
// is persisted; of two concurrent calls with the same token only one can
// win the conditional revoke, the other fails with ErrInvalidToken.
func (s *Service) Refresh(ctx context.Context, refreshValue, ip string) (*models.User, *TokenPair, error) {
	if refreshValue == "" {
		return nil, nil, ErrInvalidToken
	}
	token, err := s.tokens.FindByToken(ctx, refreshValue)
	if err != nil {
		if errors.Is(err, store.ErrTokenNotFound) {
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, err
	}

	now := s.clock()
	if !token.IsActive(now) {
		return nil, nil, ErrInvalidToken
	}

	user, err := s.users.FindByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, err
	}
	if !user.IsActive {
		return nil, nil, ErrInvalidToken
	}

	newValue, err := NewRefreshTokenValue()
	if err != nil {
		return nil, nil, err
	}
	won, err := s.tokens.Revoke(ctx, refreshValue, now, ip, newValue)
	if err != nil {
		return nil, nil, err
	}
	if !won {
		return nil, nil, ErrInvalidToken
	}

	if err := s.tokens.Insert(ctx, &models.RefreshToken{
		UserID:      user.ID,
		Token:       newValue,
		ExpiresAt:   now.Add(s.refreshTTL),
		CreatedAt:   now,
		CreatedByIP: ip,
	}); err != nil {
		return nil, nil, err
	}

	access, err := s.issuer.IssueAccessToken(user.ID.Hex())
	if err != nil {
		return nil, nil, err
	}
	return user, &TokenPair{AccessToken: access, RefreshToken: newValue}, nil
}

// Logout revokes the presented refresh token if it is still active.
// Idempotent: a missing, unknown or already revoked token still succeeds.
func (s *Service) Logout(ctx context.Context, refreshValue, ip string) error {
	if refreshValue == "" {
		return nil
	}
	_, err := s.tokens.Revoke(ctx, refreshValue, s.clock(), ip, "")
	return err
}

// Authenticate resolves a bearer access token to its user, enforcing
// signature, expiry, token type, account state and the issued-at versus
// password-change ordering.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*models.User, error) {
	claims, err := s.issuer.ParseAccessToken(accessToken)
	if err != nil {
		return nil, err
	}
	id, err := bson.ObjectIDFromHex(claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}
	if claims.IssuedAt == nil || user.PasswordChangedAfter(claims.IssuedAt.Time) {
		return nil, ErrPasswordChanged
	}
	return user, nil
}

// AccessTokenFor mints a fresh access token for an already-authenticated
// user, used when a profile update changes the identity claims.
func (s *Service) AccessTokenFor(user *models.User) (string, error) {
	return s.issuer.IssueAccessToken(user.ID.Hex())
}

func (s *Service) UserByID(ctx context.Context, id bson.ObjectID) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// ProfileChanges is a partial profile update; nil fields are untouched.
type ProfileChanges struct {
	Name     *string
	Email    *string
	Avatar   *string
	Password *string
}

// UpdateProfile applies a partial update and reports whether the email
// changed, in which case the caller should mint a fresh access token.
func (s *Service) UpdateProfile(ctx context.Context, id bson.ObjectID, changes ProfileChanges) (*models.User, bool, error) {
	user, err := s.UserByID(ctx, id)
	if err != nil {
		return nil, false, err
	}

	now := s.clock()
	emailChanged := false
	update := store.ProfileUpdate{}
	if changes.Name != nil {
		name := utils.NormalizeName(*changes.Name)
		update.Name = &name
	}
	if changes.Email != nil {
		email := utils.NormalizeEmail(*changes.Email)
		emailChanged = email != user.Email
		update.Email = &email
	}
	if changes.Avatar != nil {
		update.Avatar = changes.Avatar
	}
	if update.Name != nil || update.Email != nil || update.Avatar != nil {
		if err := s.users.UpdateProfile(ctx, id, update, now); err != nil {
			if errors.Is(err, store.ErrDuplicateEmail) {
				return nil, false, ErrAccountExists
			}
			return nil, false, err
		}
	}

	if changes.Password != nil {
		if err := utils.ValidatePassword(*changes.Password); err != nil {
			return nil, false, ErrWeakPassword
		}
		hash, err := utils.HashPassword(*changes.Password, s.bcryptCost)
		if err != nil {
			return nil, false, err
		}
		if err := s.users.SetPassword(ctx, id, hash, now.Add(-time.Second)); err != nil {
			return nil, false, err
		}
	}

	updated, err := s.UserByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return updated, emailChanged, nil
}

func (s *Service) SetAvatar(ctx context.Context, id bson.ObjectID, url string) (*models.User, error) {
	if err := s.users.UpdateProfile(ctx, id, store.ProfileUpdate{Avatar: &url}, s.clock()); err != nil {
		return nil, err
	}
	return s.UserByID(ctx, id)
}

// SetUserStatus activates or deactivates an account. Deactivation also
// revokes the user's refresh tokens so open sessions cannot be refreshed.
func (s *Service) SetUserStatus(ctx context.Context, id bson.ObjectID, active bool, ip string) (*models.User, error) {
	now := s.clock()
	if err := s.users.SetActive(ctx, id, active, now); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if !active {
		if _, err := s.tokens.RevokeAllForUser(ctx, id, now, ip); err != nil {
			return nil, err
		}
	}
	return s.UserByID(ctx, id)
}

// ForgotPassword stores the hash of a fresh single-use reset token on the
// user record and returns the plaintext. Delivery is the caller's concern.
func (s *Service) ForgotPassword(ctx context.Context, email string) (string, error) {
	user, err := s.users.FindByEmail(ctx, utils.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return "", ErrUserNotFound
		}
		return "", err
	}
	plain, err := NewResetTokenValue()
	if err != nil {
		return "", err
	}
	expires := s.clock().Add(s.resetTokenTTL)
	if err := s.users.SetResetToken(ctx, user.ID, HashResetToken(plain), expires); err != nil {
		return "", err
	}
	return plain, nil
}

// ResetPassword consumes a reset token: the new password is stored, the
// token cleared, and every refresh token the user holds is revoked so all
// devices must log in again.
func (s *Service) ResetPassword(ctx context.Context, plainToken, newPassword string) error {
	now := s.clock()
	user, err := s.users.FindByResetToken(ctx, HashResetToken(plainToken), now)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return ErrResetTokenInvalid
		}
		return err
	}
	if err := utils.ValidatePassword(newPassword); err != nil {
		return ErrWeakPassword
	}
	hash, err := utils.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return err
	}
	if err := s.users.SetPassword(ctx, user.ID, hash, now.Add(-time.Second)); err != nil {
		return err
	}
	if _, err := s.tokens.RevokeAllForUser(ctx, user.ID, now, revokedByReset); err != nil {
		return err
	}
	return nil
}

// PurgeExpiredTokens trims the refresh-token collection: expired tokens go
// immediately, revoked ones are kept for the audit window.
func (s *Service) PurgeExpiredTokens(ctx context.Context, auditWindow time.Duration) error {
	return s.tokens.PurgeExpired(ctx, s.clock(), auditWindow)
}

func (s *Service) issuePair(ctx context.Context, user *models.User, ip string) (*TokenPair, error) {
	access, err := s.issuer.IssueAccessToken(user.ID.Hex())
	if err != nil {
		return nil, err
	}
	refresh, err := NewRefreshTokenValue()
	if err != nil {
		return nil, err
	}
	now := s.clock()
	if err := s.tokens.Insert(ctx, &models.RefreshToken{
		UserID:      user.ID,
		Token:       refresh,
		ExpiresAt:   now.Add(s.refreshTTL),
		CreatedAt:   now,
		CreatedByIP: ip,
	}); err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
