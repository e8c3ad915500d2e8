//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/norspire/authcore"
)

// AutoMigrate runs database migrations for all authcore tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&UserModel{},
		&IdentityModel{},
		&SessionModel{},
	)
}

// Store implements authcore.CredentialStore and authcore.SessionStore
// using GORM.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateUser(ctx context.Context, nu authcore.NewUser) (*authcore.User, error) {
	model := &UserModel{
		ID:           uuid.NewString(),
		Email:        authcore.NormalizeEmail(nu.Email),
		PasswordHash: nu.PasswordHash,
		IsVerified:   nu.IsVerified,
		IsActive:     true,
		DisplayName:  nu.DisplayName,
		PictureURL:   nu.PictureURL,
	}
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, authcore.ErrEmailTaken
		}
		return nil, err
	}
	return model.toUser(), nil
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (*authcore.User, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, authcore.ErrUserNotFound
		}
		return nil, err
	}
	return model.toUser(), nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*authcore.User, error) {
	var model UserModel
	err := s.db.WithContext(ctx).First(&model, "email = ?", authcore.NormalizeEmail(email)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, authcore.ErrUserNotFound
		}
		return nil, err
	}
	return model.toUser(), nil
}

func (s *Store) GetUserByIdentity(ctx context.Context, provider authcore.Provider, subject string) (*authcore.User, error) {
	var ident IdentityModel
	err := s.db.WithContext(ctx).First(&ident, "provider = ? AND subject = ?", string(provider), subject).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, authcore.ErrUserNotFound
		}
		return nil, err
	}
	return s.GetUserByID(ctx, ident.UserID)
}

func (s *Store) LinkIdentity(ctx context.Context, userID string, provider authcore.Provider, subject string) error {
	model := &IdentityModel{
		Provider: string(provider),
		Subject:  subject,
		UserID:   userID,
	}
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return authcore.ErrIdentityTaken
		}
		return err
	}
	return nil
}

func (s *Store) ListIdentities(ctx context.Context, userID string) ([]*authcore.LinkedIdentity, error) {
	var models []IdentityModel
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&models).Error; err != nil {
		return nil, err
	}
	identities := make([]*authcore.LinkedIdentity, len(models))
	for i, m := range models {
		identities[i] = m.toIdentity()
	}
	return identities, nil
}

func (s *Store) SetVerified(ctx context.Context, userID string) error {
	res := s.db.WithContext(ctx).Model(&UserModel{}).
		Where("id = ?", userID).
		Update("is_verified", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return authcore.ErrUserNotFound
	}
	return nil
}

// SetPassword performs the generation compare-and-set in a single UPDATE, so
// two racing resets cannot both apply.
func (s *Store) SetPassword(ctx context.Context, userID string, passwordHash string, expectedGeneration int) error {
	res := s.db.WithContext(ctx).Model(&UserModel{}).
		Where("id = ? AND credential_generation = ?", userID, expectedGeneration).
		Updates(map[string]any{
			"password_hash":         passwordHash,
			"credential_generation": expectedGeneration + 1,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetUserByID(ctx, userID); err != nil {
			return err
		}
		return authcore.ErrTokenExpired
	}
	return nil
}

func (s *Store) UpdateProfile(ctx context.Context, userID string, upd authcore.ProfileUpdate) error {
	updates := map[string]any{}
	if upd.DisplayName != nil {
		updates["display_name"] = *upd.DisplayName
	}
	if upd.PictureURL != nil {
		updates["picture_url"] = *upd.PictureURL
	}
	if len(updates) == 0 {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&UserModel{}).Where("id = ?", userID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return authcore.ErrUserNotFound
	}
	return nil
}

func (s *Store) CreateSession(ctx context.Context, sess *authcore.Session) error {
	model := &SessionModel{
		ID:        sess.ID,
		UserID:    sess.UserID,
		CreatedAt: sess.CreatedAt,
		ExpiresAt: sess.ExpiresAt,
		Revoked:   sess.Revoked,
	}
	return s.db.WithContext(ctx).Create(model).Error
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*authcore.Session, error) {
	var model SessionModel
	err := s.db.WithContext(ctx).First(&model, "id = ?", sessionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.toSession(), nil
}

func (s *Store) RevokeSession(ctx context.Context, sessionID string) error {
	return s.db.WithContext(ctx).Model(&SessionModel{}).
		Where("id = ?", sessionID).
		Update("revoked", true).Error
}

func (s *Store) RevokeUserSessions(ctx context.Context, userID string) error {
	return s.db.WithContext(ctx).Model(&SessionModel{}).
		Where("user_id = ?", userID).
		Update("revoked", true).Error
}

// PurgeExpiredSessions deletes sessions whose expiry is before cutoff.
// Intended to be run periodically from a maintenance job.
func (s *Store) PurgeExpiredSessions(ctx context.Context, cutoff time.Time) error {
	return s.db.WithContext(ctx).
		Where("expires_at < ?", cutoff).
		Delete(&SessionModel{}).Error
}
