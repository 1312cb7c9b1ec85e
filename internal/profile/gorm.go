package profile

import (
	"context"
	"errors"
	"time"

	"chatrelay/internal/identity"
	"chatrelay/internal/models"
	"chatrelay/internal/presence"

	"gorm.io/gorm"
)

// GormStore keeps profiles in the users table.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Upsert(ctx context.Context, id identity.Identity) (*Profile, error) {
	now := time.Now()
	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("subject = ?", id.Subject).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			p := newProfile(id, now)
			user = models.User{
				Subject:     p.Subject,
				Email:       p.Email,
				DisplayName: p.DisplayName,
				AvatarColor: p.AvatarColor,
				Status:      string(p.Status),
				LastLogin:   &now,
			}
			return tx.Create(&user).Error
		}
		if err != nil {
			return err
		}
		user.Status = string(presence.StatusOnline)
		user.LastLogin = &now
		return tx.Model(&user).Updates(map[string]any{"status": user.Status, "last_login": now}).Error
	})
	if err != nil {
		return nil, err
	}
	p := fromModel(user)
	return &p, nil
}

func (s *GormStore) Get(ctx context.Context, subject string) (*Profile, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("subject = ?", subject).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p := fromModel(user)
	return &p, nil
}

func (s *GormStore) SetStatus(ctx context.Context, subject string, status presence.Status) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("subject = ?", subject).Update("status", string(status))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func fromModel(u models.User) Profile {
	p := Profile{
		Subject:     u.Subject,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		AvatarColor: u.AvatarColor,
		Status:      presence.Status(u.Status),
	}
	if u.LastLogin != nil {
		p.LastLogin = *u.LastLogin
	}
	return p
}
