package models

import "time"

// User 是身份提供方主体（subject）对应的持久化资料。
type User struct {
	ID          uint   `gorm:"primaryKey"`
	Subject     string `gorm:"uniqueIndex;size:255;not null"`
	Email       string `gorm:"index;size:320"`
	DisplayName string `gorm:"size:128;not null"`
	AvatarColor string `gorm:"size:16;not null"`
	Status      string `gorm:"size:16;not null;default:offline"`
	LastLogin   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
