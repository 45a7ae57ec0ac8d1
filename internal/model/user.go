package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TimestampLayout is the wire format for created_at and updated_at.
const TimestampLayout = "2006-01-02 15:04:05"

// User represents a registered account. Email uses a binary collation so
// lookups and the unique index are case-sensitive.
type User struct {
	ID           uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	Email        string    `json:"email" gorm:"type:varchar(255) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin;uniqueIndex;not null"`
	Name         string    `json:"name" gorm:"size:255;not null"`
	PasswordHash string    `json:"-" gorm:"size:255;not null"` // Never expose in JSON
	Role         Role      `json:"role" gorm:"size:50;not null;default:'member'"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BeforeCreate sets UUID before creating the record.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// UserView is the public representation of a User. It has no password field.
type UserView struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt string    `json:"created_at"`
	UpdatedAt string    `json:"updated_at"`
}

// View builds the public representation of u.
func (u *User) View() UserView {
	return UserView{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		CreatedAt: formatTime(u.CreatedAt),
		UpdatedAt: formatTime(u.UpdatedAt),
	}
}

// Views maps a slice of users to their public representation.
func Views(users []User) []UserView {
	views := make([]UserView, 0, len(users))
	for i := range users {
		views = append(views, users[i].View())
	}
	return views
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(TimestampLayout)
}
