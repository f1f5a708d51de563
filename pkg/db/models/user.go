package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tableside-backend/pkg/types"
)

// User is the profile record of an authenticated person.
type User struct {
	ID           uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Email        string              `gorm:"column:email;type:text;not null;uniqueIndex"`
	PasswordHash string              `gorm:"column:password_hash;not null"`
	DisplayName  string              `gorm:"column:display_name;not null"`
	CurrentTable *types.CurrentTable `gorm:"column:current_table;type:jsonb"`
	TableHistory types.TableHistory  `gorm:"column:table_history;type:jsonb;not null"`
	// Profile counters are read-only; nothing in the lifecycle increments them.
	TablesJoined  int        `gorm:"column:tables_joined;not null;default:0"`
	TablesCreated int        `gorm:"column:tables_created;not null;default:0"`
	UserLevel     int        `gorm:"column:user_level;not null;default:1"`
	LastLoginAt   *time.Time `gorm:"column:last_login_at"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.TableHistory == nil {
		u.TableHistory = types.TableHistory{}
	}
	return nil
}
