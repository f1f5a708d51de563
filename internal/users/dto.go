package users

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	"github.com/angelmondragon/tableside-backend/pkg/types"
)

// UserDTO is the transport shape that omits sensitive credentials.
type UserDTO struct {
	ID            uuid.UUID                 `json:"id"`
	Email         string                    `json:"email"`
	DisplayName   string                    `json:"display_name"`
	CurrentTable  *types.CurrentTable       `json:"current_table"`
	TableHistory  []types.TableHistoryEntry `json:"table_history"`
	TablesJoined  int                       `json:"tables_joined"`
	TablesCreated int                       `json:"tables_created"`
	UserLevel     int                       `json:"user_level"`
	LastLoginAt   *time.Time                `json:"last_login_at,omitempty"`
	CreatedAt     time.Time                 `json:"created_at"`
	UpdatedAt     time.Time                 `json:"updated_at"`
}

// ParticipantDTO is the roster entry shown inside a room.
type ParticipantDTO struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	UserLevel   int       `json:"user_level"`
}

// CreateUserDTO holds the data required by the repo to persist a new user.
type CreateUserDTO struct {
	Email        string
	PasswordHash string
	DisplayName  string
}

// UpdateProfileDTO carries the editable profile fields.
type UpdateProfileDTO struct {
	DisplayName string `json:"display_name" validate:"required,notblank,max=60"`
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}

	history := make([]types.TableHistoryEntry, 0, len(u.TableHistory))
	history = append(history, u.TableHistory...)

	return &UserDTO{
		ID:            u.ID,
		Email:         u.Email,
		DisplayName:   u.DisplayName,
		CurrentTable:  u.CurrentTable,
		TableHistory:  history,
		TablesJoined:  u.TablesJoined,
		TablesCreated: u.TablesCreated,
		UserLevel:     u.UserLevel,
		LastLoginAt:   u.LastLoginAt,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

// ParticipantFromModel trims a user to its roster entry.
func ParticipantFromModel(u models.User) ParticipantDTO {
	return ParticipantDTO{ID: u.ID, DisplayName: u.DisplayName, UserLevel: u.UserLevel}
}

func (c CreateUserDTO) ToModel() *models.User {
	return &models.User{
		Email:        strings.ToLower(strings.TrimSpace(c.Email)),
		PasswordHash: c.PasswordHash,
		DisplayName:  strings.TrimSpace(c.DisplayName),
		TableHistory: types.TableHistory{},
		UserLevel:    1,
	}
}
