package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tableside-backend/pkg/enums"
	"github.com/angelmondragon/tableside-backend/pkg/types"
)

// Table is a seat-capped meetup pinned to a zone of a location.
type Table struct {
	ID                   uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	LocationID           string                     `gorm:"column:location_id;type:text;not null;index:idx_tables_location_status"`
	Title                string                     `gorm:"column:title;type:text;not null"`
	Description          string                     `gorm:"column:description;type:text;not null;default:''"`
	Seats                int                        `gorm:"column:seats;not null"`
	AvailableSeats       int                        `gorm:"column:available_seats;not null"`
	Zone                 string                     `gorm:"column:zone;type:text;not null;default:''"`
	Position             types.Position             `gorm:"column:position;type:jsonb;not null"`
	CreatorID            uuid.UUID                  `gorm:"column:creator_id;type:uuid;not null"`
	CreatorName          string                     `gorm:"column:creator_name;type:text;not null"`
	JoinedUsers          types.UUIDList             `gorm:"column:joined_users;type:jsonb;not null"`
	ParticipationHistory types.ParticipationHistory `gorm:"column:participation_history;type:jsonb;not null"`
	Status               enums.TableStatus          `gorm:"column:status;type:text;not null;index:idx_tables_location_status"`
	EndedAt              *time.Time                 `gorm:"column:ended_at"`
	EndedBy              *uuid.UUID                 `gorm:"column:ended_by;type:uuid"`
	EndReason            *string                    `gorm:"column:end_reason"`
	NotifyParticipants   bool                       `gorm:"column:notify_participants;not null;default:false"`
	ParticipantsToNotify types.UUIDList             `gorm:"column:participants_to_notify;type:jsonb;not null"`
	ConversationPrompt   string                     `gorm:"column:conversation_prompt;type:text;not null;default:''"`
	PromptUpdatedAt      *time.Time                 `gorm:"column:prompt_updated_at"`
	CreatedAt            time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}

// IsActive reports whether the table still accepts joins.
func (t *Table) IsActive() bool {
	return t.Status == enums.TableStatusActive
}

func (t *Table) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.JoinedUsers == nil {
		t.JoinedUsers = types.UUIDList{}
	}
	if t.ParticipantsToNotify == nil {
		t.ParticipantsToNotify = types.UUIDList{}
	}
	if t.ParticipationHistory == nil {
		t.ParticipationHistory = types.ParticipationHistory{}
	}
	return t.checkSeats()
}

func (t *Table) checkSeats() error {
	if t.Seats <= 0 {
		return errors.New("table seats must be positive")
	}
	if t.AvailableSeats < 0 || t.AvailableSeats > t.Seats {
		return errors.New("available seats out of range")
	}
	if !t.Status.IsValid() {
		return errors.New("invalid table status " + string(t.Status))
	}
	return nil
}
