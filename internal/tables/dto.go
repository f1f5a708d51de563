package tables

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	"github.com/angelmondragon/tableside-backend/pkg/enums"
	"github.com/angelmondragon/tableside-backend/pkg/types"
)

const (
	defaultTitle     = "Untitled Table"
	defaultEndReason = "Creator left the table"
	titleMaxLength   = 100
	descMaxLength    = 500
)

// TableDTO is the public shape of a table and the payload of feed snapshots.
type TableDTO struct {
	ID                   uuid.UUID                  `json:"id"`
	LocationID           string                     `json:"location_id"`
	Title                string                     `json:"title"`
	Description          string                     `json:"description"`
	Seats                int                        `json:"seats"`
	AvailableSeats       int                        `json:"available_seats"`
	Zone                 string                     `json:"zone"`
	Position             types.Position             `json:"position"`
	CreatorID            uuid.UUID                  `json:"creator_id"`
	CreatorName          string                     `json:"creator_name"`
	JoinedUsers          []uuid.UUID                `json:"joined_users"`
	ParticipationHistory []types.ParticipationEntry `json:"participation_history"`
	Status               enums.TableStatus          `json:"status"`
	EndedAt              *time.Time                 `json:"ended_at,omitempty"`
	EndedBy              *uuid.UUID                 `json:"ended_by,omitempty"`
	EndReason            *string                    `json:"end_reason,omitempty"`
	NotifyParticipants   bool                       `json:"notify_participants"`
	ParticipantsToNotify []uuid.UUID                `json:"participants_to_notify"`
	ConversationPrompt   string                     `json:"conversation_prompt"`
	PromptUpdatedAt      *time.Time                 `json:"prompt_updated_at,omitempty"`
	CreatedAt            time.Time                  `json:"created_at"`
	UpdatedAt            time.Time                  `json:"updated_at"`
}

// IsActive reports whether the table still accepts joins.
func (t TableDTO) IsActive() bool {
	return t.Status == enums.TableStatusActive
}

// HasJoined reports whether userID currently holds a seat.
func (t TableDTO) HasJoined(userID uuid.UUID) bool {
	return types.UUIDList(t.JoinedUsers).Contains(userID)
}

// ShouldNotify reports whether the creator asked userID to be sent away.
func (t TableDTO) ShouldNotify(userID uuid.UUID) bool {
	return t.NotifyParticipants && types.UUIDList(t.ParticipantsToNotify).Contains(userID)
}

func FromModel(m *models.Table) *TableDTO {
	if m == nil {
		return nil
	}
	joined := make([]uuid.UUID, 0, len(m.JoinedUsers))
	joined = append(joined, m.JoinedUsers...)
	notify := make([]uuid.UUID, 0, len(m.ParticipantsToNotify))
	notify = append(notify, m.ParticipantsToNotify...)
	history := make([]types.ParticipationEntry, 0, len(m.ParticipationHistory))
	history = append(history, m.ParticipationHistory...)
	return &TableDTO{
		ID:                   m.ID,
		LocationID:           m.LocationID,
		Title:                m.Title,
		Description:          m.Description,
		Seats:                m.Seats,
		AvailableSeats:       m.AvailableSeats,
		Zone:                 m.Zone,
		Position:             m.Position,
		CreatorID:            m.CreatorID,
		CreatorName:          m.CreatorName,
		JoinedUsers:          joined,
		ParticipationHistory: history,
		Status:               m.Status,
		EndedAt:              m.EndedAt,
		EndedBy:              m.EndedBy,
		EndReason:            m.EndReason,
		NotifyParticipants:   m.NotifyParticipants,
		ParticipantsToNotify: notify,
		ConversationPrompt:   m.ConversationPrompt,
		PromptUpdatedAt:      m.PromptUpdatedAt,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
}

// CreateTableInput carries a creator's request to open a table.
type CreateTableInput struct {
	UserID      uuid.UUID
	DisplayName string
	LocationID  string
	Title       string
	Description string
	Seats       int
	Zone        string
	Position    types.Position
}

// JoinInput identifies the table a user wants a seat at.
type JoinInput struct {
	UserID      uuid.UUID
	DisplayName string
	LocationID  string
	TableID     uuid.UUID
}

// LeaveInput describes a leave or, for the creator, an end.
type LeaveInput struct {
	UserID       uuid.UUID
	LocationID   string
	TableID      uuid.UUID
	Title        string
	LocationName string
	IsCreator    bool
	Reason       string
}

// LeaveResult reports what a leave did to the table.
type LeaveResult struct {
	Ended bool      `json:"ended"`
	Table *TableDTO `json:"table,omitempty"`
}

// PromptInput is a creator's conversation prompt edit.
type PromptInput struct {
	UserID     uuid.UUID
	LocationID string
	TableID    uuid.UUID
	Prompt     string
}

// ReconcileResult summarises one orphan sweep.
type ReconcileResult struct {
	Scanned int
	Healed  int
}
