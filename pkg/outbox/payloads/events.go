package payloads

import (
	"time"

	"github.com/google/uuid"
)

// TableCreatedEvent is emitted when a creator opens a table.
type TableCreatedEvent struct {
	TableID    uuid.UUID `json:"table_id"`
	LocationID string    `json:"location_id"`
	CreatorID  uuid.UUID `json:"creator_id"`
	Title      string    `json:"title"`
	Zone       string    `json:"zone"`
	Seats      int       `json:"seats"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableJoinedEvent is emitted when a participant takes a seat.
type TableJoinedEvent struct {
	TableID        uuid.UUID `json:"table_id"`
	LocationID     string    `json:"location_id"`
	UserID         uuid.UUID `json:"user_id"`
	AvailableSeats int       `json:"available_seats"`
	JoinedAt       time.Time `json:"joined_at"`
}

// TableLeftEvent is emitted when a participant gives up their seat.
type TableLeftEvent struct {
	TableID        uuid.UUID `json:"table_id"`
	LocationID     string    `json:"location_id"`
	UserID         uuid.UUID `json:"user_id"`
	AvailableSeats int       `json:"available_seats"`
	Reason         string    `json:"reason,omitempty"`
	LeftAt         time.Time `json:"left_at"`
}

// TableEndedEvent is emitted once when the creator ends a table.
type TableEndedEvent struct {
	TableID              uuid.UUID   `json:"table_id"`
	LocationID           string      `json:"location_id"`
	EndedBy              uuid.UUID   `json:"ended_by"`
	EndReason            string      `json:"end_reason"`
	ParticipantsToNotify []uuid.UUID `json:"participants_to_notify"`
	EndedAt              time.Time   `json:"ended_at"`
}

// UserRegisteredEvent is emitted when an account is created.
type UserRegisteredEvent struct {
	UserID       uuid.UUID `json:"user_id"`
	DisplayName  string    `json:"display_name"`
	RegisteredAt time.Time `json:"registered_at"`
}

// UserDeletedEvent is emitted when an account is removed.
type UserDeletedEvent struct {
	UserID    uuid.UUID `json:"user_id"`
	DeletedAt time.Time `json:"deleted_at"`
}
