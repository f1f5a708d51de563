package types

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tableside-backend/pkg/enums"
)

// Position is a pin on a zone map, expressed in percent of the map size.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Valid reports whether both coordinates sit inside the map.
func (p Position) Valid() bool {
	return p.X >= 0 && p.X <= 100 && p.Y >= 0 && p.Y <= 100
}

// Value marshals the position into JSON for Postgres.
func (p Position) Value() (driver.Value, error) {
	buf, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(buf), nil
}

// Scan decodes JSONB into the position.
func (p *Position) Scan(value interface{}) error {
	if value == nil {
		*p = Position{}
		return nil
	}
	return scanJSON(value, p, "position")
}

// CurrentTable is the user's pointer to the table they currently sit at.
type CurrentTable struct {
	ID           uuid.UUID `json:"id"`
	LocationID   string    `json:"location_id"`
	LocationName string    `json:"location_name"`
	Title        string    `json:"title"`
	IsCreator    bool      `json:"is_creator"`
	JoinedAt     time.Time `json:"joined_at"`
}

// Value marshals the pointer into JSON for Postgres.
func (c CurrentTable) Value() (driver.Value, error) {
	buf, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(buf), nil
}

// Scan decodes JSONB into the pointer.
func (c *CurrentTable) Scan(value interface{}) error {
	if value == nil {
		*c = CurrentTable{}
		return nil
	}
	return scanJSON(value, c, "current table")
}

// TableHistoryEntry records one table in a user's history.
type TableHistoryEntry struct {
	ID           uuid.UUID             `json:"id"`
	Title        string                `json:"title"`
	LocationID   string                `json:"location_id"`
	LocationName string                `json:"location_name"`
	Date         time.Time             `json:"date"`
	Role         enums.ParticipantRole `json:"role"`
	EndedBy      string                `json:"ended_by,omitempty"`
}

// TableHistory is a user's list of past tables, unique by table id.
type TableHistory []TableHistoryEntry

// Value marshals the history into JSON for Postgres.
func (h TableHistory) Value() (driver.Value, error) {
	if h == nil {
		return "[]", nil
	}
	buf, err := json.Marshal([]TableHistoryEntry(h))
	if err != nil {
		return nil, err
	}
	return string(buf), nil
}

// Scan decodes JSONB into the history.
func (h *TableHistory) Scan(value interface{}) error {
	if value == nil {
		*h = nil
		return nil
	}
	var out []TableHistoryEntry
	if err := scanJSON(value, &out, "table history"); err != nil {
		return err
	}
	*h = out
	return nil
}

// Contains reports whether the history already lists tableID.
func (h TableHistory) Contains(tableID uuid.UUID) bool {
	for _, entry := range h {
		if entry.ID == tableID {
			return true
		}
	}
	return false
}

// Merge appends entry unless its table id is already present.
func (h TableHistory) Merge(entry TableHistoryEntry) (TableHistory, bool) {
	if h.Contains(entry.ID) {
		return h, false
	}
	out := make(TableHistory, 0, len(h)+1)
	out = append(out, h...)
	return append(out, entry), true
}

// ParticipationEntry records a user's presence at a table.
type ParticipationEntry struct {
	UserID      uuid.UUID                 `json:"user_id"`
	DisplayName string                    `json:"display_name"`
	Role        enums.ParticipantRole     `json:"role"`
	Status      enums.ParticipationStatus `json:"status"`
	JoinAt      time.Time                 `json:"join_at"`
	LeaveAt     *time.Time                `json:"leave_at,omitempty"`
}

// ParticipationHistory is a table's participation log, one entry per user.
type ParticipationHistory []ParticipationEntry

// Value marshals the log into JSON for Postgres.
func (p ParticipationHistory) Value() (driver.Value, error) {
	if p == nil {
		return "[]", nil
	}
	buf, err := json.Marshal([]ParticipationEntry(p))
	if err != nil {
		return nil, err
	}
	return string(buf), nil
}

// Scan decodes JSONB into the log.
func (p *ParticipationHistory) Scan(value interface{}) error {
	if value == nil {
		*p = nil
		return nil
	}
	var out []ParticipationEntry
	if err := scanJSON(value, &out, "participation history"); err != nil {
		return err
	}
	*p = out
	return nil
}

// Activate returns a copy where userID holds an active entry joined at now.
// A returning user keeps their original entry and role.
func (p ParticipationHistory) Activate(userID uuid.UUID, displayName string, role enums.ParticipantRole, now time.Time) ParticipationHistory {
	out := make(ParticipationHistory, 0, len(p)+1)
	found := false
	for _, entry := range p {
		if entry.UserID == userID {
			entry.JoinAt = now
			entry.LeaveAt = nil
			entry.Status = enums.ParticipationStatusActive
			found = true
		}
		out = append(out, entry)
	}
	if !found {
		if displayName == "" {
			displayName = "User"
		}
		out = append(out, ParticipationEntry{
			UserID:      userID,
			DisplayName: displayName,
			Role:        role,
			Status:      enums.ParticipationStatusActive,
			JoinAt:      now,
		})
	}
	return out
}

// Deactivate returns a copy with userID's active entries closed at now.
func (p ParticipationHistory) Deactivate(userID uuid.UUID, now time.Time) ParticipationHistory {
	out := make(ParticipationHistory, 0, len(p))
	for _, entry := range p {
		if entry.UserID == userID && entry.Status == enums.ParticipationStatusActive {
			leaveAt := now
			entry.LeaveAt = &leaveAt
			entry.Status = enums.ParticipationStatusInactive
		}
		out = append(out, entry)
	}
	return out
}

// DeactivateAll returns a copy with every active entry closed at now.
func (p ParticipationHistory) DeactivateAll(now time.Time) ParticipationHistory {
	out := make(ParticipationHistory, 0, len(p))
	for _, entry := range p {
		if entry.Status == enums.ParticipationStatusActive {
			leaveAt := now
			entry.LeaveAt = &leaveAt
			entry.Status = enums.ParticipationStatusInactive
		}
		out = append(out, entry)
	}
	return out
}

// Includes reports whether userID has an entry, active or not.
func (p ParticipationHistory) Includes(userID uuid.UUID) bool {
	for _, entry := range p {
		if entry.UserID == userID {
			return true
		}
	}
	return false
}

// ActiveCount returns the number of active entries.
func (p ParticipationHistory) ActiveCount() int {
	count := 0
	for _, entry := range p {
		if entry.Status == enums.ParticipationStatusActive {
			count++
		}
	}
	return count
}

// UUIDList is a JSONB-backed set of ids in insertion order.
type UUIDList []uuid.UUID

// Value marshals the list into JSON for Postgres.
func (l UUIDList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	buf, err := json.Marshal([]uuid.UUID(l))
	if err != nil {
		return nil, err
	}
	return string(buf), nil
}

// Scan decodes JSONB into the list.
func (l *UUIDList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	var out []uuid.UUID
	if err := scanJSON(value, &out, "uuid list"); err != nil {
		return err
	}
	*l = out
	return nil
}

// Contains reports whether id is in the list.
func (l UUIDList) Contains(id uuid.UUID) bool {
	for _, candidate := range l {
		if candidate == id {
			return true
		}
	}
	return false
}

// With returns a copy that includes id.
func (l UUIDList) With(id uuid.UUID) UUIDList {
	out := make(UUIDList, 0, len(l)+1)
	out = append(out, l...)
	if l.Contains(id) {
		return out
	}
	return append(out, id)
}

// Without returns a copy that excludes id.
func (l UUIDList) Without(id uuid.UUID) UUIDList {
	out := make(UUIDList, 0, len(l))
	for _, candidate := range l {
		if candidate != id {
			out = append(out, candidate)
		}
	}
	return out
}

// Equal reports whether both lists hold the same ids, ignoring order.
func (l UUIDList) Equal(other UUIDList) bool {
	if len(l) != len(other) {
		return false
	}
	for _, id := range l {
		if !other.Contains(id) {
			return false
		}
	}
	return true
}
