package enums

// TableStatus is the lifecycle state of a table. Inactive is terminal.
type TableStatus string

const (
	TableStatusActive   TableStatus = "active"
	TableStatusInactive TableStatus = "inactive"
)

var tableStatuses = set[TableStatus]{TableStatusActive, TableStatusInactive}

func (s TableStatus) String() string { return string(s) }

func (s TableStatus) IsValid() bool { return tableStatuses.has(s) }

func ParseTableStatus(value string) (TableStatus, error) {
	return tableStatuses.parse("table status", value)
}

// ParticipantRole describes how a user sits at a table.
type ParticipantRole string

const (
	ParticipantRoleCreator     ParticipantRole = "creator"
	ParticipantRoleParticipant ParticipantRole = "participant"
)

// RoleFor maps the creator flag to a role.
func RoleFor(isCreator bool) ParticipantRole {
	if isCreator {
		return ParticipantRoleCreator
	}
	return ParticipantRoleParticipant
}

// ParticipationStatus marks a participation entry as open or closed.
type ParticipationStatus string

const (
	ParticipationStatusActive   ParticipationStatus = "active"
	ParticipationStatusInactive ParticipationStatus = "inactive"
)

// EndedByCreator is recorded on history entries of tables closed by their creator.
const EndedByCreator = "creator"
