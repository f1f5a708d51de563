package tables

import (
	"errors"

	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
)

// Reasons let clients branch on lifecycle failures without parsing messages.
const (
	ReasonNotAuthenticated    = "NOT_AUTHENTICATED"
	ReasonAlreadyInTable      = "ALREADY_IN_TABLE"
	ReasonMissingLocationInfo = "MISSING_LOCATION_INFO"
	ReasonTableNotFound       = "TABLE_NOT_FOUND"
	ReasonTableInactive       = "TABLE_INACTIVE"
	ReasonTableFull           = "TABLE_FULL"
	ReasonNotCreator          = "NOT_TABLE_CREATOR"
	ReasonLocationNotFound    = "LOCATION_NOT_FOUND"
)

// ErrorDetails is attached to every lifecycle error.
type ErrorDetails struct {
	Reason string `json:"reason"`
}

// PublicDetails lets clients branch on the reason for every status code.
func (ErrorDetails) PublicDetails() {}

func lifecycleError(code pkgerrors.Code, reason, message string) error {
	return pkgerrors.New(code, message).WithDetails(ErrorDetails{Reason: reason})
}

func errNotAuthenticated() error {
	return lifecycleError(pkgerrors.CodeUnauthorized, ReasonNotAuthenticated, "user is not authenticated")
}

func errAlreadyInTable() error {
	return lifecycleError(pkgerrors.CodeConflict, ReasonAlreadyInTable, "user is already in a table")
}

func errMissingLocationInfo() error {
	return lifecycleError(pkgerrors.CodeValidation, ReasonMissingLocationInfo, "table location information is missing")
}

func errTableNotFound() error {
	return lifecycleError(pkgerrors.CodeNotFound, ReasonTableNotFound, "table not found")
}

func errTableInactive() error {
	return lifecycleError(pkgerrors.CodeStateConflict, ReasonTableInactive, "table is no longer active")
}

func errTableFull() error {
	return lifecycleError(pkgerrors.CodeConflict, ReasonTableFull, "table is full")
}

func errNotCreator() error {
	return lifecycleError(pkgerrors.CodeForbidden, ReasonNotCreator, "only the table creator can do this")
}

func errLocationNotFound() error {
	return lifecycleError(pkgerrors.CodeNotFound, ReasonLocationNotFound, "location not found")
}

// ReasonOf extracts the lifecycle reason from err, or "" when it carries none.
func ReasonOf(err error) string {
	typed := pkgerrors.As(err)
	if typed == nil {
		return ""
	}
	if details, ok := typed.Details().(ErrorDetails); ok {
		return details.Reason
	}
	return ""
}

// outcomeOf maps an error to a metrics label.
func outcomeOf(err error) string {
	if err == nil {
		return ""
	}
	if reason := ReasonOf(err); reason != "" {
		return reason
	}
	return string(pkgerrors.CodeOf(err))
}

// storeError keeps coded errors and wraps everything else as a dependency failure.
func storeError(err error, message string) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
