package domain

import (
	"github.com/google/uuid"

	dErrors "deploygate/pkg/domain-errors"
)

// UserID identifies a registered user row. Principals are addressed by name,
// not by this ID; it only exists as a storage key.
type UserID uuid.UUID

// RecordID identifies a stored deployment record.
type RecordID uuid.UUID

func NewUserID() UserID     { return UserID(uuid.New()) }
func NewRecordID() RecordID { return RecordID(uuid.New()) }

func (u UserID) String() string   { return uuid.UUID(u).String() }
func (r RecordID) String() string { return uuid.UUID(r).String() }

func (u UserID) IsNil() bool   { return uuid.UUID(u) == uuid.Nil }
func (r RecordID) IsNil() bool { return uuid.UUID(r) == uuid.Nil }

// ParseUserID parses a non-nil UUID.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user ID")
	return UserID(u), err
}

// ParseRecordID parses a non-nil UUID.
func ParseRecordID(s string) (RecordID, error) {
	u, err := parseUUID(s, "record ID")
	return RecordID(u), err
}

func parseUUID(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, what+" required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "invalid "+what)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, what+" must not be nil")
	}
	return u, nil
}
