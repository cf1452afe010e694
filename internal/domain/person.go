package domain

import (
	"errors"
	"slices"
	"time"
)

// ErrInvalidIndex is returned when a displayed index does not resolve to a person
var ErrInvalidIndex = errors.New("the person index provided is invalid")

// PersonRole defines the type of person
type PersonRole string

const (
	RoleFamily    PersonRole = "family"
	RoleFriend    PersonRole = "friend"
	RoleColleague PersonRole = "colleague"
	RoleContact   PersonRole = "contact"
)

// ParsePersonRole maps user input to a role, falling back to RoleContact
func ParsePersonRole(s string) (PersonRole, bool) {
	switch PersonRole(s) {
	case RoleFamily, RoleFriend, RoleColleague, RoleContact:
		return PersonRole(s), true
	}
	return RoleContact, false
}

// Person is an immutable contact snapshot. Edits produce a new Person via
// Apply; the old snapshot keeps its Schedule.
type Person struct {
	ID        int64
	UserID    int64 // Owner user
	Name      string
	Phone     string
	Email     string
	Address   string
	Role      PersonRole
	Notes     string
	Tags      []string
	Schedule  Schedule
	CreatedAt time.Time
}

// RoleEmoji returns emoji for the role
func (p *Person) RoleEmoji() string {
	switch p.Role {
	case RoleFamily:
		return "👨‍👩‍👧"
	case RoleFriend:
		return "🤝"
	case RoleColleague:
		return "💼"
	default:
		return "👤"
	}
}

// HasSchedule reports whether any event is recorded
func (p *Person) HasSchedule() bool {
	return !p.Schedule.IsEmpty()
}

// PersonDescriptor carries the fields to change on a Person. A nil field
// keeps the current value.
type PersonDescriptor struct {
	Name     *string
	Phone    *string
	Email    *string
	Address  *string
	Role     *PersonRole
	Notes    *string
	Tags     *[]string
	Schedule *Schedule
}

// IsAnyFieldEdited reports whether the descriptor changes anything
func (d PersonDescriptor) IsAnyFieldEdited() bool {
	return d.Name != nil || d.Phone != nil || d.Email != nil || d.Address != nil ||
		d.Role != nil || d.Notes != nil || d.Tags != nil || d.Schedule != nil
}

// Apply returns a new Person with the descriptor's fields substituted.
// The receiver is left untouched.
func (p *Person) Apply(d PersonDescriptor) *Person {
	edited := *p
	edited.Tags = slices.Clone(p.Tags)

	if d.Name != nil {
		edited.Name = *d.Name
	}
	if d.Phone != nil {
		edited.Phone = *d.Phone
	}
	if d.Email != nil {
		edited.Email = *d.Email
	}
	if d.Address != nil {
		edited.Address = *d.Address
	}
	if d.Role != nil {
		edited.Role = *d.Role
	}
	if d.Notes != nil {
		edited.Notes = *d.Notes
	}
	if d.Tags != nil {
		edited.Tags = slices.Clone(*d.Tags)
	}
	if d.Schedule != nil {
		edited.Schedule = *d.Schedule
	}
	return &edited
}

// ResolveIndex returns the person at 1-based index in the displayed list
func ResolveIndex(persons []*Person, index int) (*Person, error) {
	if index < 1 || index > len(persons) {
		return nil, ErrInvalidIndex
	}
	return persons[index-1], nil
}
