package service

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tazhate/contactbook/internal/domain"
	"github.com/tazhate/contactbook/internal/storage"
)

const (
	MessageAddEventSuccess      = "Added %s to %s's schedule"
	MessagePersonsListed        = "%d persons listed!"
	MessageInvalidPersonIndex   = "The person index provided is invalid"
	MessagePersonAdded          = "New person added: %s"
	MessagePersonDeleted        = "Deleted Person: %s"
	MessagePersonEdited         = "Edited Person: %s"
	MessageNothingEdited        = "At least one field to edit must be provided."
	MessageDuplicatePersonNamed = "This person already exists in the address book"
)

// ErrDuplicatePerson is returned when a name is already taken in the list
var ErrDuplicatePerson = errors.New(MessageDuplicatePersonNamed)

// errInvalidEvent rejects events that bypassed domain.NewEvent
var errInvalidEvent = fmt.Errorf("%w: %s", domain.ErrValidation, domain.EventConstraints)

type PersonService struct {
	storage  *storage.Storage
	timezone *time.Location
	clock    func() time.Time

	// serializes read-modify-write of person snapshots
	mu sync.Mutex
}

func NewPersonService(s *storage.Storage, tz *time.Location) *PersonService {
	if tz == nil {
		tz = time.UTC
	}
	return &PersonService{
		storage:  s,
		timezone: tz,
		clock:    time.Now,
	}
}

// SetClock replaces the wall-clock source used for "today" and "now"
func (s *PersonService) SetClock(clock func() time.Time) {
	s.clock = clock
}

// Now returns the current instant in the configured timezone. Callers read
// it once per operation.
func (s *PersonService) Now() time.Time {
	return s.clock().In(s.timezone)
}

// Create creates a new person with an empty schedule
func (s *PersonService) Create(userID int64, name string, role domain.PersonRole) (*domain.Person, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &domain.ValidationError{Field: "name", Value: name, Reason: "must not be empty"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	persons, err := s.storage.ListPersonsByUser(userID)
	if err != nil {
		return nil, err
	}
	for _, p := range persons {
		if strings.EqualFold(p.Name, name) {
			return nil, ErrDuplicatePerson
		}
	}

	person := &domain.Person{
		UserID:   userID,
		Name:     name,
		Role:     role,
		Schedule: domain.EmptySchedule,
	}
	if err := s.storage.CreatePerson(person); err != nil {
		return nil, fmt.Errorf("create person: %w", err)
	}
	return person, nil
}

// List returns the displayed list of a user's persons. Indexes given to
// other operations are 1-based positions in this list.
func (s *PersonService) List(userID int64) ([]*domain.Person, error) {
	return s.storage.ListPersonsByUser(userID)
}

// Get resolves a displayed index
func (s *PersonService) Get(userID int64, index int) (*domain.Person, error) {
	persons, err := s.List(userID)
	if err != nil {
		return nil, err
	}
	return domain.ResolveIndex(persons, index)
}

// Edit applies the descriptor to the indexed person and stores the new snapshot
func (s *PersonService) Edit(userID int64, index int, d domain.PersonDescriptor) (*domain.Person, error) {
	if !d.IsAnyFieldEdited() {
		return nil, errors.New(MessageNothingEdited)
	}
	if d.Schedule != nil && !domain.IsValidSchedule(*d.Schedule) {
		return nil, errInvalidEvent
	}
	if d.Name != nil {
		name := strings.TrimSpace(*d.Name)
		if name == "" {
			return nil, &domain.ValidationError{Field: "name", Value: *d.Name, Reason: "must not be empty"}
		}
		d.Name = &name
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	persons, err := s.List(userID)
	if err != nil {
		return nil, err
	}
	person, err := domain.ResolveIndex(persons, index)
	if err != nil {
		return nil, err
	}
	if d.Name != nil {
		for _, p := range persons {
			if p.ID != person.ID && strings.EqualFold(p.Name, *d.Name) {
				return nil, ErrDuplicatePerson
			}
		}
	}

	edited := person.Apply(d)
	if err := s.storage.UpdatePerson(edited); err != nil {
		return nil, fmt.Errorf("update person: %w", err)
	}
	return edited, nil
}

// Delete removes the indexed person
func (s *PersonService) Delete(userID int64, index int) (*domain.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	person, err := s.Get(userID, index)
	if err != nil {
		return nil, err
	}
	if err := s.storage.DeletePerson(person.ID); err != nil {
		return nil, fmt.Errorf("delete person: %w", err)
	}
	return person, nil
}

// AddEventResult is the outcome of AddEvent
type AddEventResult struct {
	Person  *domain.Person
	Event   domain.Event
	Message string
}

// AddEvent appends event to the indexed person's schedule. The person is
// replaced by a new snapshot carrying the extended schedule; no other
// field changes. An out-of-range index returns domain.ErrInvalidIndex and
// leaves storage untouched.
func (s *PersonService) AddEvent(userID int64, index int, event domain.Event) (*AddEventResult, error) {
	if !domain.IsValidEvent(event) {
		return nil, errInvalidEvent
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	person, err := s.Get(userID, index)
	if err != nil {
		return nil, err
	}

	schedule := person.Schedule.Add(event)
	edited := person.Apply(domain.PersonDescriptor{Schedule: &schedule})
	if err := s.storage.UpdatePerson(edited); err != nil {
		return nil, fmt.Errorf("save schedule: %w", err)
	}

	return &AddEventResult{
		Person:  edited,
		Event:   event,
		Message: fmt.Sprintf(MessageAddEventSuccess, event, edited.Name),
	}, nil
}

// FreeScheduleResult is the filtered list of persons free at a query instant
type FreeScheduleResult struct {
	Query   domain.FreeQuery
	Persons []domain.IndexedPerson // indexes refer to List
	Message string
}

// FreeSchedule lists persons free at the given time. A nil date means
// today in the configured timezone.
func (s *PersonService) FreeSchedule(userID int64, at domain.TimeOfDay, date *time.Time) (*FreeScheduleResult, error) {
	query := domain.NewFreeQuery(at, date, s.Now())

	persons, err := s.List(userID)
	if err != nil {
		return nil, err
	}

	free := domain.Filter(persons, domain.FreePredicate(query))
	return &FreeScheduleResult{
		Query:   query,
		Persons: free,
		Message: fmt.Sprintf(MessagePersonsListed, len(free)),
	}, nil
}

// Upcoming projects the indexed person's schedule over the next days
func (s *PersonService) Upcoming(userID int64, index int, days int) (*domain.Person, domain.Schedule, error) {
	if days < 0 {
		return nil, domain.EmptySchedule, errors.New("number of days must not be negative")
	}
	now := s.Now()

	person, err := s.Get(userID, index)
	if err != nil {
		return nil, domain.EmptySchedule, err
	}
	return person, person.Schedule.UpcomingSchedule(now, days), nil
}

// TodayAgenda is one person's remaining events for today
type TodayAgenda struct {
	Person   *domain.Person
	Schedule domain.Schedule
}

// ListTodayAgendas returns, for every person with events still ahead today,
// the projection of their schedule over a zero-day window.
func (s *PersonService) ListTodayAgendas(userID int64) ([]TodayAgenda, error) {
	now := s.Now()

	persons, err := s.List(userID)
	if err != nil {
		return nil, err
	}

	var agendas []TodayAgenda
	for _, p := range persons {
		upcoming := p.Schedule.UpcomingSchedule(now, 0)
		if upcoming.IsEmpty() {
			continue
		}
		agendas = append(agendas, TodayAgenda{Person: p, Schedule: upcoming})
	}
	return agendas, nil
}

// FormatPersonList formats persons list for display
func (s *PersonService) FormatPersonList(persons []*domain.Person) string {
	if len(persons) == 0 {
		return "The list is empty"
	}

	var sb strings.Builder
	for i, p := range persons {
		sb.WriteString(fmt.Sprintf("%d. %s <b>%s</b>", i+1, p.RoleEmoji(), p.Name))
		if n := p.Schedule.Len(); n > 0 {
			sb.WriteString(fmt.Sprintf(" 🗓 %d", n))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
