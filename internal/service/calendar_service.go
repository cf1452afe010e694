package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/tazhate/contactbook/internal/clients/caldav"
	"github.com/tazhate/contactbook/internal/domain"
	"github.com/tazhate/contactbook/internal/storage"
)

// ErrNothingToExport is returned for a person without recorded events
var ErrNothingToExport = errors.New("no schedule recorded to export")

// CalendarService exports contact schedules as weekly recurring events
type CalendarService struct {
	storage      *storage.Storage
	caldavClient *caldav.Client
	calendarPath string         // Path to the calendar to export to
	timezone     *time.Location // Timezone for event times
	clock        func() time.Time
}

// NewCalendarService creates a new calendar service. client may be nil
// when only ICS export is needed.
func NewCalendarService(s *storage.Storage, client *caldav.Client, tz *time.Location) *CalendarService {
	if tz == nil {
		tz = time.UTC
	}
	return &CalendarService{
		storage:      s,
		caldavClient: client,
		timezone:     tz,
		clock:        time.Now,
	}
}

func (s *CalendarService) SetClock(clock func() time.Time) {
	s.clock = clock
}

// IsConfigured returns true if CalDAV client is configured
func (s *CalendarService) IsConfigured() bool {
	return s.caldavClient != nil && s.caldavClient.IsConfigured()
}

// SetCalendarPath sets the calendar path to export to
func (s *CalendarService) SetCalendarPath(path string) {
	s.calendarPath = path
	if s.caldavClient != nil {
		s.caldavClient.SetCalendarID(path)
	}
}

// DiscoverCalendars returns available remote calendars
func (s *CalendarService) DiscoverCalendars(ctx context.Context) ([]caldav.Calendar, error) {
	if !s.IsConfigured() {
		return nil, fmt.Errorf("CalDAV not configured")
	}
	return s.caldavClient.DiscoverCalendars(ctx)
}

// PersonEvents converts the person's schedule into weekly recurring
// calendar events, one per schedule entry.
func (s *CalendarService) PersonEvents(p *domain.Person) []caldav.Event {
	events := make([]caldav.Event, 0, p.Schedule.Len())
	for i, e := range p.Schedule.Events() {
		start := e.Start(s.timezone)
		events = append(events, caldav.Event{
			UID:         caldav.EventUID(p.ID, i, e.String()),
			Summary:     e.Description(),
			Description: fmt.Sprintf("Weekly with %s", p.Name),
			StartTime:   start,
			EndTime:     e.End(s.timezone),
			RRule:       caldav.WeeklyRule(start),
		})
	}
	return events
}

// ExportICS renders the person's schedule as an iCalendar document
func (s *CalendarService) ExportICS(p *domain.Person) ([]byte, error) {
	if p.Schedule.IsEmpty() {
		return nil, ErrNothingToExport
	}

	var buf bytes.Buffer
	cal := caldav.NewCalendar(s.clock(), s.PersonEvents(p)...)
	if err := caldav.EncodeCalendar(&buf, cal); err != nil {
		return nil, fmt.Errorf("encode calendar: %w", err)
	}
	return buf.Bytes(), nil
}

// SyncResult contains export results
type SyncResult struct {
	Persons int
	Put     int
	Deleted int
	Errors  []string
}

// PushPerson uploads the person's events and removes events exported
// earlier that are no longer part of the schedule.
func (s *CalendarService) PushPerson(ctx context.Context, p *domain.Person) (*SyncResult, error) {
	if !s.IsConfigured() {
		return nil, fmt.Errorf("CalDAV not configured")
	}
	if s.calendarPath == "" {
		return nil, fmt.Errorf("calendar path not set")
	}

	remote, err := s.caldavClient.ListEventUIDs(ctx, s.calendarPath)
	if err != nil {
		return nil, fmt.Errorf("list remote events: %w", err)
	}

	result := &SyncResult{Persons: 1}
	s.pushPerson(ctx, p, remote, result)
	return result, nil
}

// SyncAll exports the schedules of every person of the user
func (s *CalendarService) SyncAll(ctx context.Context, userID int64) (*SyncResult, error) {
	if !s.IsConfigured() {
		return nil, fmt.Errorf("CalDAV not configured")
	}
	if s.calendarPath == "" {
		return nil, fmt.Errorf("calendar path not set")
	}

	persons, err := s.storage.ListPersonsByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	remote, err := s.caldavClient.ListEventUIDs(ctx, s.calendarPath)
	if err != nil {
		return nil, fmt.Errorf("list remote events: %w", err)
	}

	result := &SyncResult{}
	for _, p := range persons {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Persons++
		s.pushPerson(ctx, p, remote, result)
	}

	orphaned, err := s.orphanedUIDs(remote)
	if err != nil {
		return result, fmt.Errorf("find deleted persons: %w", err)
	}
	for _, uid := range orphaned {
		if err := s.caldavClient.DeleteEvent(ctx, s.calendarPath, uid); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("delete %s: %v", uid, err))
			continue
		}
		result.Deleted++
	}
	return result, nil
}

// orphanedUIDs returns the exported UIDs whose person no longer exists.
// Persons of other users are kept, since they share the calendar.
func (s *CalendarService) orphanedUIDs(remote []string) ([]string, error) {
	exists := make(map[int64]bool)
	var orphaned []string
	for _, uid := range remote {
		id, ok := caldav.PersonIDFromUID(uid)
		if !ok {
			continue
		}
		found, seen := exists[id]
		if !seen {
			p, err := s.storage.GetPerson(id)
			if err != nil {
				return nil, err
			}
			found = p != nil
			exists[id] = found
		}
		if !found {
			orphaned = append(orphaned, uid)
		}
	}
	return orphaned, nil
}

func (s *CalendarService) pushPerson(ctx context.Context, p *domain.Person, remote []string, result *SyncResult) {
	now := s.clock()
	current := make(map[string]bool)

	for _, ev := range s.PersonEvents(p) {
		current[ev.UID] = true
		if err := s.caldavClient.PutEvent(ctx, s.calendarPath, &ev, now); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("put %s: %v", ev.UID, err))
			continue
		}
		result.Put++
	}

	prefix := caldav.PersonUIDPrefix(p.ID)
	for _, uid := range remote {
		if !strings.HasPrefix(uid, prefix) || current[uid] {
			continue
		}
		if err := s.caldavClient.DeleteEvent(ctx, s.calendarPath, uid); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("delete %s: %v", uid, err))
			continue
		}
		result.Deleted++
	}

	if err := s.storage.MarkPersonExported(p.ID, now); err != nil {
		log.Printf("Failed to mark person %d exported: %v", p.ID, err)
	}
}
