package domain

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"

	daysPerWeek    = 7
	minutesPerDay  = 24 * 60
	minutesPerWeek = daysPerWeek * minutesPerDay
)

// ErrValidation is wrapped by every *ValidationError.
var ErrValidation = errors.New("validation failed")

// EventConstraints is shown to users when an event is rejected
const EventConstraints = "Events must have alphanumeric descriptions, dates in YYYY-MM-DD, " +
	"times in HH:MM and a duration in hours greater than zero"

var (
	descriptionRe = regexp.MustCompile(`^[\p{L}\p{N}][\p{L}\p{N} ]*$`)
	timeRe        = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
)

// ValidationError reports a malformed event field
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// IsEventField reports whether the error concerns one of the event fields
func (e *ValidationError) IsEventField() bool {
	switch e.Field {
	case "description", "date", "time", "duration":
		return true
	}
	return false
}

// TimeOfDay is a wall-clock time in minutes since midnight
type TimeOfDay int

// ParseTimeOfDay parses a strict 24h "HH:MM" string
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if !timeRe.MatchString(s) {
		return 0, &ValidationError{Field: "time", Value: s, Reason: "expected HH:MM"}
	}
	h, _ := strconv.Atoi(s[:2])
	m, _ := strconv.Atoi(s[3:])
	return TimeOfDay(h*60 + m), nil
}

// TimeOfDayOf returns the wall-clock time of t truncated to the minute
func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

func (t TimeOfDay) Valid() bool {
	return t >= 0 && t < minutesPerDay
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// ParseDate parses a strict "YYYY-MM-DD" string
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, &ValidationError{Field: "date", Value: s, Reason: "expected YYYY-MM-DD"}
	}
	return d, nil
}

// DateOf returns the civil date of t (in t's location) as midnight UTC
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// daysBetween returns the number of whole days from a to b. Both must be
// results of DateOf.
func daysBetween(a, b time.Time) int {
	return int((b.Unix() - a.Unix()) / 86400)
}

// Event is a calendar entry that repeats every week from its first date.
// Events are values: projecting one forward produces a new Event.
type Event struct {
	description   string
	date          time.Time
	time          TimeOfDay
	durationHours float64
}

// NewEvent validates every field and builds an Event
func NewEvent(description string, date time.Time, at TimeOfDay, durationHours float64) (Event, error) {
	e := Event{
		description:   description,
		date:          DateOf(date),
		time:          at,
		durationHours: durationHours,
	}
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}

// ParseEvent builds an Event from its textual fields
func ParseEvent(description, date, at, duration string) (Event, error) {
	description = strings.TrimSpace(description)
	if err := validateDescription(description); err != nil {
		return Event{}, err
	}
	d, err := ParseDate(strings.TrimSpace(date))
	if err != nil {
		return Event{}, err
	}
	t, err := ParseTimeOfDay(strings.TrimSpace(at))
	if err != nil {
		return Event{}, err
	}
	hours, err := ParseDurationHours(duration)
	if err != nil {
		return Event{}, err
	}
	return NewEvent(description, d, t, hours)
}

// ParseDurationHours parses a positive number of hours, e.g. "3" or "1.5"
func ParseDurationHours(s string) (float64, error) {
	s = strings.TrimSpace(s)
	hours, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &ValidationError{Field: "duration", Value: s, Reason: "expected a number of hours"}
	}
	if err := validateDuration(hours); err != nil {
		return 0, err
	}
	return hours, nil
}

func validateDescription(s string) error {
	if !descriptionRe.MatchString(s) {
		return &ValidationError{Field: "description", Value: s, Reason: "must be non-empty letters, digits and spaces"}
	}
	return nil
}

func validateDuration(hours float64) error {
	if math.IsNaN(hours) || math.IsInf(hours, 0) || hours <= 0 {
		return &ValidationError{
			Field:  "duration",
			Value:  strconv.FormatFloat(hours, 'f', -1, 64),
			Reason: "must be greater than zero",
		}
	}
	if hours*60 < 1 {
		return &ValidationError{
			Field:  "duration",
			Value:  strconv.FormatFloat(hours, 'f', -1, 64),
			Reason: "must be at least one minute",
		}
	}
	return nil
}

// Validate applies every field rule
func (e Event) Validate() error {
	if err := validateDescription(e.description); err != nil {
		return err
	}
	if e.date.IsZero() || !e.date.Equal(DateOf(e.date)) {
		return &ValidationError{Field: "date", Value: e.date.String(), Reason: "expected a calendar date"}
	}
	if !e.time.Valid() {
		return &ValidationError{Field: "time", Value: strconv.Itoa(int(e.time)), Reason: "out of range"}
	}
	return validateDuration(e.durationHours)
}

// IsValidEvent reports whether e passes every field rule
func IsValidEvent(e Event) bool {
	return e.Validate() == nil
}

func (e Event) Description() string {
	return e.description
}

// Date returns the stored (first or projected) occurrence date
func (e Event) Date() time.Time {
	return e.date
}

func (e Event) Time() TimeOfDay {
	return e.time
}

func (e Event) DurationHours() float64 {
	return e.durationHours
}

// Duration returns the event length rounded to the minute
func (e Event) Duration() time.Duration {
	return time.Duration(math.Round(e.durationHours*60)) * time.Minute
}

// Start returns the first occurrence as an instant in loc
func (e Event) Start(loc *time.Location) time.Time {
	return time.Date(e.date.Year(), e.date.Month(), e.date.Day(), int(e.time)/60, int(e.time)%60, 0, 0, loc)
}

// End returns the end of the first occurrence in loc
func (e Event) End(loc *time.Location) time.Time {
	return e.Start(loc).Add(e.Duration())
}

// WillDateCollide reports whether the weekly recurrence lands on date
func (e Event) WillDateCollide(date time.Time) bool {
	diff := daysBetween(e.date, DateOf(date))
	return diff >= 0 && diff%daysPerWeek == 0
}

// NextOccurrence returns a copy of e moved to the earliest recurrence on
// or after today. Events whose first date is still ahead are unchanged.
func (e Event) NextOccurrence(today time.Time) Event {
	diff := daysBetween(e.date, DateOf(today))
	if diff <= 0 {
		return e
	}
	weeks := (diff + daysPerWeek - 1) / daysPerWeek
	next := e
	next.date = e.date.AddDate(0, 0, weeks*daysPerWeek)
	return next
}

// OccupiedAt reports whether some occurrence of e covers the wall-clock
// instant (date, at). Occurrences are half-open: [start, start+duration).
func (e Event) OccupiedAt(date time.Time, at TimeOfDay) bool {
	// minutes from the first occurrence's start to the query instant
	offset := daysBetween(e.date, DateOf(date))*minutesPerDay + int(at) - int(e.time)
	if offset < 0 {
		return false
	}
	length := int(e.Duration() / time.Minute)
	if length >= minutesPerWeek {
		return true
	}
	return offset%minutesPerWeek < length
}

// Equal reports whether all four fields match
func (e Event) Equal(o Event) bool {
	return e.description == o.description &&
		e.date.Equal(o.date) &&
		e.time == o.time &&
		e.durationHours == o.durationHours
}

// CompareEvents orders events by date, time of day, description and
// finally duration.
func CompareEvents(a, b Event) int {
	if c := a.date.Compare(b.date); c != 0 {
		return c
	}
	if c := cmp.Compare(a.time, b.time); c != 0 {
		return c
	}
	if c := strings.Compare(a.description, b.description); c != 0 {
		return c
	}
	return cmp.Compare(a.durationHours, b.durationHours)
}

// FormatDuration renders hours as "3h" or "1.5h"
func FormatDuration(hours float64) string {
	return strconv.FormatFloat(hours, 'f', -1, 64) + "h"
}

func (e Event) endTimeOfDay() TimeOfDay {
	return TimeOfDay((int(e.time) + int(e.Duration()/time.Minute)) % minutesPerDay)
}

// DailyScheduleFormat renders the event as one line of a day's agenda
func (e Event) DailyScheduleFormat() string {
	return fmt.Sprintf("%s-%s %s (%s)", e.time, e.endTimeOfDay(), e.description, FormatDuration(e.durationHours))
}

func (e Event) String() string {
	return fmt.Sprintf("%s on %s at %s for %s", e.description, e.date.Format(DateLayout), e.time, FormatDuration(e.durationHours))
}
