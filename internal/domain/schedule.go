package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// EmptyScheduleMessage is shown for a contact without events
const EmptyScheduleMessage = "No schedule recorded yet."

// Schedule is the ordered list of weekly events owned by one contact.
// Insertion order is kept and duplicates are allowed. A Schedule is a
// value: Add returns a new Schedule and never touches the receiver.
type Schedule struct {
	events []Event
}

// EmptySchedule holds no events
var EmptySchedule = Schedule{}

// NewSchedule copies events into a new Schedule
func NewSchedule(events ...Event) Schedule {
	if len(events) == 0 {
		return EmptySchedule
	}
	return Schedule{events: slices.Clone(events)}
}

// Events returns a copy of the stored events in insertion order
func (s Schedule) Events() []Event {
	return slices.Clone(s.events)
}

// At returns the event at zero-based index i
func (s Schedule) At(i int) (Event, bool) {
	if i < 0 || i >= len(s.events) {
		return Event{}, false
	}
	return s.events[i], true
}

func (s Schedule) Len() int {
	return len(s.events)
}

func (s Schedule) IsEmpty() bool {
	return len(s.events) == 0
}

// Add returns a new Schedule with e appended. No overlap or duplicate
// checks are made.
func (s Schedule) Add(e Event) Schedule {
	events := make([]Event, len(s.events), len(s.events)+1)
	copy(events, s.events)
	return Schedule{events: append(events, e)}
}

// UpcomingSchedule projects every event to its next occurrence and keeps
// those falling within [today, today+daysForward], where today is the
// civil date of now. With daysForward == 0 only events still ahead of now
// are kept. The result is sorted with CompareEvents.
func (s Schedule) UpcomingSchedule(now time.Time, daysForward int) Schedule {
	today := DateOf(now)
	last := today.AddDate(0, 0, daysForward)
	current := TimeOfDayOf(now)

	var upcoming []Event
	for _, e := range s.events {
		next := e.NextOccurrence(today)
		if next.date.After(last) {
			continue
		}
		if daysForward == 0 && next.time <= current {
			continue
		}
		upcoming = append(upcoming, next)
	}
	slices.SortStableFunc(upcoming, CompareEvents)
	return Schedule{events: upcoming}
}

// IsValidSchedule reports whether every event passes IsValidEvent
func IsValidSchedule(s Schedule) bool {
	for _, e := range s.events {
		if !IsValidEvent(e) {
			return false
		}
	}
	return true
}

// DailyScheduleFormat renders a 1-based numbered agenda, one line per event
func (s Schedule) DailyScheduleFormat() string {
	var sb strings.Builder
	for i, e := range s.events {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, e.DailyScheduleFormat()))
	}
	return sb.String()
}

func (s Schedule) String() string {
	var sb strings.Builder
	for i, e := range s.events {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, e))
	}
	return sb.String()
}

// Equal compares the two event sequences in order
func (s Schedule) Equal(o Schedule) bool {
	return slices.EqualFunc(s.events, o.events, Event.Equal)
}

// ByDate groups events by their stored date, keeping the schedule order
// inside each group.
func (s Schedule) ByDate() (dates []time.Time, groups map[time.Time]Schedule) {
	groups = make(map[time.Time]Schedule)
	for _, e := range s.events {
		g, ok := groups[e.date]
		if !ok {
			dates = append(dates, e.date)
		}
		groups[e.date] = g.Add(e)
	}
	return dates, groups
}

// WeekdayName returns the English name of the weekday
func WeekdayName(d time.Weekday) string {
	return d.String()
}

// WeekdayEmoji returns emoji for the weekday
func WeekdayEmoji(d time.Weekday) string {
	emojis := []string{"🌅", "📅", "📅", "📅", "📅", "🎉", "🌴"}
	if d >= 0 && int(d) < len(emojis) {
		return emojis[d]
	}
	return "📅"
}
