package service

import (
	"errors"
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tazhate/contactbook/internal/domain"
)

const (
	PrefixDescription = "ed/"
	PrefixDate        = "d/"
	PrefixTime        = "t/"
	PrefixDuration    = "du/"

	PrefixName    = "n/"
	PrefixPhone   = "p/"
	PrefixEmail   = "e/"
	PrefixAddress = "a/"
	PrefixRole    = "r/"
	PrefixNotes   = "no/"
	PrefixTag     = "tg/"

	UsageAddEvent = "addevent INDEX ed/DESCRIPTION d/YYYY-MM-DD t/HH:MM du/HOURS\n" +
		"Example: addevent 1 ed/CS2103T Tutorial d/2022-12-28 t/10:00 du/3"
	UsageFree = "free t/HH:MM [d/YYYY-MM-DD]\nExample: free t/12:00 d/2022-12-28"
	UsageEdit = "edit INDEX [n/NAME] [p/PHONE] [e/EMAIL] [a/ADDRESS] [r/ROLE] [no/NOTES] [tg/TAG]...\n" +
		"Example: edit 1 p/91234567 e/alex@example.com tg/friends tg/colleagues\n" +
		"A lone tg/ clears the tags"
)

// ScheduleService parses schedule commands and renders schedules for chat
type ScheduleService struct {
	timezone *time.Location
}

func NewScheduleService(tz *time.Location) *ScheduleService {
	if tz == nil {
		tz = time.UTC
	}
	return &ScheduleService{timezone: tz}
}

// ArgumentMultimap holds the values of prefixed arguments and the text
// before the first prefix.
type ArgumentMultimap struct {
	Preamble string
	values   map[string][]string
}

// Value returns the last value given for prefix
func (m ArgumentMultimap) Value(prefix string) (string, bool) {
	vs := m.values[prefix]
	if len(vs) == 0 {
		return "", false
	}
	return vs[len(vs)-1], true
}

// AllValues returns every value given for prefix, in order
func (m ArgumentMultimap) AllValues(prefix string) []string {
	return m.values[prefix]
}

type prefixPosition struct {
	prefix string
	start  int
}

// Tokenize splits args on the given prefixes. A prefix only counts at the
// start of args or right after whitespace, so "ed/" never matches as "d/".
func Tokenize(args string, prefixes ...string) ArgumentMultimap {
	args = " " + args

	var positions []prefixPosition
	for _, p := range prefixes {
		from := 0
		for {
			i := strings.Index(args[from:], " "+p)
			if i < 0 {
				break
			}
			start := from + i + 1
			positions = append(positions, prefixPosition{prefix: p, start: start})
			from = start
		}
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].start < positions[j].start })

	m := ArgumentMultimap{values: make(map[string][]string)}
	end := len(args)
	if len(positions) > 0 {
		end = positions[0].start
	}
	m.Preamble = strings.TrimSpace(args[:end])

	for i, pos := range positions {
		valueEnd := len(args)
		if i+1 < len(positions) {
			valueEnd = positions[i+1].start
		}
		value := strings.TrimSpace(args[pos.start+len(pos.prefix) : valueEnd])
		m.values[pos.prefix] = append(m.values[pos.prefix], value)
	}
	return m
}

// ParseIndex parses a 1-based displayed index
func ParseIndex(s string) (int, error) {
	index, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || index < 1 {
		return 0, domain.ErrInvalidIndex
	}
	return index, nil
}

// ParseAddEventArgs parses "INDEX ed/DESC d/YYYY-MM-DD t/HH:MM du/HOURS"
func (s *ScheduleService) ParseAddEventArgs(args string) (int, domain.Event, error) {
	m := Tokenize(args, PrefixDescription, PrefixDate, PrefixTime, PrefixDuration)

	if m.Preamble == "" {
		return 0, domain.Event{}, fmt.Errorf("invalid command format\n%s", UsageAddEvent)
	}
	index, err := ParseIndex(m.Preamble)
	if err != nil {
		return 0, domain.Event{}, err
	}

	desc, okDesc := m.Value(PrefixDescription)
	date, okDate := m.Value(PrefixDate)
	at, okTime := m.Value(PrefixTime)
	dur, okDur := m.Value(PrefixDuration)
	if !okDesc || !okDate || !okTime || !okDur {
		return 0, domain.Event{}, fmt.Errorf("invalid command format\n%s", UsageAddEvent)
	}

	event, err := domain.ParseEvent(desc, date, at, dur)
	if err != nil {
		return 0, domain.Event{}, err
	}
	return index, event, nil
}

// ParseEditArgs parses "INDEX [n/NAME] [p/PHONE] [e/EMAIL] [a/ADDRESS]
// [r/ROLE] [no/NOTES] [tg/TAG]...". Only the given prefixes end up in the
// descriptor.
func (s *ScheduleService) ParseEditArgs(args string) (int, domain.PersonDescriptor, error) {
	m := Tokenize(args, PrefixName, PrefixPhone, PrefixEmail, PrefixAddress, PrefixRole, PrefixNotes, PrefixTag)

	var d domain.PersonDescriptor
	if m.Preamble == "" {
		return 0, d, fmt.Errorf("invalid command format\n%s", UsageEdit)
	}
	index, err := ParseIndex(m.Preamble)
	if err != nil {
		return 0, d, err
	}

	for prefix, field := range map[string]**string{
		PrefixName:    &d.Name,
		PrefixPhone:   &d.Phone,
		PrefixEmail:   &d.Email,
		PrefixAddress: &d.Address,
		PrefixNotes:   &d.Notes,
	} {
		if v, ok := m.Value(prefix); ok {
			*field = &v
		}
	}

	if v, ok := m.Value(PrefixRole); ok {
		role, valid := domain.ParsePersonRole(v)
		if !valid {
			return 0, d, &domain.ValidationError{Field: "role", Value: v, Reason: "expected family, friend, colleague or contact"}
		}
		d.Role = &role
	}

	if values := m.AllValues(PrefixTag); len(values) > 0 {
		tags := []string{}
		for _, tag := range values {
			if tag != "" {
				tags = append(tags, tag)
			}
		}
		d.Tags = &tags
	}

	if !d.IsAnyFieldEdited() {
		return 0, d, fmt.Errorf("%s\n%s", MessageNothingEdited, UsageEdit)
	}
	return index, d, nil
}

// ParseFreeArgs parses "t/HH:MM [d/YYYY-MM-DD]". The date is nil when
// omitted.
func (s *ScheduleService) ParseFreeArgs(args string) (domain.TimeOfDay, *time.Time, error) {
	m := Tokenize(args, PrefixTime, PrefixDate)

	at, ok := m.Value(PrefixTime)
	if m.Preamble != "" || !ok {
		return 0, nil, fmt.Errorf("invalid command format\n%s", UsageFree)
	}
	t, err := domain.ParseTimeOfDay(at)
	if err != nil {
		return 0, nil, err
	}

	raw, ok := m.Value(PrefixDate)
	if !ok {
		return t, nil, nil
	}
	date, err := domain.ParseDate(raw)
	if err != nil {
		return 0, nil, err
	}
	return t, &date, nil
}

// ParseScheduleArgs parses "INDEX [DAYS]" with defaultDays as fallback
func (s *ScheduleService) ParseScheduleArgs(args string, defaultDays int) (int, int, error) {
	parts := strings.Fields(args)
	if len(parts) == 0 || len(parts) > 2 {
		return 0, 0, errors.New("format: schedule INDEX [DAYS]")
	}
	index, err := ParseIndex(parts[0])
	if err != nil {
		return 0, 0, err
	}
	days := defaultDays
	if len(parts) == 2 {
		days, err = strconv.Atoi(parts[1])
		if err != nil || days < 0 {
			return 0, 0, errors.New("number of days must be a non-negative integer")
		}
	}
	return index, days, nil
}

// FormatUpcoming renders a projected schedule grouped by day
func (s *ScheduleService) FormatUpcoming(person *domain.Person, upcoming domain.Schedule, days int, now time.Time) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("<b>🗓 %s</b>", html.EscapeString(person.Name)))
	if days == 0 {
		sb.WriteString(" today\n\n")
	} else {
		sb.WriteString(fmt.Sprintf(" next %d days\n\n", days))
	}

	if upcoming.IsEmpty() {
		if person.Schedule.IsEmpty() {
			sb.WriteString(domain.EmptyScheduleMessage)
		} else {
			sb.WriteString("Nothing planned")
		}
		return sb.String()
	}

	today := domain.DateOf(now.In(s.timezone))
	dates, groups := upcoming.ByDate()
	for _, d := range dates {
		marker := ""
		if d.Equal(today) {
			marker = " ← today"
		}
		sb.WriteString(fmt.Sprintf("<b>%s %s, %s</b>%s\n",
			domain.WeekdayEmoji(d.Weekday()), domain.WeekdayName(d.Weekday()), d.Format(domain.DateLayout), marker))
		for _, e := range groups[d].Events() {
			sb.WriteString("  " + e.DailyScheduleFormat() + "\n")
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatSchedule renders the whole recorded schedule as a numbered list
func (s *ScheduleService) FormatSchedule(person *domain.Person) string {
	if person.Schedule.IsEmpty() {
		return fmt.Sprintf("<b>%s</b>\n%s", html.EscapeString(person.Name), domain.EmptyScheduleMessage)
	}
	return fmt.Sprintf("<b>%s</b>\n%s", html.EscapeString(person.Name), person.Schedule.String())
}

// FormatFree renders the result of a free/busy query
func (s *ScheduleService) FormatFree(result *FreeScheduleResult) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("<b>🟢 Free at %s</b>\n", result.Query))
	for _, ip := range result.Persons {
		sb.WriteString(fmt.Sprintf("%d. %s %s\n", ip.Index, ip.Person.RoleEmoji(), html.EscapeString(ip.Person.Name)))
	}
	sb.WriteString("\n" + result.Message)
	return sb.String()
}

// FormatTodayDigest renders the morning digest
func (s *ScheduleService) FormatTodayDigest(agendas []TodayAgenda) string {
	if len(agendas) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("<b>☀️ Today in your contacts' schedules</b>\n\n")
	for _, a := range agendas {
		sb.WriteString(fmt.Sprintf("%s <b>%s</b>\n", a.Person.RoleEmoji(), html.EscapeString(a.Person.Name)))
		for _, e := range a.Schedule.Events() {
			sb.WriteString("  " + e.DailyScheduleFormat() + "\n")
		}
	}
	return sb.String()
}
