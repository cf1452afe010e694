package caldav

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"
	"github.com/teambition/rrule-go"
)

const (
	// Apple iCloud CalDAV endpoint
	DefaultiCloudURL = "https://caldav.icloud.com"

	ProductID = "-//ContactBook//CalDAV//EN"
	uidDomain = "@contactbook"
)

// uidNamespace seeds deterministic event UIDs
var uidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/tazhate/contactbook"))

// Client is a CalDAV client
type Client struct {
	baseURL    string
	username   string
	password   string
	calendarID string // Optional: specific calendar to use

	mu     sync.Mutex
	client *caldav.Client
}

// NewClient creates a new CalDAV client
func NewClient(baseURL, username, password string) *Client {
	if baseURL == "" {
		baseURL = DefaultiCloudURL
	}
	return &Client{
		baseURL:  baseURL,
		username: username,
		password: password,
	}
}

// IsConfigured returns true if the client has credentials
func (c *Client) IsConfigured() bool {
	return c.username != "" && c.password != ""
}

// SetCalendarID sets the calendar to use
func (c *Client) SetCalendarID(id string) {
	c.calendarID = id
}

// connect establishes connection to CalDAV server
func (c *Client) connect() (*caldav.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	httpClient := &http.Client{
		Transport: &basicAuthTransport{
			username: c.username,
			password: c.password,
		},
		Timeout: 30 * time.Second,
	}

	client, err := caldav.NewClient(httpClient, c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to CalDAV: %w", err)
	}

	c.client = client
	return client, nil
}

// basicAuthTransport adds Basic Auth to HTTP requests
type basicAuthTransport struct {
	username string
	password string
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.username, t.password)
	return http.DefaultTransport.RoundTrip(req)
}

func (c *Client) resolvePath(calendarPath string) (string, error) {
	if calendarPath == "" {
		calendarPath = c.calendarID
	}
	if calendarPath == "" {
		return "", fmt.Errorf("calendar path not specified")
	}
	if !strings.HasSuffix(calendarPath, "/") {
		calendarPath += "/"
	}
	return calendarPath, nil
}

// DiscoverCalendars returns all calendars for the user
func (c *Client) DiscoverCalendars(ctx context.Context) ([]Calendar, error) {
	client, err := c.connect()
	if err != nil {
		return nil, err
	}

	principal, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("find principal: %w", err)
	}

	homeSet, err := client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("find home set: %w", err)
	}

	cals, err := client.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, fmt.Errorf("find calendars: %w", err)
	}

	var result []Calendar
	for _, cal := range cals {
		result = append(result, Calendar{
			ID:          cal.Path,
			DisplayName: cal.Name,
			URL:         cal.Path,
		})
	}
	return result, nil
}

// ListEventUIDs returns the UIDs of all events in the calendar
func (c *Client) ListEventUIDs(ctx context.Context, calendarPath string) ([]string, error) {
	client, err := c.connect()
	if err != nil {
		return nil, err
	}
	calendarPath, err = c.resolvePath(calendarPath)
	if err != nil {
		return nil, err
	}

	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name: ical.CompCalendar,
			Comps: []caldav.CalendarCompRequest{{
				Name:  ical.CompEvent,
				Props: []string{ical.PropUID},
			}},
		},
		CompFilter: caldav.CompFilter{
			Name:  ical.CompCalendar,
			Comps: []caldav.CompFilter{{Name: ical.CompEvent}},
		},
	}

	objects, err := client.QueryCalendar(ctx, calendarPath, query)
	if err != nil {
		return nil, fmt.Errorf("query calendar: %w", err)
	}

	var uids []string
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		for _, ev := range obj.Data.Events() {
			if prop := ev.Props.Get(ical.PropUID); prop != nil {
				uids = append(uids, prop.Value)
			}
		}
	}
	return uids, nil
}

// PutEvent creates or replaces an event in the calendar
func (c *Client) PutEvent(ctx context.Context, calendarPath string, event *Event, stamp time.Time) error {
	client, err := c.connect()
	if err != nil {
		return err
	}
	calendarPath, err = c.resolvePath(calendarPath)
	if err != nil {
		return err
	}

	cal := NewCalendar(stamp, *event)
	if _, err := client.PutCalendarObject(ctx, calendarPath+event.UID+".ics", cal); err != nil {
		return fmt.Errorf("put event %s: %w", event.UID, err)
	}
	return nil
}

// DeleteEvent deletes an event by UID
func (c *Client) DeleteEvent(ctx context.Context, calendarPath, eventUID string) error {
	client, err := c.connect()
	if err != nil {
		return err
	}
	calendarPath, err = c.resolvePath(calendarPath)
	if err != nil {
		return err
	}

	if err := client.RemoveAll(ctx, calendarPath+eventUID+".ics"); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

// EventUID returns a stable UID for the event at position within the
// schedule of a person. The prefix lets stale events of one person be
// found again.
func EventUID(personID int64, position int, key string) string {
	id := uuid.NewSHA1(uidNamespace, []byte(fmt.Sprintf("%d/%d/%s", personID, position, key)))
	return PersonUIDPrefix(personID) + id.String() + uidDomain
}

// PersonUIDPrefix is shared by all UIDs exported for a person
func PersonUIDPrefix(personID int64) string {
	return fmt.Sprintf("person-%d-", personID)
}

// PersonIDFromUID returns the person an exported UID belongs to. UIDs not
// produced by EventUID report false.
func PersonIDFromUID(uid string) (int64, bool) {
	rest, ok := strings.CutPrefix(uid, "person-")
	if !ok || !strings.HasSuffix(rest, uidDomain) {
		return 0, false
	}
	idPart, _, ok := strings.Cut(rest, "-")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// WeeklyRule returns a rule repeating every week on the weekday of start
func WeeklyRule(start time.Time) *rrule.ROption {
	return &rrule.ROption{
		Freq:      rrule.WEEKLY,
		Byweekday: []rrule.Weekday{rruleWeekday(start.Weekday())},
	}
}

func rruleWeekday(wd time.Weekday) rrule.Weekday {
	days := []rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}
	return days[wd]
}

// NewCalendar builds an iCalendar object holding the events
func NewCalendar(stamp time.Time, events ...Event) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, ProductID)

	for _, event := range events {
		cal.Children = append(cal.Children, eventToICS(event, stamp).Component)
	}
	return cal
}

// eventToICS converts an Event to a VEVENT
func eventToICS(event Event, stamp time.Time) *ical.Event {
	vevent := ical.NewEvent()
	vevent.Props.SetText(ical.PropUID, event.UID)
	vevent.Props.SetText(ical.PropSummary, event.Summary)
	if event.Description != "" {
		vevent.Props.SetText(ical.PropDescription, event.Description)
	}

	vevent.Props.SetDateTime(ical.PropDateTimeStart, event.StartTime)
	if !event.EndTime.IsZero() {
		vevent.Props.SetDateTime(ical.PropDateTimeEnd, event.EndTime)
	}
	if event.RRule != nil {
		vevent.Props.SetRecurrenceRule(event.RRule)
	}

	vevent.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
	return vevent
}

// EncodeCalendar writes cal in iCalendar format
func EncodeCalendar(w io.Writer, cal *ical.Calendar) error {
	return ical.NewEncoder(w).Encode(cal)
}
