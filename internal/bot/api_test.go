package bot

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tazhate/contactbook/config"
	"github.com/tazhate/contactbook/internal/domain"
	"github.com/tazhate/contactbook/internal/service"
	"github.com/tazhate/contactbook/internal/storage"
)

func newTestBot(t *testing.T) *Bot {
	t.Helper()

	st, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := &config.Config{
		OwnerTelegramID: 100,
		UpcomingDays:    7,
		APIUsername:     "api",
		APIPassword:     "secret",
		Timezone:        time.UTC,
	}

	now := func() time.Time { return time.Date(2022, 12, 28, 8, 0, 0, 0, time.UTC) }
	personSvc := service.NewPersonService(st, time.UTC)
	personSvc.SetClock(now)
	calendarSvc := service.NewCalendarService(st, nil, time.UTC)
	calendarSvc.SetClock(now)

	b := &Bot{
		cfg:             cfg,
		storage:         st,
		personService:   personSvc,
		scheduleService: service.NewScheduleService(time.UTC),
		calendarService: calendarSvc,
		mux:             http.NewServeMux(),
	}
	b.SetupAPI()
	return b
}

func doRequest(t *testing.T, b *Bot, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	req.SetBasicAuth("api", "secret")
	rec := httptest.NewRecorder()
	b.mux.ServeHTTP(rec, req)
	return rec
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data any) apiEnvelope {
	t.Helper()
	var env apiEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	if data != nil && env.Success {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func TestAPI_Health(t *testing.T) {
	b := newTestBot(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	b.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestAPI_RequiresBasicAuth(t *testing.T) {
	b := newTestBot(t)
	req := httptest.NewRequest(http.MethodGet, "/api/people", nil)
	rec := httptest.NewRecorder()
	b.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")
}

func TestAPI_PeopleAndSchedule(t *testing.T) {
	b := newTestBot(t)

	rec := doRequest(t, b, http.MethodPost, "/api/people", `{"name":"Alex Yeoh","role":"friend"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doRequest(t, b, http.MethodPost, "/api/people", `{"name":"Bernice Yu"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var people []PersonResponse
	rec = doRequest(t, b, http.MethodGet, "/api/people", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &people)
	require.Len(t, people, 2)
	assert.Equal(t, 1, people[0].Index)
	assert.Equal(t, "Alex Yeoh", people[0].Name)
	assert.Equal(t, "contact", people[1].Role)

	rec = doRequest(t, b, http.MethodPost, "/api/person/1/events",
		`{"description":"CS2103T Tutorial","date":"2022-12-28","time":"10:00","duration_hours":3}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var added struct {
		Message string `json:"message"`
	}
	decode(t, rec, &added)
	assert.Equal(t, "Added CS2103T Tutorial on 2022-12-28 at 10:00 for 3h to Alex Yeoh's schedule", added.Message)

	var sched ScheduleResponse
	rec = doRequest(t, b, http.MethodGet, "/api/person/1/schedule?days=14", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &sched)
	assert.Equal(t, 14, sched.Days)
	require.Len(t, sched.Events, 1)
	assert.Equal(t, "2022-12-28", sched.Events[0].Date)
	assert.Equal(t, "10:00-13:00 CS2103T Tutorial (3h)", sched.Events[0].Summary)
}

func TestAPI_Errors(t *testing.T) {
	b := newTestBot(t)
	rec := doRequest(t, b, http.MethodPost, "/api/people", `{"name":"Alex"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
	}{
		{"index out of range", http.MethodGet, "/api/person/2/schedule", "", http.StatusNotFound},
		{"index not a number", http.MethodGet, "/api/person/x/schedule", "", http.StatusNotFound},
		{"negative days", http.MethodGet, "/api/person/1/schedule?days=-1", "", http.StatusBadRequest},
		{"bad time", http.MethodPost, "/api/person/1/events", `{"description":"Gym","date":"2022-12-28","time":"7pm","duration_hours":1}`, http.StatusBadRequest},
		{"zero duration", http.MethodPost, "/api/person/1/events", `{"description":"Gym","date":"2022-12-28","time":"19:00","duration_hours":0}`, http.StatusBadRequest},
		{"empty export", http.MethodGet, "/api/person/1/ics", "", http.StatusNotFound},
		{"free without time", http.MethodGet, "/api/free", "", http.StatusBadRequest},
		{"wrong method", http.MethodDelete, "/api/people", "", http.StatusMethodNotAllowed},
		{"missing name", http.MethodPost, "/api/people", `{"name":" "}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, b, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			env := decode(t, rec, nil)
			assert.False(t, env.Success)
			assert.NotEmpty(t, env.Error)
		})
	}
}

func TestAPI_EditPerson(t *testing.T) {
	b := newTestBot(t)
	for _, body := range []string{`{"name":"Alex Yeoh"}`, `{"name":"Bernice Yu"}`} {
		require.Equal(t, http.StatusCreated, doRequest(t, b, http.MethodPost, "/api/people", body).Code)
	}

	rec := doRequest(t, b, http.MethodPatch, "/api/person/1",
		`{"phone":"87438807","email":"alex@example.com","role":"friend","notes":"likes coffee","tags":["friends"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var edited struct {
		Person  PersonResponse `json:"person"`
		Message string         `json:"message"`
	}
	decode(t, rec, &edited)
	assert.Equal(t, "Edited Person: Alex Yeoh", edited.Message)

	var got PersonResponse
	rec = doRequest(t, b, http.MethodGet, "/api/person/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &got)
	assert.Equal(t, 1, got.Index)
	assert.Equal(t, "87438807", got.Phone)
	assert.Equal(t, "alex@example.com", got.Email)
	assert.Equal(t, "friend", got.Role)
	assert.Equal(t, "likes coffee", got.Notes)
	assert.Equal(t, []string{"friends"}, got.Tags)

	tests := []struct {
		name   string
		body   string
		target string
		status int
	}{
		{"duplicate name", `{"name":"bernice yu"}`, "/api/person/1", http.StatusConflict},
		{"blank name", `{"name":" "}`, "/api/person/1", http.StatusBadRequest},
		{"unknown role", `{"role":"boss"}`, "/api/person/1", http.StatusBadRequest},
		{"nothing to edit", `{}`, "/api/person/1", http.StatusBadRequest},
		{"index out of range", `{"phone":"1"}`, "/api/person/3", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, b, http.MethodPatch, tt.target, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	rec = doRequest(t, b, http.MethodDelete, "/api/person/2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var people []PersonResponse
	decode(t, doRequest(t, b, http.MethodGet, "/api/people", ""), &people)
	require.Len(t, people, 1)
	assert.Equal(t, "Alex Yeoh", people[0].Name)
}

func TestAPI_Free(t *testing.T) {
	b := newTestBot(t)
	for _, body := range []string{`{"name":"Alex"}`, `{"name":"Bernice"}`, `{"name":"Charlotte"}`} {
		require.Equal(t, http.StatusCreated, doRequest(t, b, http.MethodPost, "/api/people", body).Code)
	}
	require.Equal(t, http.StatusCreated, doRequest(t, b, http.MethodPost, "/api/person/1/events",
		`{"description":"Tutorial","date":"2022-12-28","time":"10:00","duration_hours":3}`).Code)
	require.Equal(t, http.StatusCreated, doRequest(t, b, http.MethodPost, "/api/person/2/events",
		`{"description":"Gym","date":"2022-12-28","time":"18:00","duration_hours":1}`).Code)

	var free FreeResponse
	rec := doRequest(t, b, http.MethodGet, "/api/free?time=12:00", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &free)

	assert.Equal(t, "2022-12-28", free.Date)
	assert.Equal(t, "12:00", free.Time)
	require.Len(t, free.Persons, 1)
	assert.Equal(t, "Bernice", free.Persons[0].Name)
	assert.Equal(t, 2, free.Persons[0].Index)
	assert.Equal(t, "1 persons listed!", free.Message)

	// the returned index addresses the same contact in the other routes
	var sched ScheduleResponse
	rec = doRequest(t, b, http.MethodGet, fmt.Sprintf("/api/person/%d/schedule", free.Persons[0].Index), "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &sched)
	assert.Equal(t, "Bernice", sched.Person.Name)

	rec = doRequest(t, b, http.MethodGet, "/api/free?time=12:00&date=2022-12-29", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &free)
	require.Len(t, free.Persons, 2)
	assert.Equal(t, []int{1, 2}, []int{free.Persons[0].Index, free.Persons[1].Index})
}

func TestAPI_ICS(t *testing.T) {
	b := newTestBot(t)
	require.Equal(t, http.StatusCreated, doRequest(t, b, http.MethodPost, "/api/people", `{"name":"Alex Yeoh"}`).Code)
	require.Equal(t, http.StatusCreated, doRequest(t, b, http.MethodPost, "/api/person/1/events",
		`{"description":"Tutorial","date":"2022-12-28","time":"10:00","duration_hours":3}`).Code)

	rec := doRequest(t, b, http.MethodGet, "/api/person/1/ics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "alex-yeoh.ics")
	assert.Contains(t, rec.Body.String(), "BEGIN:VCALENDAR")
	assert.Contains(t, rec.Body.String(), "RRULE:FREQ=WEEKLY")
}

func TestAPI_DisabledWithoutCredentials(t *testing.T) {
	b := newTestBot(t)
	b.cfg.APIUsername = ""
	b.mux = http.NewServeMux()
	b.SetupAPI()

	req := httptest.NewRequest(http.MethodGet, "/api/people", nil)
	rec := httptest.NewRecorder()
	b.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestParsePersonArgs(t *testing.T) {
	name, role := parsePersonArgs("Alex Yeoh friend")
	assert.Equal(t, "Alex Yeoh", name)
	assert.Equal(t, "friend", string(role))

	name, role = parsePersonArgs("Alex Yeoh")
	assert.Equal(t, "Alex Yeoh", name)
	assert.Equal(t, "contact", string(role))

	name, role = parsePersonArgs("family")
	assert.Equal(t, "family", name)
	assert.Equal(t, "contact", string(role))
}

func TestErrorText(t *testing.T) {
	_, err := domain.ParseTimeOfDay("7pm")
	assert.Contains(t, errorText(err), domain.EventConstraints)

	err = &domain.ValidationError{Field: "name", Value: "", Reason: "must not be empty"}
	assert.NotContains(t, errorText(err), domain.EventConstraints)

	assert.Equal(t, "❌ "+service.MessageInvalidPersonIndex, errorText(domain.ErrInvalidIndex))
}

func TestICSFileName(t *testing.T) {
	assert.Equal(t, "alex-yeoh.ics", icsFileName("Alex Yeoh"))
	assert.Equal(t, "schedule.ics", icsFileName("Аня"))
}
