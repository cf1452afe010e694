package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tazhate/contactbook/internal/domain"
)

func TestTokenize(t *testing.T) {
	m := Tokenize("1 ed/CS2103T Tutorial d/2022-12-28 t/10:00 du/3", PrefixDescription, PrefixDate, PrefixTime, PrefixDuration)

	assert.Equal(t, "1", m.Preamble)
	desc, ok := m.Value(PrefixDescription)
	require.True(t, ok)
	assert.Equal(t, "CS2103T Tutorial", desc)
	date, _ := m.Value(PrefixDate)
	assert.Equal(t, "2022-12-28", date)
	at, _ := m.Value(PrefixTime)
	assert.Equal(t, "10:00", at)
	dur, _ := m.Value(PrefixDuration)
	assert.Equal(t, "3", dur)
}

func TestTokenize_LastValueWins(t *testing.T) {
	m := Tokenize("t/10:00 t/11:00", PrefixTime)
	v, ok := m.Value(PrefixTime)
	require.True(t, ok)
	assert.Equal(t, "11:00", v)
	assert.Equal(t, []string{"10:00", "11:00"}, m.AllValues(PrefixTime))

	_, ok = m.Value(PrefixDate)
	assert.False(t, ok)
}

func TestScheduleService_ParseAddEventArgs(t *testing.T) {
	svc := NewScheduleService(time.UTC)

	index, e, err := svc.ParseAddEventArgs("2 ed/Gym d/2022-12-29 t/18:30 du/1.5")
	require.NoError(t, err)
	assert.Equal(t, 2, index)
	assert.Equal(t, "Gym on 2022-12-29 at 18:30 for 1.5h", e.String())

	tests := map[string]string{
		"missing index":      "ed/Gym d/2022-12-29 t/18:30 du/1",
		"bad index":          "x ed/Gym d/2022-12-29 t/18:30 du/1",
		"missing duration":   "1 ed/Gym d/2022-12-29 t/18:30",
		"bad time":           "1 ed/Gym d/2022-12-29 t/25:00 du/1",
		"bad date":           "1 ed/Gym d/29-12-2022 t/18:30 du/1",
		"zero duration":      "1 ed/Gym d/2022-12-29 t/18:30 du/0",
		"symbol description": "1 ed/Gym! d/2022-12-29 t/18:30 du/1",
		"empty":              "",
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := svc.ParseAddEventArgs(args)
			assert.Error(t, err)
		})
	}
}

func TestScheduleService_ParseAddEventArgsIndexZero(t *testing.T) {
	svc := NewScheduleService(time.UTC)
	_, _, err := svc.ParseAddEventArgs("0 ed/Gym d/2022-12-29 t/18:30 du/1")
	assert.ErrorIs(t, err, domain.ErrInvalidIndex)
}

func TestScheduleService_ParseEditArgs(t *testing.T) {
	svc := NewScheduleService(time.UTC)

	index, d, err := svc.ParseEditArgs("2 p/91234567 e/alex@example.com r/colleague tg/friends tg/gym buddies")
	require.NoError(t, err)
	assert.Equal(t, 2, index)
	require.NotNil(t, d.Phone)
	assert.Equal(t, "91234567", *d.Phone)
	require.NotNil(t, d.Email)
	assert.Equal(t, "alex@example.com", *d.Email)
	require.NotNil(t, d.Role)
	assert.Equal(t, domain.RoleColleague, *d.Role)
	require.NotNil(t, d.Tags)
	assert.Equal(t, []string{"friends", "gym buddies"}, *d.Tags)
	assert.Nil(t, d.Name)
	assert.Nil(t, d.Address)
	assert.Nil(t, d.Notes)
	assert.Nil(t, d.Schedule)

	_, d, err = svc.ParseEditArgs("1 n/Alex Yeoh no/likes coffee tg/")
	require.NoError(t, err)
	assert.Equal(t, "Alex Yeoh", *d.Name)
	assert.Equal(t, "likes coffee", *d.Notes)
	assert.Equal(t, []string{}, *d.Tags)

	for _, args := range []string{"", "1", "p/123", "0 p/123", "1 r/boss"} {
		_, _, err := svc.ParseEditArgs(args)
		assert.Error(t, err, args)
	}
}

func TestScheduleService_ParseFreeArgs(t *testing.T) {
	svc := NewScheduleService(time.UTC)

	at, date, err := svc.ParseFreeArgs("t/12:00")
	require.NoError(t, err)
	assert.Equal(t, "12:00", at.String())
	assert.Nil(t, date)

	at, date, err = svc.ParseFreeArgs("t/09:15 d/2022-12-28")
	require.NoError(t, err)
	assert.Equal(t, "09:15", at.String())
	require.NotNil(t, date)
	assert.Equal(t, "2022-12-28", date.Format(domain.DateLayout))

	for _, args := range []string{"", "d/2022-12-28", "1 t/12:00", "t/9:00", "t/12:00 d/tomorrow"} {
		_, _, err := svc.ParseFreeArgs(args)
		assert.Error(t, err, args)
	}
}

func TestScheduleService_ParseScheduleArgs(t *testing.T) {
	svc := NewScheduleService(time.UTC)

	index, days, err := svc.ParseScheduleArgs("3", 7)
	require.NoError(t, err)
	assert.Equal(t, 3, index)
	assert.Equal(t, 7, days)

	_, days, err = svc.ParseScheduleArgs("3 0", 7)
	require.NoError(t, err)
	assert.Equal(t, 0, days)

	for _, args := range []string{"", "a", "1 -1", "1 2 3"} {
		_, _, err := svc.ParseScheduleArgs(args, 7)
		assert.Error(t, err, args)
	}
}

func TestScheduleService_FormatUpcoming(t *testing.T) {
	svc := NewScheduleService(time.UTC)
	now := time.Date(2023, 1, 4, 8, 0, 0, 0, time.UTC)

	lecture, err := domain.ParseEvent("Lecture", "2022-12-28", "10:00", "2")
	require.NoError(t, err)
	p := &domain.Person{Name: "Alex", Schedule: domain.NewSchedule(lecture)}

	out := svc.FormatUpcoming(p, p.Schedule.UpcomingSchedule(now, 7), 7, now)
	assert.Contains(t, out, "<b>🗓 Alex</b> next 7 days")
	assert.Contains(t, out, "Wednesday, 2023-01-04</b> ← today")
	assert.Contains(t, out, "10:00-12:00 Lecture (2h)")

	empty := &domain.Person{Name: "Bernice"}
	assert.Contains(t, svc.FormatUpcoming(empty, domain.EmptySchedule, 0, now), domain.EmptyScheduleMessage)
	assert.Contains(t, svc.FormatUpcoming(p, domain.EmptySchedule, 0, now), "Nothing planned")
}

func TestScheduleService_FormatFree(t *testing.T) {
	svc := NewScheduleService(time.UTC)
	res := &FreeScheduleResult{
		Query:   domain.FreeQuery{Date: time.Date(2022, 12, 28, 0, 0, 0, 0, time.UTC), Time: 12 * 60},
		Persons: []domain.IndexedPerson{{Index: 2, Person: &domain.Person{Name: "Bernice", Role: domain.RoleFriend}}},
		Message: "1 persons listed!",
	}

	out := svc.FormatFree(res)
	assert.Contains(t, out, "Free at 2022-12-28 12:00")
	assert.Contains(t, out, "2. 🤝 Bernice")
	assert.NotContains(t, out, "1. 🤝 Bernice")
	assert.Contains(t, out, "1 persons listed!")
}

func TestScheduleService_FormatSchedule(t *testing.T) {
	svc := NewScheduleService(time.UTC)
	p := &domain.Person{
		Name: "Alex",
		Schedule: domain.NewSchedule(
			mustEvent(t, "Lecture", "2022-12-28", "10:00", "2"),
			mustEvent(t, "Lab", "2022-12-29", "14:00", "1.5"),
		),
	}

	out := svc.FormatSchedule(p)
	assert.Equal(t, "<b>Alex</b>\n"+
		"1. Lecture on 2022-12-28 at 10:00 for 2h\n"+
		"2. Lab on 2022-12-29 at 14:00 for 1.5h\n", out)

	assert.Contains(t, svc.FormatSchedule(&domain.Person{Name: "Bernice"}), domain.EmptyScheduleMessage)
}

func TestScheduleService_FormatTodayDigest(t *testing.T) {
	svc := NewScheduleService(time.UTC)
	assert.Empty(t, svc.FormatTodayDigest(nil))

	lab := mustEvent(t, "Lab", "2022-12-29", "14:00", "1.5")
	out := svc.FormatTodayDigest([]TodayAgenda{{
		Person:   &domain.Person{Name: "Alex", Role: domain.RoleColleague},
		Schedule: domain.NewSchedule(lab),
	}})
	assert.Contains(t, out, "💼 <b>Alex</b>")
	assert.Contains(t, out, "  14:00-15:30 Lab (1.5h)")
}
