package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func personWith(events ...Event) *Person {
	return &Person{Name: "Alex Yeoh", Schedule: NewSchedule(events...)}
}

func TestIsPersonFree_EmptyScheduleIsBusy(t *testing.T) {
	p := &Person{Name: "Bernice Yu", Schedule: EmptySchedule}

	for _, d := range []string{"2022-12-28", "2023-06-01", "1999-01-01"} {
		for _, at := range []TimeOfDay{0, 9 * 60, 23*60 + 59} {
			q := FreeQuery{Date: date(d), Time: at}
			assert.False(t, IsPersonFree(p, q), q.String())
		}
	}
	assert.False(t, IsPersonFree(nil, FreeQuery{Date: date("2022-12-28")}))
}

func TestIsPersonFree_Overlap(t *testing.T) {
	p := personWith(mustEvent(t, "CS2103T Tutorial", "2022-12-28", "10:00", "3"))

	assert.False(t, IsPersonFree(p, FreeQuery{Date: date("2022-12-28"), Time: 12 * 60}))
	assert.True(t, IsPersonFree(p, FreeQuery{Date: date("2022-12-28"), Time: 13*60 + 30}))
	assert.False(t, IsPersonFree(p, FreeQuery{Date: date("2023-01-04"), Time: 10 * 60}), "recurs weekly")
	assert.True(t, IsPersonFree(p, FreeQuery{Date: date("2022-12-21"), Time: 10 * 60}), "no occurrence before the first date")
	assert.True(t, IsPersonFree(p, FreeQuery{Date: date("2022-12-29"), Time: 10 * 60}))
}

func TestIsPersonFree_AnyEventBlocks(t *testing.T) {
	p := personWith(
		mustEvent(t, "Tutorial", "2022-12-28", "10:00", "1"),
		mustEvent(t, "Lunch", "2022-12-28", "12:00", "1"),
	)

	assert.True(t, IsPersonFree(p, FreeQuery{Date: date("2022-12-28"), Time: 11 * 60}))
	assert.False(t, IsPersonFree(p, FreeQuery{Date: date("2022-12-28"), Time: 12*60 + 30}))
}

func TestNewFreeQuery_DefaultsToToday(t *testing.T) {
	now := time.Date(2022, 12, 28, 8, 30, 0, 0, time.UTC)

	q := NewFreeQuery(12*60, nil, now)
	assert.Equal(t, "2022-12-28 12:00", q.String())

	d := date("2023-02-14")
	q = NewFreeQuery(12*60, &d, now)
	assert.Equal(t, "2023-02-14 12:00", q.String())
}

func TestFreePredicate_Filter(t *testing.T) {
	busy := personWith(mustEvent(t, "Tutorial", "2022-12-28", "10:00", "3"))
	free := personWith(mustEvent(t, "Gym", "2022-12-28", "18:00", "1"))
	unknown := &Person{Name: "No data"}

	q := FreeQuery{Date: date("2022-12-28"), Time: 11 * 60}
	persons := []*Person{busy, free, unknown}
	got := Filter(persons, FreePredicate(q))

	assert.Equal(t, []IndexedPerson{{Index: 2, Person: free}}, got)
	resolved, err := ResolveIndex(persons, got[0].Index)
	require.NoError(t, err)
	assert.Same(t, free, resolved)
	assert.Equal(t, 1, busy.Schedule.Len(), "predicate must not mutate")
}
