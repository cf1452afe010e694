package domain

import "time"

// FreeQuery is the instant a free/busy check is made for
type FreeQuery struct {
	Date time.Time
	Time TimeOfDay
}

// NewFreeQuery builds a query at the given time. A nil date means the
// civil date of now.
func NewFreeQuery(at TimeOfDay, date *time.Time, now time.Time) FreeQuery {
	d := DateOf(now)
	if date != nil {
		d = DateOf(*date)
	}
	return FreeQuery{Date: d, Time: at}
}

func (q FreeQuery) String() string {
	return q.Date.Format(DateLayout) + " " + q.Time.String()
}

// IsPersonFree reports whether p has no event covering the query instant.
// A person without recorded events is treated as busy: absence of data is
// not evidence of availability.
func IsPersonFree(p *Person, q FreeQuery) bool {
	if p == nil || p.Schedule.IsEmpty() {
		return false
	}
	for _, e := range p.Schedule.events {
		if e.OccupiedAt(q.Date, q.Time) {
			return false
		}
	}
	return true
}

// PersonPredicate filters a list of persons
type PersonPredicate func(*Person) bool

// FreePredicate returns a stateless filter accepting persons free at q
func FreePredicate(q FreeQuery) PersonPredicate {
	return func(p *Person) bool {
		return IsPersonFree(p, q)
	}
}

// IndexedPerson is a person together with its 1-based position in the
// list it was selected from.
type IndexedPerson struct {
	Index  int
	Person *Person
}

// Filter keeps the persons accepted by pred, preserving order. Each result
// keeps its index in persons, so it still resolves with ResolveIndex.
func Filter(persons []*Person, pred PersonPredicate) []IndexedPerson {
	var out []IndexedPerson
	for i, p := range persons {
		if pred(p) {
			out = append(out, IndexedPerson{Index: i + 1, Person: p})
		}
	}
	return out
}
