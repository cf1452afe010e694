package caldav

import (
	"time"

	"github.com/teambition/rrule-go"
)

// Calendar represents a remote calendar collection
type Calendar struct {
	ID          string // Calendar path
	DisplayName string
	URL         string
}

// Event represents a calendar event
type Event struct {
	UID         string // Unique ID in CalDAV
	Summary     string // Title
	Description string
	StartTime   time.Time
	EndTime     time.Time
	RRule       *rrule.ROption // nil for single events
}
