// Package calendar renders the session list as an iCalendar feed.
package calendar

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"hacktown/internal/models"
)

// ProductID identifies the generator in the PRODID property.
const ProductID = "-//hacktown//schedule scraper//EN"

// Build returns the calendar for entries. Entries without a start time are
// skipped, a missing end collapses to the start, and repeated ids keep the
// first occurrence.
func Build(name string, entries []models.CalendarEntry, stamp time.Time) []byte {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(ProductID)

	if name != "" {
		cal.SetXWRCalName(name)
	}

	seen := make(map[string]bool, len(entries))

	for _, e := range entries {
		if e.Start.IsZero() || e.ID == "" {
			continue
		}

		uid := UID(e.ID)
		if seen[uid] {
			continue
		}

		seen[uid] = true

		end := e.End
		if end.IsZero() || end.Before(e.Start) {
			end = e.Start
		}

		ev := cal.AddEvent(uid)
		ev.SetDtStampTime(stamp)
		ev.SetStartAt(e.Start)
		ev.SetEndAt(end)
		ev.SetSummary(e.Title)

		if e.Location != "" {
			ev.SetLocation(e.Location)
		}

		if len(e.Speakers) > 0 {
			ev.SetDescription("Speakers: " + strings.Join(e.Speakers, ", "))
		}
	}

	return []byte(cal.Serialize())
}

// UID returns the calendar UID for a session id.
func UID(id string) string {
	return fmt.Sprintf("%s@hacktown", id)
}
