// Package models defines data structures shared by the crawler, normalizer and output stages.
package models

import (
	"encoding/json"
	"time"
)

// Session represents one scheduled talk or activity as returned by the schedules API.
type Session struct {
	Start    time.Time
	End      time.Time
	Raw      map[string]json.RawMessage
	ID       string
	Title    string
	Location string
	Speakers []string
}

// DailySchedule holds the sessions of one calendar date in API order.
type DailySchedule struct {
	Date     string
	Sessions []Session
}

// Event is a session record as written to a schedule document: the original
// API fields plus the location fields added during normalization.
type Event map[string]json.RawMessage
