package models

import "time"

// Artifacts is everything one run produces.
type Artifacts struct {
	GeneratedAt     time.Time
	Schedules       []ScheduleDocument
	Entries         []CalendarEntry
	LocationIndex   LocationIndex
	FilterLocations FilterLocations
	FilterSpeakers  FilterSpeakers
	Summary         Summary
}

// ScheduleDocument is the per-date output file.
type ScheduleDocument struct {
	Date        string  `json:"date"`
	GeneratedAt string  `json:"generated_at"`
	Events      []Event `json:"events"`
	TotalEvents int     `json:"total_events"`
}

// LocationIndex lists the canonical locations referenced in this run.
type LocationIndex struct {
	GeneratedAt    string            `json:"generated_at"`
	Locations      []IndexedLocation `json:"locations"`
	TotalLocations int               `json:"total_locations"`
}

// IndexedLocation is one canonical location with its display metadata.
type IndexedLocation struct {
	ID             string `json:"id"`
	FilterLocation string `json:"filter_location"`
	NearLocation   string `json:"near_location"`
	GMaps          string `json:"gmaps,omitempty"`
	Sessions       int    `json:"sessions"`
}

// FilterLocations is the location filter list consumed by the frontend.
type FilterLocations struct {
	GeneratedAt    string   `json:"generated_at"`
	Locations      []string `json:"locations"`
	TotalLocations int      `json:"total_locations"`
}

// FilterSpeakers is the speaker filter list consumed by the frontend.
type FilterSpeakers struct {
	GeneratedAt   string   `json:"generated_at"`
	Speakers      []string `json:"speakers"`
	TotalSpeakers int      `json:"total_speakers"`
}

// Summary holds the run statistics.
type Summary struct {
	SessionsPerDate     map[string]int `json:"sessions_per_date"`
	SessionsPerLocation map[string]int `json:"sessions_per_location"`
	UnmappedLocations   map[string]int `json:"unmapped_locations"`
	GeneratedAt         string         `json:"generated_at"`
	DatasetHash         string         `json:"dataset_hash"`
	RequestedDates      []string       `json:"requested_dates"`
	SuccessfulDates     []string       `json:"successful_dates"`
	FailedDates         []string       `json:"failed_dates"`
	FilesCreated        []string       `json:"files_created"`
	TotalSessions       int            `json:"total_sessions"`
	UnmappedTotal       int            `json:"unmapped_total"`
	DateExhaustedCount  int            `json:"date_exhausted_count"`
}

// CalendarEntry is the calendar-facing view of a normalized session.
type CalendarEntry struct {
	Start    time.Time
	End      time.Time
	ID       string
	Title    string
	Location string
	Speakers []string
}
