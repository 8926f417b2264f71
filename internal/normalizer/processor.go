// Package normalizer folds fetched schedules through the location matcher
// into the artifacts consumed by the frontend.
package normalizer

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"hacktown/internal/locations"
	"hacktown/internal/models"
	"hacktown/pkg/metadata"
)

// Input is everything the aggregation needs. Schedules are keyed by date;
// the order in which they were fetched is irrelevant.
type Input struct {
	Schedules      map[string]models.DailySchedule
	RequestedDates []string
	FailedDates    []string
}

// Processor builds run artifacts from fetched schedules.
type Processor struct {
	validator   *Validator
	transformer *Transformer
	now         func() time.Time
	loc         *time.Location
}

// ProcessorOption customizes a Processor.
type ProcessorOption func(*Processor)

// WithClock sets the clock used for generated_at.
func WithClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) { p.now = now }
}

// WithLocation sets the zone generated_at is rendered in.
func WithLocation(loc *time.Location) ProcessorOption {
	return func(p *Processor) { p.loc = loc }
}

// NewProcessor creates a new processor instance.
func NewProcessor(matcher *locations.Matcher, fallback string, opts ...ProcessorOption) *Processor {
	p := &Processor{
		validator:   NewValidator(),
		transformer: NewTransformer(matcher, fallback),
		now:         time.Now,
		loc:         time.UTC,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// hashedSchedule is the timestamp-free form of a schedule document.
type hashedSchedule struct {
	Date        string         `json:"date"`
	Events      []models.Event `json:"events"`
	TotalEvents int            `json:"total_events"`
}

// Aggregate produces the artifacts for one run. Apart from generated_at the
// result depends only on in and the mapping.
func (p *Processor) Aggregate(in Input) (*models.Artifacts, error) {
	if err := p.validator.Validate(in); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	generatedAt := p.now().In(p.loc)
	stamp := generatedAt.Format(time.RFC3339)

	successful := make([]string, 0, len(in.Schedules))
	for date := range in.Schedules {
		successful = append(successful, date)
	}

	sort.Strings(successful)

	failed := append([]string{}, in.FailedDates...)
	sort.Strings(failed)

	art := &models.Artifacts{
		GeneratedAt: generatedAt,
		Schedules:   make([]models.ScheduleDocument, 0, len(successful)),
		Entries:     []models.CalendarEntry{},
	}

	summary := models.Summary{
		GeneratedAt:         stamp,
		SessionsPerDate:     make(map[string]int),
		SessionsPerLocation: make(map[string]int),
		UnmappedLocations:   make(map[string]int),
		RequestedDates:      append([]string{}, in.RequestedDates...),
		SuccessfulDates:     successful,
		FailedDates:         failed,
		DateExhaustedCount:  len(failed),
		FilesCreated:        []string{},
	}

	indexed := make(map[string]*models.IndexedLocation)
	filterSet := make(map[string]struct{})
	speakerSet := make(map[string]struct{})
	hashParts := make([][]byte, 0, len(successful))

	for _, date := range successful {
		schedule := in.Schedules[date]
		events := make([]models.Event, 0, len(schedule.Sessions))

		for _, session := range schedule.Sessions {
			event, placement := p.transformer.Transform(session)
			events = append(events, event)

			filterSet[placement.FilterLocation] = struct{}{}
			summary.SessionsPerLocation[placement.FilterLocation]++

			if placement.Unmapped {
				summary.UnmappedTotal++

				key := placement.Raw
				if key == "" {
					key = placement.FilterLocation
				}

				summary.UnmappedLocations[key]++
			} else {
				loc, ok := indexed[placement.EntryID]
				if !ok {
					loc = &models.IndexedLocation{
						ID:             placement.EntryID,
						FilterLocation: placement.FilterLocation,
						NearLocation:   placement.NearLocation,
						GMaps:          placement.GMaps,
					}
					indexed[placement.EntryID] = loc
				}

				loc.Sessions++
			}

			speakers := p.transformer.Speakers(session)
			for _, name := range speakers {
				speakerSet[name] = struct{}{}
			}

			art.Entries = append(art.Entries, models.CalendarEntry{
				ID:       session.ID,
				Title:    session.Title,
				Start:    session.Start,
				End:      session.End,
				Location: placement.FilterLocation,
				Speakers: speakers,
			})
		}

		summary.SessionsPerDate[date] = len(events)
		summary.TotalSessions += len(events)

		part, err := json.Marshal(hashedSchedule{Date: date, Events: events, TotalEvents: len(events)})
		if err != nil {
			return nil, fmt.Errorf("failed to encode schedule %s: %w", date, err)
		}

		hashParts = append(hashParts, part)

		art.Schedules = append(art.Schedules, models.ScheduleDocument{
			Date:        date,
			GeneratedAt: stamp,
			Events:      events,
			TotalEvents: len(events),
		})
	}

	summary.DatasetHash = metadata.CalculateHash(hashParts...)

	art.LocationIndex = buildLocationIndex(indexed, stamp)

	filters := sortedKeys(filterSet)
	art.FilterLocations = models.FilterLocations{
		GeneratedAt:    stamp,
		Locations:      filters,
		TotalLocations: len(filters),
	}

	speakers := sortedKeys(speakerSet)
	art.FilterSpeakers = models.FilterSpeakers{
		GeneratedAt:   stamp,
		Speakers:      speakers,
		TotalSpeakers: len(speakers),
	}

	art.Summary = summary

	return art, nil
}

func buildLocationIndex(indexed map[string]*models.IndexedLocation, stamp string) models.LocationIndex {
	index := models.LocationIndex{
		GeneratedAt: stamp,
		Locations:   make([]models.IndexedLocation, 0, len(indexed)),
	}

	for _, loc := range indexed {
		index.Locations = append(index.Locations, *loc)
	}

	sort.Slice(index.Locations, func(i, j int) bool {
		return index.Locations[i].ID < index.Locations[j].ID
	})

	index.TotalLocations = len(index.Locations)

	return index
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
