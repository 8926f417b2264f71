// Package pipeline runs one fetch, normalize and write cycle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"hacktown/internal/calendar"
	"hacktown/internal/config"
	"hacktown/internal/crawler"
	"hacktown/internal/locations"
	"hacktown/internal/logger"
	"hacktown/internal/normalizer"
	"hacktown/internal/output"
	"hacktown/internal/profile"
)

// ErrNoDatesFetched is returned when every requested date failed. The
// (empty) artifacts have still been written.
var ErrNoDatesFetched = errors.New("no dates fetched successfully")

// Pipeline wires the crawler, normalizer and writer for one configuration.
type Pipeline struct {
	fetcher   crawler.Fetcher
	mapping   *locations.Mapping
	cfg       *config.Config
	log       *logger.Logger
	now       func() time.Time
	schedOpts []crawler.SchedulerOption
	profile   profile.Profile
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithFetcher replaces the HTTP client.
func WithFetcher(f crawler.Fetcher) Option {
	return func(p *Pipeline) { p.fetcher = f }
}

// WithMapping uses m instead of loading cfg.LocationsFile.
func WithMapping(m *locations.Mapping) Option {
	return func(p *Pipeline) { p.mapping = m }
}

// WithClock sets the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithSchedulerOptions passes extra options to the scheduler.
func WithSchedulerOptions(opts ...crawler.SchedulerOption) Option {
	return func(p *Pipeline) { p.schedOpts = append(p.schedOpts, opts...) }
}

// New creates a pipeline. prof is the already resolved throttling profile.
func New(cfg *config.Config, prof profile.Profile, log *logger.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:     cfg,
		profile: prof,
		log:     log,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Run executes one cycle. Configuration problems abort before any request
// is made. Failed dates are reported, not returned as errors, unless no
// date succeeded at all. A cancelled ctx returns its error without touching
// the output directory.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	runID := uuid.NewString()
	log := p.log.With("run_id", runID)
	started := p.now()

	loc, err := p.cfg.Location()
	if err != nil {
		return nil, err
	}

	if err := p.profile.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile: %w", err)
	}

	mapping := p.mapping
	if mapping == nil {
		if mapping, err = locations.Load(p.cfg.LocationsFile); err != nil {
			return nil, err
		}
	}

	if err := mapping.Validate(); err != nil {
		return nil, err
	}

	log.Info("🚀 run started", "profile", p.profile.String(), "dates", len(p.cfg.Dates), "mapping", mapping.String())

	fetcher := p.fetcher
	if fetcher == nil {
		fetcher = crawler.NewClient(p.cfg.API, p.profile, loc)
	}

	if w, ok := fetcher.(crawler.Warmer); ok && p.profile.Kind == profile.Automated {
		log.Info("🔥 warming up session")

		if err := w.WarmUp(ctx); err != nil {
			log.Warn("⚠️ session warm-up failed, continuing", "error", err)
		}
	}

	schedOpts := append([]crawler.SchedulerOption{crawler.WithMaxPages(p.cfg.API.MaxPages)}, p.schedOpts...)
	scheduler := crawler.NewScheduler(fetcher, p.profile, log, schedOpts...)

	results := scheduler.FetchAll(ctx, p.cfg.Dates)
	results.Attempts.LogAttemptSummary(log, p.cfg.Dates)

	// An interrupted run keeps the previous snapshot on disk.
	if err := ctx.Err(); err != nil {
		log.Warn("🛑 run cancelled, artifacts left unchanged", "error", err)

		return nil, fmt.Errorf("run cancelled before writing artifacts: %w", err)
	}

	failed := make([]string, 0, len(results.Failed))
	for date := range results.Failed {
		failed = append(failed, date)
	}

	sort.Strings(failed)

	matcher := locations.NewMatcher(mapping)
	processor := normalizer.NewProcessor(matcher, p.cfg.FallbackLocation,
		normalizer.WithClock(p.now),
		normalizer.WithLocation(loc),
	)

	art, err := processor.Aggregate(normalizer.Input{
		Schedules:      results.Schedules,
		RequestedDates: p.cfg.Dates,
		FailedDates:    failed,
	})
	if err != nil {
		return nil, fmt.Errorf("aggregation failed: %w", err)
	}

	previousHash := ""
	if prev, err := output.ReadSummary(p.cfg.Output.Dir); err == nil {
		previousHash = prev.DatasetHash
	}

	var ics []byte
	if p.cfg.Output.Calendar {
		ics = calendar.Build(p.cfg.Output.CalendarName, art.Entries, art.GeneratedAt)
	}

	writer := output.NewWriter(p.cfg.Output.Dir, p.cfg.Output.SchedulePrefix, p.cfg.Output.PrettyPrint, log)

	files, err := writer.Write(art, ics)
	if err != nil {
		return nil, fmt.Errorf("failed to write artifacts: %w", err)
	}

	report := &Report{
		RunID:       runID,
		Profile:     p.profile,
		Requested:   append([]string{}, p.cfg.Dates...),
		Failed:      results.Failed,
		Summary:     art.Summary,
		Stats:       results.Attempts.Stats(),
		Files:       files,
		Changed:     previousHash != art.Summary.DatasetHash,
		Duration:    p.now().Sub(started),
		attemptsFor: results.Attempts.ForDate,
	}

	log.Info("🏁 run finished",
		"sessions", art.Summary.TotalSessions,
		"successful_dates", len(art.Summary.SuccessfulDates),
		"failed_dates", len(failed),
		"unmapped", art.Summary.UnmappedTotal,
		"changed", report.Changed,
		"duration", report.Duration,
	)

	if len(art.Summary.SuccessfulDates) == 0 && len(p.cfg.Dates) > 0 {
		return report, ErrNoDatesFetched
	}

	return report, nil
}
