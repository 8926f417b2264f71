package crawler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"hacktown/internal/logger"
	"hacktown/internal/models"
	"hacktown/internal/profile"
)

// Results holds everything FetchAll learned, keyed by date.
type Results struct {
	Schedules map[string]models.DailySchedule
	Failed    map[string]error
	Attempts  *AttemptLog
}

// Scheduler fetches many dates through one Fetcher while keeping at most
// MaxConcurrentRequests attempts in flight.
type Scheduler struct {
	fetcher  Fetcher
	log      *logger.Logger
	sem      chan struct{}
	sleep    Sleeper
	random   func() float64
	now      func() time.Time
	profile  profile.Profile
	maxPages int
}

// SchedulerOption customizes a Scheduler.
type SchedulerOption func(*Scheduler)

// WithMaxPages caps the number of pages fetched per date.
func WithMaxPages(n int) SchedulerOption {
	return func(s *Scheduler) { s.maxPages = n }
}

// WithSchedulerSleeper replaces the wait used for backoff and stagger.
func WithSchedulerSleeper(sl Sleeper) SchedulerOption {
	return func(s *Scheduler) { s.sleep = sl }
}

// WithSchedulerRand replaces the random source used for jitter and stagger.
// f must be safe for concurrent use and return values in [0, 1).
func WithSchedulerRand(f func() float64) SchedulerOption {
	return func(s *Scheduler) { s.random = f }
}

// WithSchedulerClock replaces the clock.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler creates a scheduler for p.
func NewScheduler(f Fetcher, p profile.Profile, log *logger.Logger, opts ...SchedulerOption) *Scheduler {
	limit := p.MaxConcurrentRequests
	if limit < 1 {
		limit = 1
	}

	s := &Scheduler{
		fetcher:  f,
		profile:  p,
		log:      log,
		sem:      make(chan struct{}, limit),
		sleep:    SleepContext,
		random:   rand.Float64,
		now:      time.Now,
		maxPages: 50,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// FetchAll fetches every date and returns when each has succeeded or
// exhausted its retries. A date with any exhausted page is reported in
// Failed and has no schedule.
func (s *Scheduler) FetchAll(ctx context.Context, dates []string) *Results {
	results := &Results{
		Schedules: make(map[string]models.DailySchedule, len(dates)),
		Failed:    make(map[string]error),
		Attempts:  NewAttemptLog(),
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for _, date := range dates {
		wg.Add(1)

		go func(date string) {
			defer wg.Done()

			schedule, err := s.fetchDate(ctx, date, results.Attempts)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				results.Failed[date] = err
				results.Attempts.MarkDate(date, false)
				s.log.Error("❌ date exhausted", "date", date, "error", err)

				return
			}

			results.Schedules[date] = *schedule
			results.Attempts.MarkDate(date, true)
			s.log.Info("✅ date fetched", "date", date, "sessions", len(schedule.Sessions))
		}(date)
	}

	wg.Wait()

	return results
}

func (s *Scheduler) fetchDate(ctx context.Context, date string, log *AttemptLog) (*models.DailySchedule, error) {
	first, err := s.fetchPage(ctx, date, 1, log)
	if err != nil {
		return nil, fmt.Errorf("%w: %s page 1: %w", ErrDateExhausted, date, err)
	}

	last := first.LastPage
	if last > s.maxPages {
		s.log.Warn("⚠️ page count capped", "date", date, "last_page", last, "max_pages", s.maxPages)
		last = s.maxPages
	}

	pages := make([]*Page, last)
	pages[0] = first

	if last > 1 {
		s.log.Info("fetching remaining pages", "date", date, "pages", last)

		errs := make([]error, last)

		var wg sync.WaitGroup

		for n := 2; n <= last; n++ {
			wg.Add(1)

			go func(n int) {
				defer wg.Done()

				page, err := s.fetchPage(ctx, date, n, log)
				if err != nil {
					errs[n-1] = fmt.Errorf("page %d: %w", n, err)

					return
				}

				pages[n-1] = page
			}(n)
		}

		wg.Wait()

		if err := errors.Join(errs...); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrDateExhausted, date, err)
		}
	}

	schedule := &models.DailySchedule{Date: date}
	for _, p := range pages {
		schedule.Sessions = append(schedule.Sessions, p.Sessions...)
	}

	return schedule, nil
}

// fetchPage runs the retry machine for one page. Each attempt holds a
// semaphore slot only while it staggers and fetches; backoff waits happen
// outside the slot.
func (s *Scheduler) fetchPage(ctx context.Context, date string, n int, log *AttemptLog) (*Page, error) {
	var page *Page

	retrier := NewRetrier(
		PolicyFromProfile(s.profile),
		WithSleeper(s.sleep),
		WithRand(s.random),
		WithClock(s.now),
	)

	outcome := retrier.Do(ctx, func(ctx context.Context, attempt int) error {
		if err := s.acquire(ctx); err != nil {
			return err
		}
		defer s.release()

		if err := s.stagger(ctx); err != nil {
			return err
		}

		s.log.Debug("fetching", "date", date, "page", n, "attempt", attempt)

		p, err := s.fetcher.FetchPage(ctx, date, n)
		if err != nil {
			s.log.Warn("⚠️ attempt failed", "date", date, "page", n, "attempt", attempt, "kind", KindOf(err).String(), "error", err)

			return err
		}

		page = p

		return nil
	})

	log.Record(date, n, outcome.Attempts, s.now())

	if outcome.State != StateSucceeded {
		return nil, outcome.Err
	}

	return page, nil
}

func (s *Scheduler) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) release() {
	<-s.sem
}

// stagger waits a delay drawn uniformly from [MinRequestDelay, MaxRequestDelay].
func (s *Scheduler) stagger(ctx context.Context) error {
	spread := s.profile.MaxRequestDelay - s.profile.MinRequestDelay
	d := s.profile.MinRequestDelay + time.Duration(float64(spread)*s.random())

	if d <= 0 {
		return nil
	}

	return s.sleep(ctx, d)
}
