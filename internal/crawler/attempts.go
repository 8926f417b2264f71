package crawler

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"hacktown/internal/logger"
)

// AttemptResult records the result of one page fetch attempt.
type AttemptResult struct {
	Timestamp  time.Time
	Date       string
	Error      string
	Kind       FailureKind
	Page       int
	Attempt    int
	StatusCode int
	Duration   time.Duration
	Delay      time.Duration
	Success    bool
}

// AttemptLog collects attempt results per date. It is safe for concurrent use.
type AttemptLog struct {
	byDate  map[string][]AttemptResult
	outcome map[string]bool
	mu      sync.Mutex
}

// NewAttemptLog creates an empty log.
func NewAttemptLog() *AttemptLog {
	return &AttemptLog{
		byDate:  make(map[string][]AttemptResult),
		outcome: make(map[string]bool),
	}
}

// Record appends the attempts made for one page.
func (l *AttemptLog) Record(date string, page int, attempts []Attempt, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, a := range attempts {
		errMsg := ""
		if a.Err != nil {
			errMsg = a.Err.Error()
		}

		l.byDate[date] = append(l.byDate[date], AttemptResult{
			Timestamp:  at,
			Date:       date,
			Page:       page,
			Attempt:    a.Number,
			Success:    a.Err == nil,
			Kind:       a.Kind,
			StatusCode: a.StatusCode,
			Error:      errMsg,
			Duration:   a.Duration,
			Delay:      a.Delay,
		})
	}
}

// MarkDate records the final outcome of a date.
func (l *AttemptLog) MarkDate(date string, success bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.outcome[date] = success
}

// ForDate returns the attempts for date ordered by page then attempt.
func (l *AttemptLog) ForDate(date string) []AttemptResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	results := append([]AttemptResult(nil), l.byDate[date]...)
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Page != results[j].Page {
			return results[i].Page < results[j].Page
		}

		return results[i].Attempt < results[j].Attempt
	})

	return results
}

// Stats returns statistics about fetch attempts.
func (l *AttemptLog) Stats() AttemptStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := AttemptStats{
		DateAttempts: make(map[string]int),
		TotalDates:   len(l.outcome),
	}

	for date, ok := range l.outcome {
		if ok {
			stats.SuccessfulDates++
		} else {
			stats.FailedDates++
		}

		stats.DateAttempts[date] = len(l.byDate[date])
	}

	for _, results := range l.byDate {
		stats.TotalAttempts += len(results)

		for _, r := range results {
			if r.Success {
				stats.SuccessfulAttempts++

				continue
			}

			stats.FailedAttempts++

			switch r.Kind {
			case KindRateLimited:
				stats.RateLimited++
			case KindTimeout:
				stats.Timeouts++
			}
		}
	}

	return stats
}

// AttemptStats contains statistics about fetch attempts.
type AttemptStats struct {
	DateAttempts       map[string]int
	TotalDates         int
	SuccessfulDates    int
	FailedDates        int
	TotalAttempts      int
	SuccessfulAttempts int
	FailedAttempts     int
	RateLimited        int
	Timeouts           int
}

// String returns a string representation of attempt stats.
func (s AttemptStats) String() string {
	return fmt.Sprintf(
		"Dates: %d total, %d success, %d failed | Attempts: %d total, %d success, %d failed (%d rate limited, %d timeouts)",
		s.TotalDates,
		s.SuccessfulDates,
		s.FailedDates,
		s.TotalAttempts,
		s.SuccessfulAttempts,
		s.FailedAttempts,
		s.RateLimited,
		s.Timeouts,
	)
}

// LogAttemptSummary logs a summary of fetch attempts using the provided logger.
func (l *AttemptLog) LogAttemptSummary(log *logger.Logger, dates []string) {
	log.Info("📊 Fetch attempt summary")

	for _, date := range dates {
		results := l.ForDate(date)
		if len(results) == 0 {
			log.Info("   not attempted", "date", date)

			continue
		}

		for _, r := range results {
			if r.Success {
				log.Debug("   ✅ attempt", "date", date, "page", r.Page, "attempt", r.Attempt, "duration", r.Duration)

				continue
			}

			log.Debug("   ❌ attempt", "date", date, "page", r.Page, "attempt", r.Attempt,
				"kind", r.Kind.String(), "status", r.StatusCode, "error", r.Error, "next_delay", r.Delay)
		}
	}

	log.Info("Overall: " + l.Stats().String())
}
