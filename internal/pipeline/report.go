package pipeline

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"hacktown/internal/crawler"
	"hacktown/internal/formatter"
	"hacktown/internal/models"
	"hacktown/internal/profile"
	"hacktown/pkg/utils"
)

// maxNameWidth caps location names in report tables.
const maxNameWidth = 48

// Report describes a finished run.
type Report struct {
	Failed      map[string]error
	attemptsFor func(date string) []crawler.AttemptResult
	RunID       string
	Requested   []string
	Files       []string
	Summary     models.Summary
	Stats       crawler.AttemptStats
	Profile     profile.Profile
	Duration    time.Duration
	Changed     bool
}

// Table renders one row per requested date.
func (r *Report) Table() string {
	rows := make([][]string, 0, len(r.Requested))

	for _, date := range r.Requested {
		status := "✅ ok"
		if _, failed := r.Failed[date]; failed {
			status = "❌ exhausted"
		}

		attempts, limited := 0, 0

		if r.attemptsFor != nil {
			for _, a := range r.attemptsFor(date) {
				attempts++

				if a.Kind == crawler.KindRateLimited {
					limited++
				}
			}
		}

		rows = append(rows, []string{
			date,
			status,
			strconv.Itoa(r.Summary.SessionsPerDate[date]),
			strconv.Itoa(attempts),
			strconv.Itoa(limited),
		})
	}

	return formatter.RenderTable([]string{"Date", "Status", "Sessions", "Attempts", "Rate limited"}, rows)
}

// UnmappedTable lists unmapped location strings, most frequent first.
func (r *Report) UnmappedTable() string {
	names := make([]string, 0, len(r.Summary.UnmappedLocations))
	for name := range r.Summary.UnmappedLocations {
		names = append(names, name)
	}

	sort.Slice(names, func(i, j int) bool {
		ci, cj := r.Summary.UnmappedLocations[names[i]], r.Summary.UnmappedLocations[names[j]]
		if ci != cj {
			return ci > cj
		}

		return names[i] < names[j]
	})

	helper := utils.NewStringHelper()

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, []string{
			helper.TruncateString(name, maxNameWidth),
			strconv.Itoa(r.Summary.UnmappedLocations[name]),
		})
	}

	return formatter.RenderTable([]string{"Unmapped location", "Sessions"}, rows)
}

// String returns a one-line description.
func (r *Report) String() string {
	failed := make([]string, 0, len(r.Failed))
	for date := range r.Failed {
		failed = append(failed, date)
	}

	sort.Strings(failed)

	return fmt.Sprintf(
		"Report{run: %s, sessions: %d, dates: %d/%d, failed: [%s], unmapped: %d, changed: %t}",
		r.RunID,
		r.Summary.TotalSessions,
		len(r.Summary.SuccessfulDates),
		len(r.Requested),
		strings.Join(failed, ", "),
		r.Summary.UnmappedTotal,
		r.Changed,
	)
}
