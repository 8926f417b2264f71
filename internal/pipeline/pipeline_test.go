package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"hacktown/internal/config"
	"hacktown/internal/crawler"
	"hacktown/internal/locations"
	"hacktown/internal/logger"
	"hacktown/internal/models"
	"hacktown/internal/output"
	"hacktown/internal/profile"
)

var fixedNow = time.Date(2025, 7, 29, 15, 0, 0, 0, time.UTC)

func noSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

func testConfig(t *testing.T, baseURL string, dates ...string) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.API.BaseURL = baseURL
	cfg.Dates = dates
	cfg.Output.Dir = t.TempDir()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}

	return cfg
}

func testProfile() profile.Profile {
	p := profile.DefaultLocal()
	p.MaxRetries = 2
	p.RequestTimeout = 2 * time.Second

	return p
}

func mustMapping(t *testing.T, doc string) *locations.Mapping {
	t.Helper()

	m, err := locations.Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("parse mapping: %v", err)
	}

	return m
}

func readJSON(t *testing.T, path string, v any) {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
}

// scheduleServer answers every date with the given bare-array body.
func scheduleServer(t *testing.T, body string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return srv
}

const auditoriumMapping = `{"location_mappings": {
	"auditorio": {
		"possible_names": ["Auditório A", "AUDITORIO A"],
		"filter_location": "Auditório Principal",
		"near_location": "Inatel e Arredores"
	}
}}`

func TestRun_AliasesCollapseToOneLocation(t *testing.T) {
	srv := scheduleServer(t, `[
		{"id": 1, "title": "First", "place": "auditorio a", "speakers": ["Ana"]},
		{"id": 2, "title": "Second", "place": "Auditório A", "speakers": ["Bruno"]}
	]`)

	cfg := testConfig(t, srv.URL, "2025-07-30")

	p := New(cfg, testProfile(), logger.Discard(),
		WithMapping(mustMapping(t, auditoriumMapping)),
		WithClock(func() time.Time { return fixedNow }),
		WithSchedulerOptions(crawler.WithSchedulerSleeper(noSleep)),
	)

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var index models.LocationIndex
	readJSON(t, filepath.Join(cfg.Output.Dir, output.LocationsFile), &index)

	if index.TotalLocations != 1 || index.Locations[0].FilterLocation != "Auditório Principal" {
		t.Errorf("unexpected location index %+v", index)
	}

	if index.Locations[0].Sessions != 2 {
		t.Errorf("expected both sessions on the entry, got %d", index.Locations[0].Sessions)
	}

	var filters models.FilterLocations
	readJSON(t, filepath.Join(cfg.Output.Dir, output.FilterLocationsFile), &filters)

	if len(filters.Locations) != 1 || filters.Locations[0] != "Auditório Principal" {
		t.Errorf("unexpected filter locations %q", filters.Locations)
	}

	if report.Summary.UnmappedTotal != 0 {
		t.Errorf("expected no unmapped sessions, got %d", report.Summary.UnmappedTotal)
	}

	var schedule models.ScheduleDocument
	readJSON(t, filepath.Join(cfg.Output.Dir, "hacktown_events_2025-07-30.json"), &schedule)

	if string(schedule.Events[0]["nearLocation"]) != `"Inatel e Arredores"` {
		t.Errorf("unexpected nearLocation %s", schedule.Events[0]["nearLocation"])
	}

	if _, err := os.Stat(filepath.Join(cfg.Output.Dir, output.CalendarFile)); err != nil {
		t.Errorf("expected calendar export: %v", err)
	}
}

// flakyFetcher times out for one date on every attempt.
type flakyFetcher struct {
	failDate string
	calls    atomic.Int32
}

func (f *flakyFetcher) FetchPage(ctx context.Context, date string, page int) (*crawler.Page, error) {
	f.calls.Add(1)

	if date == f.failDate {
		return nil, &crawler.FetchError{Kind: crawler.KindTimeout, Date: date, Page: page, Err: context.DeadlineExceeded}
	}

	return &crawler.Page{
		Date:     date,
		Number:   page,
		LastPage: 1,
		Sessions: []models.Session{{
			ID:    date + "-1",
			Title: "Talk",
			Raw:   map[string]json.RawMessage{"id": json.RawMessage(`"` + date + `-1"`)},
		}},
	}, nil
}

func TestRun_ExhaustedDateIsSkipped(t *testing.T) {
	cfg := testConfig(t, "https://api.example.com/schedules", "2025-07-30", "2025-07-31", "2025-08-01")

	stale := filepath.Join(cfg.Output.Dir, "hacktown_events_2025-07-31.json")
	if err := os.WriteFile(stale, []byte(`{"date":"2025-07-31"}`), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	fetcher := &flakyFetcher{failDate: "2025-07-31"}

	p := New(cfg, testProfile(), logger.Discard(),
		WithFetcher(fetcher),
		WithMapping(mustMapping(t, auditoriumMapping)),
		WithSchedulerOptions(crawler.WithSchedulerSleeper(noSleep)),
	)

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for _, date := range []string{"2025-07-30", "2025-08-01"} {
		if _, err := os.Stat(filepath.Join(cfg.Output.Dir, "hacktown_events_"+date+".json")); err != nil {
			t.Errorf("expected output for %s: %v", date, err)
		}
	}

	if _, err := os.Stat(stale); !errors.Is(err, os.ErrNotExist) {
		t.Error("no file should exist for the exhausted date")
	}

	var summary models.Summary
	readJSON(t, filepath.Join(cfg.Output.Dir, output.SummaryFile), &summary)

	if summary.DateExhaustedCount != 1 || len(summary.FailedDates) != 1 || summary.FailedDates[0] != "2025-07-31" {
		t.Errorf("unexpected failure summary: %d %v", summary.DateExhaustedCount, summary.FailedDates)
	}

	if !errors.Is(report.Failed["2025-07-31"], crawler.ErrDateExhausted) {
		t.Errorf("expected ErrDateExhausted, got %v", report.Failed["2025-07-31"])
	}

	// 2 good dates once each, bad date 1 + MaxRetries times.
	if got := fetcher.calls.Load(); got != 2+3 {
		t.Errorf("expected 5 fetch calls, got %d", got)
	}

	if !strings.Contains(report.Table(), "❌ exhausted") {
		t.Errorf("report table should flag the failed date:\n%s", report.Table())
	}
}

func TestRun_BlankSpeakersAreDropped(t *testing.T) {
	srv := scheduleServer(t, `[
		{"id": 1, "title": "Empty speaker", "place": "Auditório A", "speakers": ""},
		{"id": 2, "title": "Null speaker", "place": "Auditório A", "speakers": null},
		{"id": 3, "title": "Named", "place": "Somewhere else", "speakers": [{"name": "Carla"}]}
	]`)

	cfg := testConfig(t, srv.URL, "2025-07-30")

	p := New(cfg, testProfile(), logger.Discard(),
		WithMapping(mustMapping(t, auditoriumMapping)),
		WithSchedulerOptions(crawler.WithSchedulerSleeper(noSleep)),
	)

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var speakers models.FilterSpeakers
	readJSON(t, filepath.Join(cfg.Output.Dir, output.FilterSpeakersFile), &speakers)

	if speakers.TotalSpeakers != 1 || speakers.Speakers[0] != "Carla" {
		t.Errorf("unexpected speakers %q", speakers.Speakers)
	}

	var schedule map[string]json.RawMessage
	readJSON(t, filepath.Join(cfg.Output.Dir, "hacktown_events_2025-07-30.json"), &schedule)

	var events []map[string]json.RawMessage
	if err := json.Unmarshal(schedule["events"], &events); err != nil {
		t.Fatalf("decode events: %v", err)
	}

	if string(events[1]["speakers"]) != "null" {
		t.Errorf("original speaker field should pass through, got %s", events[1]["speakers"])
	}

	if string(events[2]["nearLocation"]) != "null" {
		t.Errorf("unmapped session should have null nearLocation, got %s", events[2]["nearLocation"])
	}
}

func TestRun_ConfigInvalidAbortsBeforeFetch(t *testing.T) {
	var hits atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	dup := `{"location_mappings": {
		"a": {"possible_names": ["Main Stage"], "filter_location": "A", "near_location": "N"},
		"b": {"possible_names": ["main stage"], "filter_location": "B", "near_location": "N"}
	}}`

	cfg := testConfig(t, srv.URL, "2025-07-30")

	_, err := New(cfg, testProfile(), logger.Discard(), WithMapping(mustMapping(t, dup))).Run(context.Background())
	if !errors.Is(err, locations.ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}

	if hits.Load() != 0 {
		t.Errorf("expected no requests, got %d", hits.Load())
	}

	cfg.LocationsFile = filepath.Join(t.TempDir(), "missing.json")

	if _, err := New(cfg, testProfile(), logger.Discard()).Run(context.Background()); !errors.Is(err, locations.ErrConfigInvalid) {
		t.Errorf("expected ErrConfigInvalid for missing mapping file, got %v", err)
	}
}

func TestRun_AllDatesFailedStillWritesArtifacts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL, "2025-07-30", "2025-07-31")

	report, err := New(cfg, testProfile(), logger.Discard(),
		WithMapping(mustMapping(t, auditoriumMapping)),
		WithSchedulerOptions(crawler.WithSchedulerSleeper(noSleep)),
	).Run(context.Background())
	if !errors.Is(err, ErrNoDatesFetched) {
		t.Fatalf("expected ErrNoDatesFetched, got %v", err)
	}

	if report == nil || report.Stats.RateLimited != 6 {
		t.Fatalf("expected 6 rate limited attempts, got %+v", report)
	}

	for _, name := range []string{output.LocationsFile, output.FilterLocationsFile, output.FilterSpeakersFile, output.SummaryFile} {
		data, err := os.ReadFile(filepath.Join(cfg.Output.Dir, name))
		if err != nil {
			t.Fatalf("expected %s: %v", name, err)
		}

		if !json.Valid(data) {
			t.Errorf("%s is not valid JSON", name)
		}
	}
}

func TestRun_ChangedTracksDatasetHash(t *testing.T) {
	srv := scheduleServer(t, `[{"id": 1, "title": "Only", "place": "Auditório A"}]`)
	cfg := testConfig(t, srv.URL, "2025-07-30")

	run := func() *Report {
		report, err := New(cfg, testProfile(), logger.Discard(),
			WithMapping(mustMapping(t, auditoriumMapping)),
			WithSchedulerOptions(crawler.WithSchedulerSleeper(noSleep)),
		).Run(context.Background())
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		return report
	}

	if first := run(); !first.Changed {
		t.Error("first run should report a change")
	}

	if second := run(); second.Changed {
		t.Error("identical second run should report no change")
	}
}

func TestRun_CancelledRunKeepsPreviousOutput(t *testing.T) {
	srv := scheduleServer(t, `[{"id": 1, "title": "Only", "place": "Auditório A"}]`)
	cfg := testConfig(t, srv.URL, "2025-07-30")

	newPipeline := func() *Pipeline {
		return New(cfg, testProfile(), logger.Discard(),
			WithMapping(mustMapping(t, auditoriumMapping)),
			WithSchedulerOptions(crawler.WithSchedulerSleeper(noSleep)),
		)
	}

	if _, err := newPipeline().Run(context.Background()); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}

	schedulePath := filepath.Join(cfg.Output.Dir, "hacktown_events_2025-07-30.json")
	summaryPath := filepath.Join(cfg.Output.Dir, output.SummaryFile)

	before, err := os.ReadFile(summaryPath)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newPipeline().Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if errors.Is(err, ErrNoDatesFetched) {
		t.Error("cancellation should not be reported as a fetch failure")
	}

	if report != nil {
		t.Errorf("expected no report for a cancelled run, got %s", report)
	}

	if _, err := os.Stat(schedulePath); err != nil {
		t.Errorf("previous schedule should survive a cancelled run: %v", err)
	}

	after, err := os.ReadFile(summaryPath)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}

	if string(after) != string(before) {
		t.Error("summary should be unchanged after a cancelled run")
	}
}

// warmingFetcher counts warm-ups and serves one session per date.
type warmingFetcher struct {
	flakyFetcher
	warmups atomic.Int32
	err     error
}

func (f *warmingFetcher) WarmUp(ctx context.Context) error {
	f.warmups.Add(1)

	return f.err
}

func TestRun_WarmUpOnlyWhenAutomated(t *testing.T) {
	tests := []struct {
		name    string
		prof    profile.Profile
		err     error
		wantHit int32
	}{
		{name: "automated", prof: profile.DefaultAutomated(), wantHit: 1},
		{name: "automated with failing warm-up", prof: profile.DefaultAutomated(), err: errors.New("refused"), wantHit: 1},
		{name: "local", prof: profile.DefaultLocal(), wantHit: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, "https://api.example.com/schedules", "2025-07-30")
			fetcher := &warmingFetcher{err: tt.err}

			_, err := New(cfg, tt.prof, logger.Discard(),
				WithFetcher(fetcher),
				WithMapping(mustMapping(t, auditoriumMapping)),
				WithSchedulerOptions(crawler.WithSchedulerSleeper(noSleep)),
			).Run(context.Background())
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}

			if got := fetcher.warmups.Load(); got != tt.wantHit {
				t.Errorf("expected %d warm-ups, got %d", tt.wantHit, got)
			}
		})
	}
}
