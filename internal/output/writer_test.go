package output

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"hacktown/internal/logger"
	"hacktown/internal/models"
)

func sampleArtifacts() *models.Artifacts {
	return &models.Artifacts{
		Schedules: []models.ScheduleDocument{
			{
				Date:        "2025-07-30",
				GeneratedAt: "2025-07-29T12:00:00-03:00",
				Events: []models.Event{
					{"id": json.RawMessage(`1`), "filterLocation": json.RawMessage(`"Bar & Grill"`)},
				},
				TotalEvents: 1,
			},
		},
		LocationIndex:   models.LocationIndex{Locations: []models.IndexedLocation{}},
		FilterLocations: models.FilterLocations{Locations: []string{"Bar & Grill"}, TotalLocations: 1},
		FilterSpeakers:  models.FilterSpeakers{Speakers: []string{}},
		Summary:         models.Summary{DatasetHash: "abc", TotalSessions: 1},
	}
}

func TestWriter_Write(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "hacktown_events_", true, logger.Discard())

	art := sampleArtifacts()

	files, err := w.Write(art, []byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	want := []string{
		CalendarFile,
		FilterLocationsFile,
		FilterSpeakersFile,
		"hacktown_events_2025-07-30.json",
		LocationsFile,
		SummaryFile,
	}
	if !reflect.DeepEqual(files, want) {
		t.Errorf("files = %v, want %v", files, want)
	}

	for _, name := range want {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}

	summary, err := ReadSummary(dir)
	if err != nil {
		t.Fatalf("ReadSummary failed: %v", err)
	}

	if !reflect.DeepEqual(summary.FilesCreated, want) || summary.DatasetHash != "abc" {
		t.Errorf("unexpected summary on disk: %+v", summary)
	}

	schedule, err := os.ReadFile(filepath.Join(dir, "hacktown_events_2025-07-30.json"))
	if err != nil {
		t.Fatalf("read schedule: %v", err)
	}

	if !strings.Contains(string(schedule), `"Bar & Grill"`) {
		t.Errorf("expected unescaped ampersand, got %s", schedule)
	}

	if !strings.Contains(string(schedule), "\n  \"events\"") {
		t.Errorf("expected indented output, got %s", schedule)
	}
}

func TestWriter_Write_PrunesStaleSchedules(t *testing.T) {
	dir := t.TempDir()

	stale := filepath.Join(dir, "hacktown_events_2024-01-01.json")
	if err := os.WriteFile(stale, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	unrelated := filepath.Join(dir, "notes.json")
	if err := os.WriteFile(unrelated, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := NewWriter(dir, "hacktown_events_", false, logger.Discard()).Write(sampleArtifacts(), nil); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if _, err := os.Stat(stale); !errors.Is(err, os.ErrNotExist) {
		t.Error("stale schedule should have been removed")
	}

	if _, err := os.Stat(unrelated); err != nil {
		t.Error("unrelated files must be left alone")
	}

	if _, err := os.Stat(filepath.Join(dir, CalendarFile)); !errors.Is(err, os.ErrNotExist) {
		t.Error("calendar should not be written when nil")
	}
}

func TestWriter_Write_EmptyArtifacts(t *testing.T) {
	dir := t.TempDir()

	art := &models.Artifacts{
		Schedules:       []models.ScheduleDocument{},
		LocationIndex:   models.LocationIndex{Locations: []models.IndexedLocation{}},
		FilterLocations: models.FilterLocations{Locations: []string{}},
		FilterSpeakers:  models.FilterSpeakers{Speakers: []string{}},
	}

	files, err := NewWriter(dir, "hacktown_events_", false, logger.Discard()).Write(art, nil)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if len(files) != 4 {
		t.Errorf("expected 4 aggregate files, got %v", files)
	}

	for _, name := range files {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}

		if !json.Valid(data) {
			t.Errorf("%s is not valid JSON: %s", name, data)
		}
	}
}

func TestWriter_Write_Nil(t *testing.T) {
	if _, err := NewWriter(t.TempDir(), "p_", false, logger.Discard()).Write(nil, nil); !errors.Is(err, ErrNoArtifacts) {
		t.Errorf("expected ErrNoArtifacts, got %v", err)
	}
}

func TestScheduleFileName(t *testing.T) {
	if got := ScheduleFileName("hacktown_events_", "2025-08-01"); got != "hacktown_events_2025-08-01.json" {
		t.Errorf("unexpected name %s", got)
	}
}

func TestReadSummary_Missing(t *testing.T) {
	if _, err := ReadSummary(t.TempDir()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestWriter_Write_SummaryFailureKeepsWrittenFiles(t *testing.T) {
	dir := t.TempDir()

	// A directory in the way makes the summary rename fail.
	if err := os.Mkdir(filepath.Join(dir, SummaryFile), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	// "ww_" sorts after "summary.json".
	w := NewWriter(dir, "ww_", false, logger.Discard())

	files, err := w.Write(sampleArtifacts(), nil)
	if err == nil {
		t.Fatal("expected an error when summary.json cannot be written")
	}

	want := []string{FilterLocationsFile, FilterSpeakersFile, LocationsFile, "ww_2025-07-30.json"}
	if !reflect.DeepEqual(files, want) {
		t.Errorf("files = %v, want %v", files, want)
	}
}
