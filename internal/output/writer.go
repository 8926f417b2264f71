// Package output persists run artifacts to the output directory.
package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"hacktown/internal/logger"
	"hacktown/internal/models"
	"hacktown/pkg/utils"
)

// Aggregate file names.
const (
	LocationsFile       = "locations.json"
	FilterLocationsFile = "filter_locations.json"
	FilterSpeakersFile  = "filter_speakers.json"
	SummaryFile         = "summary.json"
	CalendarFile        = "calendar.ics"
)

// ErrNoArtifacts is returned when Write is called with nil artifacts.
var ErrNoArtifacts = errors.New("no artifacts to write")

// Writer writes artifacts into one directory.
type Writer struct {
	log    *logger.Logger
	dir    string
	prefix string
	pretty bool
}

// NewWriter creates a writer for dir. Schedule files are named prefix+date+".json".
func NewWriter(dir, prefix string, pretty bool, log *logger.Logger) *Writer {
	return &Writer{
		log:    log,
		dir:    dir,
		prefix: prefix,
		pretty: pretty,
	}
}

// ScheduleFileName returns the file name of the schedule for date.
func ScheduleFileName(prefix, date string) string {
	return prefix + date + ".json"
}

// Write persists art. Every file is replaced atomically, schedule files
// from earlier runs that this run did not produce are removed, and the
// summary is written last with the final file list. A non-nil calendar is
// written as calendar.ics.
func (w *Writer) Write(art *models.Artifacts, calendar []byte) ([]string, error) {
	if art == nil {
		return nil, ErrNoArtifacts
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	var written []string

	keep := map[string]bool{
		LocationsFile:       true,
		FilterLocationsFile: true,
		FilterSpeakersFile:  true,
		SummaryFile:         true,
	}

	for _, doc := range art.Schedules {
		name := ScheduleFileName(w.prefix, doc.Date)
		if err := w.writeJSON(name, doc); err != nil {
			return written, err
		}

		keep[name] = true
		written = append(written, name)
		w.log.Info("💾 schedule written", "file", name, "events", doc.TotalEvents)
	}

	aggregates := []struct {
		value any
		name  string
	}{
		{art.LocationIndex, LocationsFile},
		{art.FilterLocations, FilterLocationsFile},
		{art.FilterSpeakers, FilterSpeakersFile},
	}

	for _, a := range aggregates {
		if err := w.writeJSON(a.name, a.value); err != nil {
			return written, err
		}

		written = append(written, a.name)
	}

	if calendar != nil {
		if err := utils.WriteFileAtomic(filepath.Join(w.dir, CalendarFile), calendar, 0o644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", CalendarFile, err)
		}

		written = append(written, CalendarFile)
	}

	removed, err := w.pruneSchedules(keep)
	if err != nil {
		return written, err
	}

	for _, name := range removed {
		w.log.Info("🗑️ stale schedule removed", "file", name)
	}

	sort.Strings(written)

	files := append([]string{}, written...)
	files = append(files, SummaryFile)
	sort.Strings(files)
	art.Summary.FilesCreated = files

	if err := w.writeJSON(SummaryFile, art.Summary); err != nil {
		return written, err
	}

	return files, nil
}

// pruneSchedules removes schedule files not listed in keep.
func (w *Writer) pruneSchedules(keep map[string]bool) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(w.dir, w.prefix+"*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}

	var removed []string

	for _, path := range matches {
		name := filepath.Base(path)
		if keep[name] || strings.HasPrefix(name, ".") {
			continue
		}

		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("failed to remove stale schedule %s: %w", name, err)
		}

		removed = append(removed, name)
	}

	return removed, nil
}

func (w *Writer) writeJSON(name string, v any) error {
	data, err := Marshal(v, w.pretty)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}

	if err := utils.WriteFileAtomic(filepath.Join(w.dir, name), data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}

	return nil
}

// Marshal encodes v as UTF-8 JSON without HTML escaping, indented when pretty.
func Marshal(v any, pretty bool) ([]byte, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if pretty {
		enc.SetIndent("", "  ")
	}

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// ReadSummary loads the summary left by a previous run in dir.
func ReadSummary(dir string) (*models.Summary, error) {
	data, err := os.ReadFile(filepath.Join(dir, SummaryFile))
	if err != nil {
		return nil, err
	}

	var s models.Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", SummaryFile, err)
	}

	return &s, nil
}
