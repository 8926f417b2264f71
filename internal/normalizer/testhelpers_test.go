package normalizer

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"hacktown/internal/locations"
	"hacktown/internal/models"
)

const testMapping = `{"location_mappings": {
	"inatel": {"possible_names": ["Inatel", "INATEL - AUDITÓRIO"], "filter_location": "Inatel", "near_location": "Inatel e Arredores", "gmaps": "https://maps.example.com/inatel"},
	"ete":    {"possible_names": ["ETE FMC"], "filter_location": "ETE", "near_location": "ETE e Arredores"}
}}`

var fixedNow = time.Date(2025, 7, 29, 15, 4, 5, 0, time.UTC)

func newTestMatcher(t *testing.T) *locations.Matcher {
	t.Helper()

	m, err := locations.Parse(strings.NewReader(testMapping))
	if err != nil {
		t.Fatalf("parse mapping: %v", err)
	}

	return locations.NewMatcher(m)
}

func newTestProcessor(t *testing.T) *Processor {
	t.Helper()

	return NewProcessor(newTestMatcher(t), "Other", WithClock(func() time.Time { return fixedNow }))
}

// session builds a session whose Raw mirrors its fields, as the decoder would.
func session(id, place string, speakers ...string) models.Session {
	raw := map[string]json.RawMessage{
		"id":    json.RawMessage(`"` + id + `"`),
		"title": json.RawMessage(`"Talk ` + id + `"`),
	}

	if place != "" {
		b, _ := json.Marshal(place)
		raw["place"] = b
	}

	return models.Session{ID: id, Title: "Talk " + id, Location: place, Speakers: speakers, Raw: raw}
}
