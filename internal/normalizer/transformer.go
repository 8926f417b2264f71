package normalizer

import (
	"bytes"
	"encoding/json"
	"strings"

	"hacktown/internal/locations"
	"hacktown/internal/models"
)

// Event fields added during normalization.
const (
	FieldFilterLocation = "filterLocation"
	FieldNearLocation   = "nearLocation"
)

// Placement is where a session ends up in the location taxonomy.
type Placement struct {
	Raw            string
	FilterLocation string
	NearLocation   string
	EntryID        string
	GMaps          string
	Unmapped       bool
}

// Transformer enriches sessions with their resolved location.
type Transformer struct {
	matcher  *locations.Matcher
	fallback string
}

// NewTransformer creates a new transformer. Sessions with no location get fallback as display name.
func NewTransformer(matcher *locations.Matcher, fallback string) *Transformer {
	return &Transformer{
		matcher:  matcher,
		fallback: fallback,
	}
}

// Place resolves the location of s.
func (t *Transformer) Place(s models.Session) Placement {
	raw := strings.TrimSpace(s.Location)
	if raw == "" {
		return Placement{Raw: raw, FilterLocation: t.fallback, Unmapped: true}
	}

	res := t.matcher.Resolve(raw)
	if res.Unmapped {
		return Placement{Raw: raw, FilterLocation: raw, Unmapped: true}
	}

	return Placement{
		Raw:            raw,
		FilterLocation: res.Entry.FilterLocation,
		NearLocation:   res.Entry.NearLocation,
		EntryID:        res.Entry.ID,
		GMaps:          res.Entry.GMaps,
	}
}

// Transform returns the output event for s: every original field plus
// filterLocation and nearLocation. nearLocation is null when unmapped.
func (t *Transformer) Transform(s models.Session) (models.Event, Placement) {
	placement := t.Place(s)

	event := make(models.Event, len(s.Raw)+2)
	for k, v := range s.Raw {
		event[k] = v
	}

	event[FieldFilterLocation] = encodeString(placement.FilterLocation)

	if placement.Unmapped {
		event[FieldNearLocation] = json.RawMessage("null")
	} else {
		event[FieldNearLocation] = encodeString(placement.NearLocation)
	}

	return event, placement
}

// Speakers returns the trimmed, non-empty speaker names of s.
func (t *Transformer) Speakers(s models.Session) []string {
	names := make([]string, 0, len(s.Speakers))

	for _, name := range s.Speakers {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}

	return names
}

// encodeString marshals s without HTML escaping.
func encodeString(s string) json.RawMessage {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)

	return json.RawMessage(bytes.TrimRight(buf.Bytes(), "\n"))
}
