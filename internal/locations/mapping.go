// Package locations maps the free-text venue names found in session records
// onto the canonical location taxonomy used by the frontend filters.
package locations

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Mapping errors.
var (
	ErrConfigInvalid   = errors.New("invalid location mapping")
	ErrMissingMappings = errors.New("location_mappings object is required")
	ErrDuplicateID     = errors.New("duplicate location id")
)

// Entry is one canonical location and the aliases that refer to it.
type Entry struct {
	ID             string   `json:"-"              validate:"required"`
	FilterLocation string   `json:"filter_location" validate:"required"`
	NearLocation   string   `json:"near_location"   validate:"required"`
	GMaps          string   `json:"gmaps,omitempty" validate:"omitempty,url"`
	PossibleNames  []string `json:"possible_names"  validate:"required,min=1,dive,required"`
}

// Mapping is the ordered list of entries from the mapping document.
// Order matters: when two entries share an alias the earlier one wins.
type Mapping struct {
	Entries []Entry
}

type document struct {
	LocationMappings json.RawMessage `json:"location_mappings"`
}

// Load reads and parses a mapping document from disk.
func Load(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse decodes a mapping document, keeping entries in document order, and
// validates every entry.
func Parse(r io.Reader) (*Mapping, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: failed to parse JSON: %w", ErrConfigInvalid, err)
	}

	if len(doc.LocationMappings) == 0 || string(doc.LocationMappings) == "null" {
		return nil, fmt.Errorf("%w: %w", ErrConfigInvalid, ErrMissingMappings)
	}

	entries, err := decodeOrdered(doc.LocationMappings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	for i := range entries {
		if err := validate.Struct(entries[i]); err != nil {
			return nil, fmt.Errorf("%w: location %q: %w", ErrConfigInvalid, entries[i].ID, err)
		}

		for _, name := range entries[i].PossibleNames {
			if strings.TrimSpace(name) == "" {
				return nil, fmt.Errorf("%w: location %q has a blank possible name", ErrConfigInvalid, entries[i].ID)
			}
		}
	}

	return &Mapping{Entries: entries}, nil
}

// decodeOrdered walks the location_mappings object token by token so that
// entry order follows the document rather than Go map iteration.
func decodeOrdered(raw json.RawMessage) ([]Entry, error) {
	dec := json.NewDecoder(strings.NewReader(string(raw)))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to read location_mappings: %w", err)
	}

	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("location_mappings must be an object: %w", ErrMissingMappings)
	}

	var entries []Entry

	seen := make(map[string]bool)

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to read location id: %w", err)
		}

		id, _ := tok.(string)
		if seen[id] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateID, id)
		}

		seen[id] = true

		var entry Entry
		if err := dec.Decode(&entry); err != nil {
			return nil, fmt.Errorf("failed to decode location %q: %w", id, err)
		}

		entry.ID = id
		entries = append(entries, entry)
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("failed to close location_mappings: %w", err)
	}

	return entries, nil
}

// Lookup returns the entry with the given id.
func (m *Mapping) Lookup(id string) (Entry, bool) {
	for _, e := range m.Entries {
		if e.ID == id {
			return e, true
		}
	}

	return Entry{}, false
}

// String returns a one-line description for logs.
func (m *Mapping) String() string {
	aliases := 0
	for _, e := range m.Entries {
		aliases += len(e.PossibleNames)
	}

	return fmt.Sprintf("Mapping{locations: %d, aliases: %d}", len(m.Entries), aliases)
}
