package crawler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"hacktown/internal/models"
)

// Session record fields read by the decoder. Everything else is passed through.
const (
	FieldID        = "id"
	FieldTitle     = "title"
	FieldStart     = "start_time"
	FieldEnd       = "end_time"
	FieldPlace     = "place"
	FieldLocation  = "location"
	FieldSpeakers  = "speakers"
	localLayout    = "2006-01-02 15:04:05"
	localLayoutISO = "2006-01-02T15:04:05"
)

var (
	errUnknownShape = errors.New("body is neither a session array nor a data envelope")
	errMissingData  = errors.New("envelope has no data array")
)

// sessionSchema holds the fields every record must carry.
type sessionSchema struct {
	ID    string `validate:"required"`
	Title string `validate:"required"`
}

var schemaValidator = validator.New()

type envelope struct {
	Data json.RawMessage `json:"data"`
	Meta struct {
		LastPage int `json:"last_page"`
	} `json:"meta"`
}

// DecodePage parses a response body. It accepts a bare array of session
// records or a {"data": [...], "meta": {"last_page": N}} envelope and
// returns the sessions in body order plus the last page number (at least 1).
func DecodePage(body []byte, loc *time.Location) ([]models.Session, int, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, 0, fmt.Errorf("%w: empty body", ErrMalformedResponse)
	}

	records := trimmed
	lastPage := 1

	switch trimmed[0] {
	case '[':
	case '{':
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, 0, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
		}

		data := bytes.TrimSpace(env.Data)
		if len(data) == 0 || data[0] != '[' {
			return nil, 0, fmt.Errorf("%w: %w", ErrMalformedResponse, errMissingData)
		}

		records = data

		if env.Meta.LastPage > 1 {
			lastPage = env.Meta.LastPage
		}
	default:
		return nil, 0, fmt.Errorf("%w: %w", ErrMalformedResponse, errUnknownShape)
	}

	var raws []map[string]json.RawMessage
	if err := json.Unmarshal(records, &raws); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	sessions := make([]models.Session, 0, len(raws))

	for i, raw := range raws {
		s, err := decodeSession(raw, loc)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: record %d: %w", ErrMalformedResponse, i, err)
		}

		sessions = append(sessions, s)
	}

	return sessions, lastPage, nil
}

func decodeSession(raw map[string]json.RawMessage, loc *time.Location) (models.Session, error) {
	if raw == nil {
		return models.Session{}, errors.New("record is null")
	}

	id, err := decodeID(raw[FieldID])
	if err != nil {
		return models.Session{}, err
	}

	title, err := optionalString(raw, FieldTitle)
	if err != nil {
		return models.Session{}, err
	}

	schema := sessionSchema{ID: id, Title: strings.TrimSpace(title)}
	if err := schemaValidator.Struct(schema); err != nil {
		return models.Session{}, fmt.Errorf("schema: %w", err)
	}

	place, err := optionalString(raw, FieldPlace)
	if err != nil {
		return models.Session{}, err
	}

	if _, ok := raw[FieldPlace]; !ok {
		if place, err = optionalString(raw, FieldLocation); err != nil {
			return models.Session{}, err
		}
	}

	start, err := decodeTime(raw, FieldStart, loc)
	if err != nil {
		return models.Session{}, err
	}

	end, err := decodeTime(raw, FieldEnd, loc)
	if err != nil {
		return models.Session{}, err
	}

	speakers, err := decodeSpeakers(raw[FieldSpeakers])
	if err != nil {
		return models.Session{}, err
	}

	return models.Session{
		ID:       id,
		Title:    title,
		Start:    start,
		End:      end,
		Location: place,
		Speakers: speakers,
		Raw:      raw,
	}, nil
}

func isNull(msg json.RawMessage) bool {
	trimmed := bytes.TrimSpace(msg)

	return len(trimmed) == 0 || string(trimmed) == "null"
}

// decodeID accepts a string or a number.
func decodeID(msg json.RawMessage) (string, error) {
	if isNull(msg) {
		return "", nil
	}

	var s string
	if err := json.Unmarshal(msg, &s); err == nil {
		return strings.TrimSpace(s), nil
	}

	var n json.Number
	if err := json.Unmarshal(msg, &n); err != nil {
		return "", fmt.Errorf("field %s must be a string or number", FieldID)
	}

	return n.String(), nil
}

func optionalString(raw map[string]json.RawMessage, field string) (string, error) {
	msg, ok := raw[field]
	if !ok || isNull(msg) {
		return "", nil
	}

	var s string
	if err := json.Unmarshal(msg, &s); err != nil {
		return "", fmt.Errorf("field %s must be a string", field)
	}

	return s, nil
}

func decodeTime(raw map[string]json.RawMessage, field string, loc *time.Location) (time.Time, error) {
	s, err := optionalString(raw, field)
	if err != nil || strings.TrimSpace(s) == "" {
		return time.Time{}, err
	}

	s = strings.TrimSpace(s)

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), nil
	}

	for _, layout := range []string{localLayout, localLayoutISO} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("field %s: unrecognized time %q", field, s)
}

type speakerObject struct {
	Name *string `json:"name"`
}

// decodeSpeakers accepts null, a single name, or an array of names or
// {"name": ...} objects. Names are trimmed; blank names are dropped.
func decodeSpeakers(msg json.RawMessage) ([]string, error) {
	if isNull(msg) {
		return nil, nil
	}

	var single string
	if err := json.Unmarshal(msg, &single); err == nil {
		return appendName(nil, single), nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(msg, &items); err != nil {
		return nil, fmt.Errorf("field %s must be a string or an array", FieldSpeakers)
	}

	var names []string

	for _, item := range items {
		if isNull(item) {
			continue
		}

		var name string
		if err := json.Unmarshal(item, &name); err == nil {
			names = appendName(names, name)

			continue
		}

		var obj speakerObject
		if err := json.Unmarshal(item, &obj); err != nil {
			return nil, fmt.Errorf("field %s: unsupported entry %s", FieldSpeakers, item)
		}

		if obj.Name != nil {
			names = appendName(names, *obj.Name)
		}
	}

	return names, nil
}

func appendName(names []string, name string) []string {
	if name = strings.TrimSpace(name); name != "" {
		names = append(names, name)
	}

	return names
}
