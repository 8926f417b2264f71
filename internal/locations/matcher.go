package locations

import "hacktown/pkg/utils"

// Resolution is the outcome of matching one raw location string.
type Resolution struct {
	Raw      string
	Entry    Entry
	Unmapped bool
}

// Matcher resolves raw location strings against a Mapping.
// It is immutable after construction and safe for concurrent use.
type Matcher struct {
	index   map[string]Entry
	strings *utils.StringHelper
}

// NewMatcher indexes every alias of m. On duplicates the first entry wins.
func NewMatcher(m *Mapping) *Matcher {
	matcher := &Matcher{
		index:   make(map[string]Entry),
		strings: utils.NewStringHelper(),
	}

	if m == nil {
		return matcher
	}

	for _, e := range m.Entries {
		for _, name := range e.PossibleNames {
			key := matcher.strings.FoldKey(name)
			if _, taken := matcher.index[key]; taken {
				continue
			}

			matcher.index[key] = e
		}
	}

	return matcher
}

// Resolve maps raw to its canonical entry. A miss is not an error: the
// result is marked Unmapped and carries the original string.
func (m *Matcher) Resolve(raw string) Resolution {
	key := m.strings.FoldKey(raw)
	if key == "" {
		return Resolution{Raw: raw, Unmapped: true}
	}

	entry, ok := m.index[key]
	if !ok {
		return Resolution{Raw: raw, Unmapped: true}
	}

	return Resolution{Raw: raw, Entry: entry}
}

// Aliases returns the number of distinct normalized aliases.
func (m *Matcher) Aliases() int {
	return len(m.index)
}
