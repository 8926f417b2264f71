package locations

import (
	"fmt"
	"strings"

	"hacktown/pkg/utils"
)

// DuplicateAlias reports an alias claimed by more than one entry.
type DuplicateAlias struct {
	Alias  string
	Winner string
	Loser  string
}

func (d DuplicateAlias) String() string {
	return fmt.Sprintf("alias %q is claimed by %q and %q (%q wins)", d.Alias, d.Winner, d.Loser, d.Winner)
}

// DuplicateAliases lists every alias that normalizes to a key already
// claimed by an earlier entry, in document order.
func (m *Mapping) DuplicateAliases() []DuplicateAlias {
	helper := utils.NewStringHelper()
	owner := make(map[string]string)

	var dups []DuplicateAlias

	for _, e := range m.Entries {
		for _, name := range e.PossibleNames {
			key := helper.FoldKey(name)

			first, taken := owner[key]
			if !taken {
				owner[key] = e.ID
				continue
			}

			if first == e.ID {
				continue
			}

			dups = append(dups, DuplicateAlias{Alias: name, Winner: first, Loser: e.ID})
		}
	}

	return dups
}

// Validate returns ErrConfigInvalid when any alias is ambiguous.
func (m *Mapping) Validate() error {
	dups := m.DuplicateAliases()
	if len(dups) == 0 {
		return nil
	}

	msgs := make([]string, 0, len(dups))
	for _, d := range dups {
		msgs = append(msgs, d.String())
	}

	return fmt.Errorf("%w: %d duplicate aliases: %s", ErrConfigInvalid, len(dups), strings.Join(msgs, "; "))
}
