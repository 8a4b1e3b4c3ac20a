package store

import (
	"slices"

	"github.com/hylla/ansok/internal/domain"
)

// GroupBy selects which raw submission field drives grouping.
type GroupBy string

// Supported grouping fields.
const (
	GroupByRound  GroupBy = "round"
	GroupByStatus GroupBy = "status"
)

// GroupSpec maps one display group onto the raw field values it collects.
// Several raw values may fold into one group.
type GroupSpec struct {
	Key     string
	Display string
	Values  []string
}

// Group is one ordered, non-empty slice of the grouped listing.
type Group struct {
	Key         string
	Display     string
	Submissions []domain.Submission
}

// GroupSubmissions partitions a flat listing into the ordered groups the
// specs describe. Input is sorted by id ascending first so group contents
// have a stable secondary order regardless of fetch interleaving. Raw values
// the specs do not mention are silently excluded; the records stay cached,
// they just do not render. Empty groups are dropped.
func GroupSubmissions(subs []domain.Submission, groupBy GroupBy, specs []GroupSpec) []Group {
	sorted := make([]domain.Submission, len(subs))
	copy(sorted, subs)
	slices.SortStableFunc(sorted, func(a, b domain.Submission) int {
		return a.ID - b.ID
	})

	byValue := map[string][]domain.Submission{}
	for _, sub := range sorted {
		value := rawGroupValue(sub, groupBy)
		byValue[value] = append(byValue[value], sub)
	}

	groups := make([]Group, 0, len(specs))
	for _, spec := range specs {
		members := make([]domain.Submission, 0)
		for _, value := range spec.Values {
			members = append(members, byValue[value]...)
		}
		if len(members) == 0 {
			continue
		}
		groups = append(groups, Group{
			Key:         spec.Key,
			Display:     spec.Display,
			Submissions: members,
		})
	}
	return groups
}

func rawGroupValue(sub domain.Submission, groupBy GroupBy) string {
	switch groupBy {
	case GroupByStatus:
		return string(sub.Status)
	default:
		return sub.RawRound()
	}
}

// Autoselect guards the select-first-visible-item policy: the selection
// callback fires exactly once, on the transition from no-active-item to
// computed-groups. Without the guard the selection would retrigger on every
// recompute, since selecting an item itself updates state.
type Autoselect struct {
	fired bool
}

// Reset re-arms the guard, typically when the listing key changes.
func (a *Autoselect) Reset() {
	a.fired = false
}

// Choose invokes onSelect with the first item of the first non-empty group if
// no item is active and the guard has not fired. It reports whether a
// selection was made. An already-active item trips the guard without
// selecting.
func (a *Autoselect) Choose(groups []Group, activeID int, onSelect func(domain.Submission)) bool {
	if a == nil || a.fired {
		return false
	}
	if activeID != 0 {
		a.fired = true
		return false
	}
	if len(groups) == 0 || len(groups[0].Submissions) == 0 {
		return false
	}
	a.fired = true
	if onSelect != nil {
		onSelect(groups[0].Submissions[0])
	}
	return true
}
