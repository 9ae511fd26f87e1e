package chunk

import "sort"

// Availability records which modules' code a chunk group may assume is
// already emitted by a prior, shared group. Values are immutable: With
// returns a new baseline, existing ones are never mutated in place.
type Availability struct {
	modules map[string]struct{}
}

// RootAvailability is the empty baseline: nothing is assumed loaded.
func RootAvailability() *Availability {
	return &Availability{modules: map[string]struct{}{}}
}

// Has reports whether the module's code is already covered.
func (a *Availability) Has(moduleID string) bool {
	_, ok := a.modules[moduleID]
	return ok
}

// With returns a new baseline extended by the given module identities.
func (a *Availability) With(moduleIDs []string) *Availability {
	next := make(map[string]struct{}, len(a.modules)+len(moduleIDs))
	for id := range a.modules {
		next[id] = struct{}{}
	}
	for _, id := range moduleIDs {
		next[id] = struct{}{}
	}
	return &Availability{modules: next}
}

// Len returns the number of covered modules.
func (a *Availability) Len() int { return len(a.modules) }

// Modules returns the covered module identities in sorted order.
func (a *Availability) Modules() []string {
	ids := make([]string, 0, len(a.modules))
	for id := range a.modules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
