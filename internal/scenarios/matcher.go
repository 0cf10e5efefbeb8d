package scenarios

import "context"

// Matcher resolves which active scenarios subscribe to a trigger key.
type Matcher struct {
	store *Store
}

// NewMatcher creates a matcher over the scenario store.
func NewMatcher(store *Store) *Matcher {
	return &Matcher{store: store}
}

// Match returns the active scenarios for a trigger key. The match set is
// deterministic for a given stored state: exact key equality, no time-based
// filtering, stable ordering. Disabled and draft scenarios never match,
// which is how operators stop new runs without aborting in-flight ones.
func (m *Matcher) Match(ctx context.Context, triggerKey string) ([]*Scenario, error) {
	return m.store.FindActiveByTriggerKey(ctx, triggerKey)
}
