package form

import "sort"

// Tracking is the required/filled bookkeeping of one attempt. It is a value:
// every update returns a new Tracking and leaves the receiver untouched, so a
// fresh zero value per attempt is all the isolation needed.
type Tracking struct {
	required map[string]struct{}
	filled   map[string]struct{}
}

func cloneSet(s map[string]struct{}, extra int) map[string]struct{} {
	out := make(map[string]struct{}, len(s)+extra)
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// WithRequired returns a copy with ids added to the required set.
func (t Tracking) WithRequired(ids ...string) Tracking {
	next := Tracking{required: cloneSet(t.required, len(ids)), filled: t.filled}
	for _, id := range ids {
		if id != "" {
			next.required[id] = struct{}{}
		}
	}
	return next
}

// WithFilled returns a copy with ids added to the filled set.
func (t Tracking) WithFilled(ids ...string) Tracking {
	next := Tracking{required: t.required, filled: cloneSet(t.filled, len(ids))}
	for _, id := range ids {
		if id != "" {
			next.filled[id] = struct{}{}
		}
	}
	return next
}

// IsFilled reports whether id has been filled.
func (t Tracking) IsFilled(id string) bool {
	_, ok := t.filled[id]
	return ok
}

// Required returns the required identifiers, sorted.
func (t Tracking) Required() []string { return sortedKeys(t.required) }

// Filled returns the filled identifiers, sorted.
func (t Tracking) Filled() []string { return sortedKeys(t.filled) }

// MissingRequired is Required minus Filled, sorted. Only meaningful after
// the whole fill pass has run.
func (t Tracking) MissingRequired() []string {
	missing := make([]string, 0, len(t.required))
	for id := range t.required {
		if _, ok := t.filled[id]; !ok {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	return missing
}

func sortedKeys(s map[string]struct{}) []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
