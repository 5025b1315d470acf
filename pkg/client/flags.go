package client

import (
	"sort"

	"github.com/dmitrymomot/flagkit/pkg/evaluation"
)

// Flags is an evaluated snapshot for one context, keyed by flag key.
type Flags map[string]evaluation.Result

// IsEnabled reports whether flagKey evaluated to enabled. Unknown flags
// are disabled.
func (f Flags) IsEnabled(flagKey string) bool {
	res, ok := f[flagKey]
	return ok && res.Enabled
}

// Get returns the full evaluation result for flagKey.
func (f Flags) Get(flagKey string) (evaluation.Result, bool) {
	res, ok := f[flagKey]
	return res, ok
}

// Enabled returns the keys of all enabled flags, sorted.
func (f Flags) Enabled() []string {
	keys := make([]string, 0, len(f))
	for key, res := range f {
		if res.Enabled {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Check reports the enabled state for each requested flag key.
func (f Flags) Check(flagKeys ...string) map[string]bool {
	states := make(map[string]bool, len(flagKeys))
	for _, key := range flagKeys {
		states[key] = f.IsEnabled(key)
	}
	return states
}
