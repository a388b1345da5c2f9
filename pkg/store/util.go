package store

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// NewID mints a public markup id. Both backends use it so ids look the
// same regardless of where a record was created.
func NewID() (string, error) {
	return gonanoid.New()
}

// DedupeStrings returns in with empty values and duplicates removed,
// preserving first-seen order.
func DedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
