package domain

import "time"

// Badge is an achievement earned once; re-earning it is a no-op.
type Badge struct {
	Name     string    `json:"name"`
	Icon     string    `json:"icon"`
	EarnedAt time.Time `json:"earnedAt"`
}

// BadgeSet is an ordered collection of badges unique by name, kept in earn order.
type BadgeSet []Badge

// Has reports whether a badge with name is present.
func (s BadgeSet) Has(name string) bool {
	for _, b := range s {
		if b.Name == name {
			return true
		}
	}
	return false
}

// Get returns the badge with name, if present.
func (s BadgeSet) Get(name string) (Badge, bool) {
	for _, b := range s {
		if b.Name == name {
			return b, true
		}
	}
	return Badge{}, false
}

// Merge unions earned into s by name. Entries already in s win over newly
// evaluated duplicates, so EarnedAt of an owned badge never changes. It returns
// the merged set and the badges that were actually added.
func (s BadgeSet) Merge(earned []Badge) (BadgeSet, []Badge) {
	merged := make(BadgeSet, len(s), len(s)+len(earned))
	copy(merged, s)
	var added []Badge
	for _, b := range earned {
		if merged.Has(b.Name) {
			continue
		}
		merged = append(merged, b)
		added = append(added, b)
	}
	return merged, added
}
