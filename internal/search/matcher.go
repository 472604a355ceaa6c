package search

import (
	"sort"
	"strings"

	"storelocator-service/internal/models"

	"github.com/agnivade/levenshtein"
)

// MatcherConfig bounds the approximate matching: Threshold is the maximum
// normalized edit distance (0 exact, 1 unrelated) for a field to count as a
// match, MaxDistance caps the raw edit distance regardless of length.
type MatcherConfig struct {
	Threshold   float64
	MaxDistance int
}

// DefaultMatcherConfig mirrors the storefront's search tuning.
var DefaultMatcherConfig = MatcherConfig{
	Threshold:   0.2,
	MaxDistance: 3,
}

// Matcher ranks stores against a free-text query by approximate matching
// over name, address lines, city, and id.
type Matcher struct {
	cfg MatcherConfig
}

// NewMatcher creates a matcher; zero-value config fields fall back to the
// defaults.
func NewMatcher(cfg MatcherConfig) *Matcher {
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultMatcherConfig.Threshold
	}
	if cfg.MaxDistance == 0 {
		cfg.MaxDistance = DefaultMatcherConfig.MaxDistance
	}
	return &Matcher{cfg: cfg}
}

// Rank returns the stores matching query, best score first. Ties keep input
// order (stable sort).
func (m *Matcher) Rank(query string, stores []models.Store) []models.Store {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	type scored struct {
		store models.Store
		score float64
	}

	matches := make([]scored, 0, len(stores))
	for _, store := range stores {
		score, ok := m.scoreStore(query, store)
		if ok {
			matches = append(matches, scored{store: store, score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score < matches[j].score
	})

	ranked := make([]models.Store, len(matches))
	for i, s := range matches {
		ranked[i] = s.store
	}
	return ranked
}

// scoreStore returns the best field score for the store and whether any
// field cleared the threshold.
func (m *Matcher) scoreStore(query string, store models.Store) (float64, bool) {
	fields := []string{store.Name, store.Address1, store.Address2, store.City, store.ID}

	best := 1.0
	matched := false
	for _, field := range fields {
		if field == "" {
			continue
		}
		score, ok := m.scoreField(query, strings.ToLower(field))
		if ok && score < best {
			best = score
			matched = true
		}
	}
	return best, matched
}

// scoreField compares the query against the whole field, each word, and
// each word's prefix of the query's length, so partial typing still matches.
func (m *Matcher) scoreField(query, field string) (float64, bool) {
	candidates := []string{field}
	for _, word := range strings.Fields(field) {
		candidates = append(candidates, word)
		if len(word) > len(query) {
			candidates = append(candidates, word[:len(query)])
		}
	}

	best := 1.0
	matched := false
	for _, candidate := range candidates {
		dist := levenshtein.ComputeDistance(query, candidate)
		if dist > m.cfg.MaxDistance {
			continue
		}
		norm := normalize(dist, len(query), len(candidate))
		if norm <= m.cfg.Threshold && norm < best {
			best = norm
			matched = true
		}
	}
	return best, matched
}

func normalize(dist, lenA, lenB int) float64 {
	longest := lenA
	if lenB > longest {
		longest = lenB
	}
	if longest == 0 {
		return 0
	}
	return float64(dist) / float64(longest)
}
