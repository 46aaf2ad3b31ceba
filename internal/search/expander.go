package search

import (
	"sort"
	"strings"
)

// QueryExpander rewrites a query into variants using the travel synonym
// table. Customers and documents rarely share vocabulary ("多少钱" vs the
// product sheet's "价格"), so each variant is embedded and searched
// separately and the results pooled.
type QueryExpander struct {
	synonyms    map[string][]string
	maxVariants int
}

// QueryExpanderOption configures the expander.
type QueryExpanderOption func(*QueryExpander)

// WithMaxVariants caps the number of variants produced, original included.
func WithMaxVariants(n int) QueryExpanderOption {
	return func(e *QueryExpander) {
		e.maxVariants = n
	}
}

// WithSynonyms adds custom synonym mappings on top of the default table.
func WithSynonyms(synonyms map[string][]string) QueryExpanderOption {
	return func(e *QueryExpander) {
		for k, v := range synonyms {
			e.synonyms[k] = append(e.synonyms[k], v...)
		}
	}
}

// NewQueryExpander creates an expander seeded with the travel synonym table.
func NewQueryExpander(opts ...QueryExpanderOption) *QueryExpander {
	e := &QueryExpander{
		synonyms:    make(map[string][]string, len(TravelSynonyms)),
		maxVariants: 4,
	}
	for k, v := range TravelSynonyms {
		e.synonyms[k] = v
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand returns the query plus substitution variants, original first.
// Each table key found in the query produces variants with that key
// replaced by its synonyms. Longer keys are substituted first so "签证材料"
// wins over "签证" when both match.
func (e *QueryExpander) Expand(query string) []string {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	variants := []string{query}
	seen := map[string]struct{}{query: {}}

	keys := make([]string, 0, len(e.synonyms))
	for k := range e.synonyms {
		if strings.Contains(query, k) {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	for _, key := range keys {
		for _, syn := range e.synonyms[key] {
			if len(variants) >= e.maxVariants {
				return variants
			}
			v := strings.Replace(query, key, syn, 1)
			if _, ok := seen[v]; ok {
				continue
			}
			variants = append(variants, v)
			seen[v] = struct{}{}
		}
	}

	return variants
}
