// Package views derives the visible, ordered subset of a fetched collection
// from the user's search, filter, date-range and sort criteria.
package views

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

// Schema describes how one entity type is searched, filtered and ordered.
type Schema[T any] struct {
	// SearchFields returns the text matched case-insensitively by the search term.
	SearchFields func(T) []string
	// Facets maps a filter name to the value it is compared against (case-insensitive).
	Facets map[string]func(T) string
	// Canon optionally rewrites a requested filter value into the form Facets returns.
	Canon map[string]func(string) string
	// Timestamp is the field the date range applies to.
	Timestamp func(T) time.Time
	// Sorts maps each supported sort key to a comparator.
	Sorts       map[SortKey]func(a, b T) int
	DefaultSort SortKey
	// Pin, when set, floats matching items ahead of the rest whatever the sort.
	Pin func(T) bool
}

// FacetNames lists the filters the schema recognises.
func (s Schema[T]) FacetNames() []string {
	names := make([]string, 0, len(s.Facets))
	for name := range s.Facets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// SortKeyFor resolves the requested sort, falling back to the default.
func (s Schema[T]) SortKeyFor(key SortKey) SortKey {
	if _, ok := s.Sorts[key]; ok {
		return key
	}
	return s.DefaultSort
}

// Build returns a new slice holding the items that match c in display order.
// items is never modified.
func (s Schema[T]) Build(items []T, c Criteria) []T {
	c = c.Normalize()
	term := strings.ToLower(c.Search)

	out := make([]T, 0, len(items))
	for _, item := range items {
		if s.matches(item, c, term) {
			out = append(out, item)
		}
	}

	less := s.Sorts[s.SortKeyFor(c.Sort)]
	slices.SortStableFunc(out, func(a, b T) int {
		if s.Pin != nil {
			if pa, pb := s.Pin(a), s.Pin(b); pa != pb {
				if pa {
					return -1
				}
				return 1
			}
		}
		if less == nil {
			return 0
		}
		return less(a, b)
	})
	return out
}

func (s Schema[T]) matches(item T, c Criteria, term string) bool {
	if term != "" && s.SearchFields != nil {
		found := false
		for _, field := range s.SearchFields(item) {
			if strings.Contains(strings.ToLower(field), term) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	for facet, want := range c.Filters {
		get, ok := s.Facets[facet]
		if !ok {
			continue
		}
		if canon, ok := s.Canon[facet]; ok {
			want = canon(want)
		}
		if !strings.EqualFold(strings.TrimSpace(get(item)), want) {
			return false
		}
	}

	if s.Timestamp != nil && (c.From != nil || c.To != nil) {
		ts := s.Timestamp(item)
		if c.From != nil && ts.Before(*c.From) {
			return false
		}
		if c.To != nil && ts.After(*c.To) {
			return false
		}
	}
	return true
}

func newestFirst[T any](ts func(T) time.Time) func(a, b T) int {
	return func(a, b T) int { return ts(b).Compare(ts(a)) }
}

func oldestFirst[T any](ts func(T) time.Time) func(a, b T) int {
	return func(a, b T) int { return ts(a).Compare(ts(b)) }
}

func descending[T any, V cmp.Ordered](v func(T) V) func(a, b T) int {
	return func(a, b T) int { return cmp.Compare(v(b), v(a)) }
}

func ascending[T any, V cmp.Ordered](v func(T) V) func(a, b T) int {
	return func(a, b T) int { return cmp.Compare(v(a), v(b)) }
}
