package views

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"
	"time"
)

// All is the filter sentinel meaning "no filter on this field".
const All = "all"

// SortKey names an ordering a schema knows how to apply.
type SortKey string

const (
	SortNewest     SortKey = "newest"
	SortOldest     SortKey = "oldest"
	SortMostVoted  SortKey = "upvotes"
	SortAmountHigh SortKey = "amount-high"
	SortAmountLow  SortKey = "amount-low"
	SortName       SortKey = "name"
)

var ErrInvalidCriteria = errors.New("invalid criteria")

// Criteria is everything the user can change about a list view.
type Criteria struct {
	Search  string            `json:"search,omitempty"`
	Filters map[string]string `json:"filters,omitempty"`
	From    *time.Time        `json:"from,omitempty"`
	To      *time.Time        `json:"to,omitempty"`
	Sort    SortKey           `json:"sort,omitempty"`
}

// Filter returns the active value for a facet, or "" when it is a pass-through.
func (c Criteria) Filter(facet string) string {
	v := strings.TrimSpace(c.Filters[facet])
	if strings.EqualFold(v, All) {
		return ""
	}
	return v
}

// Normalize drops pass-through values so that equivalent criteria compare equal.
func (c Criteria) Normalize() Criteria {
	out := Criteria{Search: strings.TrimSpace(c.Search), From: c.From, To: c.To, Sort: c.Sort}
	for facet := range c.Filters {
		if v := c.Filter(facet); v != "" {
			if out.Filters == nil {
				out.Filters = make(map[string]string)
			}
			out.Filters[facet] = v
		}
	}
	return out
}

// Fingerprint identifies the criteria for change detection.
func (c Criteria) Fingerprint() string {
	n := c.Normalize()
	var b strings.Builder
	b.WriteString("q=" + strings.ToLower(n.Search))
	for _, facet := range slices.Sorted(maps.Keys(n.Filters)) {
		b.WriteString(";" + facet + "=" + strings.ToLower(n.Filters[facet]))
	}
	if n.From != nil {
		b.WriteString(";from=" + n.From.UTC().Format(time.RFC3339))
	}
	if n.To != nil {
		b.WriteString(";to=" + n.To.UTC().Format(time.RFC3339))
	}
	b.WriteString(";sort=" + string(n.Sort))
	return b.String()
}

// ParseCriteria reads criteria from query parameters. Only the named facets
// are recognised; "from"/"to" take YYYY-MM-DD or RFC 3339, and a bare date in
// "to" covers that whole day.
func ParseCriteria(q url.Values, facets ...string) (Criteria, error) {
	c := Criteria{
		Search: q.Get("search"),
		Sort:   SortKey(strings.ToLower(strings.TrimSpace(q.Get("sort")))),
	}
	for _, facet := range facets {
		if v := q.Get(facet); v != "" {
			if c.Filters == nil {
				c.Filters = make(map[string]string)
			}
			c.Filters[facet] = v
		}
	}

	var err error
	if c.From, err = parseBound(q.Get("from"), false); err != nil {
		return Criteria{}, err
	}
	if c.To, err = parseBound(q.Get("to"), true); err != nil {
		return Criteria{}, err
	}
	if c.From != nil && c.To != nil && c.From.After(*c.To) {
		return Criteria{}, fmt.Errorf("%w: from is after to", ErrInvalidCriteria)
	}
	return c, nil
}

func parseBound(s string, endOfDay bool) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("%w: bad date %q", ErrInvalidCriteria, s)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
