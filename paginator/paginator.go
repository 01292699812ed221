// Package paginator slices a derived view into fixed-size pages.
package paginator

import (
	"errors"
	"fmt"
	"slices"
)

// VisiblePages is how many page links are shown before the window collapses
// into first/last plus ellipses.
const VisiblePages = 5

var ErrPageSize = errors.New("page size not allowed")

// Page sizes offered by each kind of view.
var (
	IssuePageSizes   = []int{6, 9, 12, 15}
	PaymentPageSizes = []int{5, 10, 25, 50}
	UserPageSizes    = []int{5, 10, 25, 50}
	StaffPageSizes   = []int{5, 10, 25}
)

// Paginator tracks the current page of one list view. It is not safe for
// concurrent use; the owning view state serialises access.
type Paginator struct {
	allowed     []int
	pageSize    int
	current     int
	total       int
	fingerprint string
}

// New starts at page 1 with defaultSize, which must be one of allowed.
func New(allowed []int, defaultSize int) *Paginator {
	if !slices.Contains(allowed, defaultSize) {
		defaultSize = allowed[0]
	}
	return &Paginator{allowed: slices.Clone(allowed), pageSize: defaultSize, current: 1}
}

// Sync records the size of the derived view and the criteria that produced
// it. A change of criteria returns to page 1, and so does a current page that
// no longer holds any items.
func (p *Paginator) Sync(total int, fingerprint string) {
	if total < 0 {
		total = 0
	}
	p.total = total
	if fingerprint != p.fingerprint {
		p.fingerprint = fingerprint
		p.current = 1
	}
	if (p.current-1)*p.pageSize >= p.total {
		p.current = 1
	}
}

// SetPageSize switches to one of the allowed sizes and returns to page 1.
func (p *Paginator) SetPageSize(size int) error {
	if !slices.Contains(p.allowed, size) {
		return fmt.Errorf("%w: %d (allowed %v)", ErrPageSize, size, p.allowed)
	}
	if size != p.pageSize {
		p.pageSize = size
		p.current = 1
	}
	return nil
}

func (p *Paginator) PageSize() int { return p.pageSize }
func (p *Paginator) Current() int { return p.current }
func (p *Paginator) Total() int { return p.total }
func (p *Paginator) AllowedSizes() []int { return slices.Clone(p.allowed) }

// TotalPages is ceil(total / pageSize).
func (p *Paginator) TotalPages() int {
	return (p.total + p.pageSize - 1) / p.pageSize
}

func (p *Paginator) lastPage() int {
	if n := p.TotalPages(); n > 0 {
		return n
	}
	return 1
}

// GoTo jumps to page n. Pages outside [1, TotalPages] are ignored and GoTo
// reports false.
func (p *Paginator) GoTo(n int) bool {
	if n < 1 || n > p.lastPage() {
		return false
	}
	p.current = n
	return true
}

func (p *Paginator) First() bool { return p.GoTo(1) }
func (p *Paginator) Last() bool { return p.GoTo(p.lastPage()) }
func (p *Paginator) Next() bool { return p.GoTo(p.current + 1) }
func (p *Paginator) Prev() bool { return p.GoTo(p.current - 1) }

// Bounds returns the half-open index range of the current page.
func (p *Paginator) Bounds() (start, end int) {
	start = min((p.current-1)*p.pageSize, p.total)
	end = min(start+p.pageSize, p.total)
	return start, end
}

// Slice returns the items of the current page.
func Slice[T any](p *Paginator, items []T) []T {
	start, end := p.Bounds()
	start, end = min(start, len(items)), min(end, len(items))
	return items[start:end]
}

// Link is one entry of the page-number bar; Ellipsis entries carry no number.
type Link struct {
	Page     int  `json:"page,omitempty"`
	Ellipsis bool `json:"ellipsis,omitempty"`
	Current  bool `json:"current,omitempty"`
}

// Window lays out page links for current out of total pages. When total
// exceeds visible the first and last page are always shown, with a run of
// visible-2 pages centred on current and ellipses over the gaps.
func Window(current, total, visible int) []Link {
	if total <= 0 {
		return []Link{}
	}
	link := func(n int) Link { return Link{Page: n, Current: n == current} }

	if total <= visible {
		links := make([]Link, 0, total)
		for n := 1; n <= total; n++ {
			links = append(links, link(n))
		}
		return links
	}

	span := max(visible-2, 1)
	start := current - span/2
	end := start + span - 1
	if start < 2 {
		start, end = 2, 1+span
	}
	if end > total-1 {
		end = total - 1
		start = end - span + 1
	}

	links := []Link{link(1)}
	if start > 2 {
		links = append(links, Link{Ellipsis: true})
	}
	for n := start; n <= end; n++ {
		links = append(links, link(n))
	}
	if end < total-1 {
		links = append(links, Link{Ellipsis: true})
	}
	return append(links, link(total))
}

// Meta is the page metadata rendered next to a list.
type Meta struct {
	Page        int    `json:"page"`
	PageSize    int    `json:"pageSize"`
	PageSizes   []int  `json:"pageSizes"`
	TotalItems  int    `json:"totalItems"`
	TotalPages  int    `json:"totalPages"`
	HasPrevious bool   `json:"hasPrevious"`
	HasNext     bool   `json:"hasNext"`
	Links       []Link `json:"links"`
}

func (p *Paginator) Meta() Meta {
	total := p.TotalPages()
	return Meta{
		Page:        p.current,
		PageSize:    p.pageSize,
		PageSizes:   p.AllowedSizes(),
		TotalItems:  p.total,
		TotalPages:  total,
		HasPrevious: p.current > 1,
		HasNext:     p.current < total,
		Links:       Window(p.current, total, VisiblePages),
	}
}
