package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"civicsync-fe/cache"
	"civicsync-fe/middlewares"
	"civicsync-fe/paginator"
	"civicsync-fe/views"
)

// listView is one paginated list a session can show.
type listView struct {
	name        string
	sizes       []int
	defaultSize int
}

var (
	publicIssuesView   = listView{"allIssues", paginator.IssuePageSizes, 9}
	myIssuesView       = listView{"myIssues", paginator.IssuePageSizes, 6}
	assignedIssuesView = listView{"assignedIssues", paginator.IssuePageSizes, 9}
	myPaymentsView     = listView{"myPayments", paginator.PaymentPageSizes, 10}
	adminIssuesView    = listView{"adminIssues", paginator.IssuePageSizes, 12}
	adminPaymentsView  = listView{"adminPayments", paginator.PaymentPageSizes, 10}
	adminUsersView     = listView{"adminUsers", paginator.UserPageSizes, 10}
	adminStaffView     = listView{"adminStaff", paginator.StaffPageSizes, 10}
)

// listResponse is the body every list endpoint returns.
type listResponse[R any] struct {
	Items    []R            `json:"items"`
	Criteria views.Criteria `json:"criteria"`
	Page     paginator.Meta `json:"page"`
	Loading  bool           `json:"loading"`
	// Error is set when the last fetch failed; Items then hold the last-known data.
	Error string `json:"error,omitempty"`
}

// renderList runs the fetched collection through the view builder and the
// session's paginator for this list, then maps each visible item to a row.
func renderList[T, R any](c *gin.Context, lv listView, schema views.Schema[T], st cache.State[T], row func(T) R) {
	if errors.Is(st.Err, cache.ErrDiscarded) {
		c.Abort()
		return
	}
	if st.IsError && len(st.Data) == 0 {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Could not load the list", "detail": st.Err.Error(), "retry": true})
		return
	}

	q := c.Request.URL.Query()
	crit, err := views.ParseCriteria(q, schema.FacetNames()...)
	if err != nil {
		respondError(c, err)
		return
	}
	crit.Sort = schema.SortKeyFor(crit.Sort)
	derived := schema.Build(st.Data, crit)

	var visible []T
	var meta paginator.Meta
	ws := middlewares.CurrentSession(c).Workspace
	err = ws.WithPager(lv.name, lv.sizes, lv.defaultSize, func(p *paginator.Paginator) error {
		if raw := q.Get("pageSize"); raw != "" {
			size, err := strconv.Atoi(raw)
			if err != nil {
				return fmt.Errorf("%w: %q", paginator.ErrPageSize, raw)
			}
			if err := p.SetPageSize(size); err != nil {
				return err
			}
		}
		// changed criteria reset to page 1 first; an explicit page in the
		// same request is then applied to the new result
		p.Sync(len(derived), crit.Fingerprint())
		navigate(p, q.Get("page"))
		visible = paginator.Slice(p, derived)
		meta = p.Meta()
		return nil
	})
	if err != nil {
		respondError(c, err)
		return
	}

	resp := listResponse[R]{
		Items:    make([]R, 0, len(visible)),
		Criteria: crit.Normalize(),
		Page:     meta,
		Loading:  st.IsLoading,
	}
	for _, item := range visible {
		resp.Items = append(resp.Items, row(item))
	}
	if st.IsError {
		resp.Error = st.Err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// navigate applies a page request: a number or first/prev/next/last.
// Anything out of range leaves the page unchanged.
func navigate(p *paginator.Paginator, page string) {
	switch page {
	case "":
	case "first":
		p.First()
	case "prev":
		p.Prev()
	case "next":
		p.Next()
	case "last":
		p.Last()
	default:
		if n, err := strconv.Atoi(page); err == nil {
			p.GoTo(n)
		}
	}
}

func identity[T any](v T) T { return v }
