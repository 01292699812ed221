package mutations

import (
	"errors"
	"strings"

	"civicsync-fe/models"
)

// Kind groups rejections by how the caller should present them.
type Kind int

const (
	KindUnauthenticated Kind = iota
	KindForbidden
	KindConflict
	KindUnprocessable
)

// Rejection is a business-rule failure detected before any network call.
type Rejection struct {
	Kind   Kind
	Reason string
}

func (r *Rejection) Error() string { return r.Reason }

var (
	ErrNotAuthenticated = &Rejection{KindUnauthenticated, "Please sign in to continue."}
	ErrBlocked          = &Rejection{KindForbidden, "Your account is blocked. Contact the authorities for support."}
	ErrNotOwner         = &Rejection{KindForbidden, "Only the reporter can change this issue."}
	ErrNotAssignee      = &Rejection{KindForbidden, "This issue is not assigned to you."}
	ErrSelfUpvote       = &Rejection{KindUnprocessable, "You cannot upvote your own issue."}
	ErrAlreadyUpvoted   = &Rejection{KindConflict, "You have already upvoted this issue."}
	ErrNotEditable      = &Rejection{KindUnprocessable, "Only pending issues can be changed."}
	ErrQuotaExceeded    = &Rejection{KindForbidden, "Free accounts can report a limited number of issues. Subscribe to report more."}
	ErrAlreadyBoosted   = &Rejection{KindConflict, "This issue is already boosted."}
	ErrAlreadyPremium   = &Rejection{KindConflict, "You are already a premium member."}
	ErrAlreadyAssigned  = &Rejection{KindConflict, "A staff member is already assigned to this issue."}
	ErrFinalStatus      = &Rejection{KindUnprocessable, "This issue cannot move to another status."}
	ErrSelfBlock        = &Rejection{KindUnprocessable, "You cannot block your own account."}
)

// AsRejection unwraps err into a Rejection, if it is one.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	ok := errors.As(err, &r)
	return r, ok
}

// Viewer is the signed-in account as far as the guards are concerned. The
// zero value is an anonymous visitor.
type Viewer struct {
	Email      string
	Name       string
	Role       models.Role
	Blocked    bool
	Premium    bool
	IssueCount int
}

func ViewerOf(u models.User) Viewer {
	return Viewer{
		Email:      strings.ToLower(u.Email),
		Name:       u.Name,
		Role:       u.Role,
		Blocked:    u.IsBlocked,
		Premium:    u.IsPremium,
		IssueCount: u.IssueCount,
	}
}

func (v Viewer) Authenticated() bool { return v.Email != "" }

func (v Viewer) active() error {
	if !v.Authenticated() {
		return ErrNotAuthenticated
	}
	if v.Blocked {
		return ErrBlocked
	}
	return nil
}

func CanReport(v Viewer, maxFreeIssues int) error {
	if err := v.active(); err != nil {
		return err
	}
	if !v.Premium && v.IssueCount >= maxFreeIssues {
		return ErrQuotaExceeded
	}
	return nil
}

func CanUpvote(v Viewer, issue models.Issue) error {
	if err := v.active(); err != nil {
		return err
	}
	if issue.ReportedBy(v.Email) {
		return ErrSelfUpvote
	}
	if issue.HasUpvoted(v.Email) {
		return ErrAlreadyUpvoted
	}
	return nil
}

func CanEdit(v Viewer, issue models.Issue) error {
	if err := v.active(); err != nil {
		return err
	}
	return ownPending(v, issue)
}

// CanDelete does not check the blocked flag: a blocked reporter may still
// withdraw their own pending issue.
func CanDelete(v Viewer, issue models.Issue) error {
	if !v.Authenticated() {
		return ErrNotAuthenticated
	}
	return ownPending(v, issue)
}

func CanBoost(v Viewer, issue models.Issue) error {
	if err := v.active(); err != nil {
		return err
	}
	if err := ownPending(v, issue); err != nil {
		return err
	}
	if issue.IsBoosted {
		return ErrAlreadyBoosted
	}
	return nil
}

func CanSubscribe(v Viewer) error {
	if err := v.active(); err != nil {
		return err
	}
	if v.Premium {
		return ErrAlreadyPremium
	}
	return nil
}

func CanAssign(issue models.Issue) error {
	if issue.Status != models.Pending {
		return ErrNotEditable
	}
	if issue.IsAssigned() {
		return ErrAlreadyAssigned
	}
	return nil
}

func CanReject(issue models.Issue) error {
	if issue.Status != models.Pending {
		return ErrNotEditable
	}
	return nil
}

func CanBlock(v Viewer, target models.User) error {
	if strings.EqualFold(v.Email, target.Email) {
		return ErrSelfBlock
	}
	return nil
}

// CanAdvance checks that a staff member may move issue to its next status.
func CanAdvance(v Viewer, issue models.Issue) (models.IssueStatus, error) {
	if !v.Authenticated() {
		return "", ErrNotAuthenticated
	}
	if issue.AssignedStaff == nil || !strings.EqualFold(issue.AssignedStaff.Email, v.Email) {
		return "", ErrNotAssignee
	}
	next, ok := issue.Status.Next()
	if !ok {
		return "", ErrFinalStatus
	}
	return next, nil
}

func ownPending(v Viewer, issue models.Issue) error {
	if !issue.ReportedBy(v.Email) {
		return ErrNotOwner
	}
	if !issue.Editable() {
		return ErrNotEditable
	}
	return nil
}

// Affordance is whether an action is offered and, if not, why.
type Affordance struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func Allow(err error) Affordance {
	if err == nil {
		return Affordance{Allowed: true}
	}
	return Affordance{Reason: err.Error()}
}
