package models

import (
	"encoding/json"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IssueCategory enum
type IssueCategory string

const (
	Road        IssueCategory = "Road"
	Water       IssueCategory = "Water"
	Sanitation  IssueCategory = "Sanitation"
	Electricity IssueCategory = "Electricity"
	Streetlight IssueCategory = "Streetlight"
	Footpath    IssueCategory = "Footpath"
	Other       IssueCategory = "Other"
)

var IssueCategories = []IssueCategory{Road, Water, Sanitation, Electricity, Streetlight, Footpath, Other}

// ParseIssueCategory maps free-form upstream values onto the known categories.
// Anything unrecognised becomes Other.
func ParseIssueCategory(s string) IssueCategory {
	for _, c := range IssueCategories {
		if strings.EqualFold(string(c), strings.TrimSpace(s)) {
			return c
		}
	}
	return Other
}

// IsKnownCategory reports whether s names a category exactly as the UI offers it.
func IsKnownCategory(s string) bool {
	for _, c := range IssueCategories {
		if strings.EqualFold(string(c), strings.TrimSpace(s)) {
			return true
		}
	}
	return false
}

func (c *IssueCategory) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*c = ParseIssueCategory(s)
	return nil
}

// IssueStatus enum
type IssueStatus string

const (
	Pending       IssueStatus = "Pending"
	InProgress    IssueStatus = "In-Progress"
	Working       IssueStatus = "Working"
	Resolved      IssueStatus = "Resolved"
	Closed        IssueStatus = "Closed"
	Rejected      IssueStatus = "Rejected"
	UnknownStatus IssueStatus = "Unknown"
)

var IssueStatuses = []IssueStatus{Pending, InProgress, Working, Resolved, Closed, Rejected}

// ParseIssueStatus is lenient about case and separators ("in progress",
// "In-Progress" and "in_progress" are the same status).
func ParseIssueStatus(s string) IssueStatus {
	norm := normalizeToken(s)
	for _, st := range IssueStatuses {
		if normalizeToken(string(st)) == norm {
			return st
		}
	}
	return UnknownStatus
}

func (s *IssueStatus) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s = ParseIssueStatus(raw)
	return nil
}

// Next returns the status a staff member moves the issue to from s, if any.
func (s IssueStatus) Next() (IssueStatus, bool) {
	switch s {
	case Pending:
		return InProgress, true
	case InProgress:
		return Working, true
	case Working:
		return Resolved, true
	case Resolved:
		return Closed, true
	}
	return s, false
}

// Open reports whether the issue still needs work.
func (s IssueStatus) Open() bool {
	return s == Pending || s == InProgress || s == Working
}

// Priority enum
type Priority string

const (
	High            Priority = "High"
	Normal          Priority = "Normal"
	UnknownPriority Priority = "Unknown"
)

func ParsePriority(s string) Priority {
	switch normalizeToken(s) {
	case "high":
		return High
	case "normal", "":
		return Normal
	}
	return UnknownPriority
}

func (p *Priority) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*p = ParsePriority(raw)
	return nil
}

// TimelineAction enum
type TimelineAction string

const (
	ActionReported      TimelineAction = "Reported"
	ActionAssigned      TimelineAction = "Assigned"
	ActionStatusChanged TimelineAction = "Status Changed"
	ActionBoosted       TimelineAction = "Boosted"
	ActionRejected      TimelineAction = "Rejected"
	ActionClosed        TimelineAction = "Closed"
	ActionOther         TimelineAction = "Other"
)

var timelineActions = []TimelineAction{ActionReported, ActionAssigned, ActionStatusChanged, ActionBoosted, ActionRejected, ActionClosed}

func ParseTimelineAction(s string) TimelineAction {
	norm := normalizeToken(s)
	for _, a := range timelineActions {
		if normalizeToken(string(a)) == norm {
			return a
		}
	}
	return ActionOther
}

func (a *TimelineAction) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*a = ParseTimelineAction(raw)
	return nil
}

// TimelineEntry is one append-only record of a state-changing action on an issue.
type TimelineEntry struct {
	Action TimelineAction `json:"action"`
	Status IssueStatus    `json:"status,omitempty"`
	Note   string         `json:"note"`
	At     time.Time      `json:"at"`
	By     string         `json:"by"`
}

// Identity is the name/email/id triple the API embeds for reporters and staff.
type Identity struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Issue represents a civic issue reported by a user
type Issue struct {
	ID              primitive.ObjectID  `json:"_id"`
	Title           string              `json:"title"`
	Description     string              `json:"description"`
	Category        IssueCategory       `json:"category"`
	Status          IssueStatus         `json:"status"`
	Priority        Priority            `json:"priority"`
	Location        string              `json:"location"`
	Images          []string            `json:"images"`
	Reporter        Identity            `json:"reporter"`
	UpVotes         int                 `json:"upVotes"`
	Upvoters        []string            `json:"isUpvoted"`
	IsBoosted       bool                `json:"isBoosted"`
	AssignedStaffID *primitive.ObjectID `json:"assignedStaffId,omitempty"`
	AssignedStaff   *Identity           `json:"assignedStaff,omitempty"`
	Timeline        []TimelineEntry     `json:"timeline"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

// HasUpvoted reports whether email is already in the upvoter set.
func (i Issue) HasUpvoted(email string) bool {
	for _, e := range i.Upvoters {
		if strings.EqualFold(e, email) {
			return true
		}
	}
	return false
}

// ReportedBy reports whether email is the reporter of the issue.
func (i Issue) ReportedBy(email string) bool {
	return email != "" && strings.EqualFold(i.Reporter.Email, email)
}

// Editable is true only while the issue is Pending.
func (i Issue) Editable() bool {
	return i.Status == Pending
}

// IsAssigned reports whether a staff member has been attached to the issue.
func (i Issue) IsAssigned() bool {
	return i.AssignedStaffID != nil && !i.AssignedStaffID.IsZero()
}

func normalizeToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("-", "", "_", "", " ", "").Replace(s)
}
