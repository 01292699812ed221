package views

import (
	"strings"
	"time"

	"civicsync-fe/models"
)

func issueCreated(i models.Issue) time.Time { return i.CreatedAt }

// Issues orders boosted issues first; the active sort applies within each group.
var Issues = Schema[models.Issue]{
	SearchFields: func(i models.Issue) []string {
		return []string{i.Title, i.Description, i.Location}
	},
	Facets: map[string]func(models.Issue) string{
		"status":   func(i models.Issue) string { return string(i.Status) },
		"category": func(i models.Issue) string { return string(i.Category) },
		"priority": func(i models.Issue) string { return string(i.Priority) },
		"staff": func(i models.Issue) string {
			if !i.IsAssigned() {
				return "unassigned"
			}
			return i.AssignedStaffID.Hex()
		},
	},
	Canon: map[string]func(string) string{
		"status":   func(v string) string { return string(models.ParseIssueStatus(v)) },
		"priority": func(v string) string { return string(models.ParsePriority(v)) },
	},
	Timestamp: issueCreated,
	Sorts: map[SortKey]func(a, b models.Issue) int{
		SortNewest:    newestFirst(issueCreated),
		SortOldest:    oldestFirst(issueCreated),
		SortMostVoted: descending(func(i models.Issue) int { return i.UpVotes }),
	},
	DefaultSort: SortNewest,
	Pin:         func(i models.Issue) bool { return i.IsBoosted },
}

func paidAt(p models.Payment) time.Time { return p.PaidAt }

var Payments = Schema[models.Payment]{
	SearchFields: func(p models.Payment) []string {
		return []string{p.TransactionID, p.Email}
	},
	Facets: map[string]func(models.Payment) string{
		"type": func(p models.Payment) string { return paymentTypeToken(p.Type) },
	},
	Canon: map[string]func(string) string{
		"type": NormalizePaymentType,
	},
	Timestamp: paidAt,
	Sorts: map[SortKey]func(a, b models.Payment) int{
		SortNewest:     newestFirst(paidAt),
		SortOldest:     oldestFirst(paidAt),
		SortAmountHigh: descending(func(p models.Payment) float64 { return p.Amount }),
		SortAmountLow:  ascending(func(p models.Payment) float64 { return p.Amount }),
	},
	DefaultSort: SortNewest,
}

// paymentTypeToken lets the type filter accept either the display name or a
// short token ("premium", "boost", "other").
func paymentTypeToken(t models.PaymentType) string {
	switch t {
	case models.PremiumSubscription:
		return "premium"
	case models.BoostIssue:
		return "boost"
	}
	return "other"
}

// NormalizePaymentType maps a type filter value onto the token the schema compares.
func NormalizePaymentType(v string) string {
	if v == "" || strings.EqualFold(v, All) {
		return v
	}
	return paymentTypeToken(models.ParsePaymentType(v))
}

func memberSince(u models.User) time.Time { return u.MemberSince }

var Users = Schema[models.User]{
	SearchFields: func(u models.User) []string {
		return []string{u.Name, u.Email}
	},
	Facets: map[string]func(models.User) string{
		"role": func(u models.User) string { return string(u.Role) },
		"plan": func(u models.User) string {
			if u.IsPremium {
				return "premium"
			}
			return "free"
		},
		"state": func(u models.User) string {
			if u.IsBlocked {
				return "blocked"
			}
			return "active"
		},
	},
	Timestamp: memberSince,
	Sorts: map[SortKey]func(a, b models.User) int{
		SortNewest: newestFirst(memberSince),
		SortOldest: oldestFirst(memberSince),
		SortName:   ascending(func(u models.User) string { return strings.ToLower(u.Name) }),
	},
	DefaultSort: SortNewest,
}

var Staff = Schema[models.Staff]{
	SearchFields: func(s models.Staff) []string {
		return []string{s.Name, s.Email, s.Phone}
	},
	Sorts: map[SortKey]func(a, b models.Staff) int{
		SortName: ascending(func(s models.Staff) string { return strings.ToLower(s.Name) }),
	},
	DefaultSort: SortName,
}
