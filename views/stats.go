package views

import (
	"slices"
	"time"

	"civicsync-fe/models"
)

// NameValue is one slice of a breakdown chart.
type NameValue struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// DayCount is the number of issues reported on one calendar day.
type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// VotedIssue is the compact row used in the top-voted table.
type VotedIssue struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Category string `json:"category"`
	Votes    int    `json:"votes"`
}

// IssueStats summarises a collection of issues for the admin dashboard.
type IssueStats struct {
	TotalIssues      int          `json:"totalIssues"`
	OpenIssues       int          `json:"openIssues"`
	TotalVotes       int          `json:"totalVotes"`
	IssuesByStatus   []NameValue  `json:"issuesByStatus"`
	IssuesByCategory []NameValue  `json:"issuesByCategory"`
	Last7Days        []DayCount   `json:"last7Days"`
	TopVotedIssues   []VotedIssue `json:"topVotedIssues"`
}

// SummarizeIssues computes dashboard figures over already-fetched issues.
func SummarizeIssues(issues []models.Issue, now time.Time) IssueStats {
	stats := IssueStats{TotalIssues: len(issues)}

	byStatus := make(map[models.IssueStatus]int)
	byCategory := make(map[models.IssueCategory]int)
	for _, issue := range issues {
		stats.TotalVotes += issue.UpVotes
		if issue.Status.Open() {
			stats.OpenIssues++
		}
		byStatus[issue.Status]++
		byCategory[issue.Category]++
	}
	for _, st := range models.IssueStatuses {
		stats.IssuesByStatus = append(stats.IssuesByStatus, NameValue{Name: string(st), Value: byStatus[st]})
	}
	for _, cat := range models.IssueCategories {
		if n := byCategory[cat]; n > 0 {
			stats.IssuesByCategory = append(stats.IssuesByCategory, NameValue{Name: string(cat), Value: n})
		}
	}

	for i := 6; i >= 0; i-- {
		date := now.AddDate(0, 0, -i)
		date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
		nextDate := date.AddDate(0, 0, 1)

		count := 0
		for _, issue := range issues {
			if !issue.CreatedAt.Before(date) && issue.CreatedAt.Before(nextDate) {
				count++
			}
		}
		stats.Last7Days = append(stats.Last7Days, DayCount{Date: date.Format("2006-01-02"), Count: count})
	}

	voted := slices.Clone(issues)
	slices.SortStableFunc(voted, descending(func(i models.Issue) int { return i.UpVotes }))
	if len(voted) > 5 {
		voted = voted[:5]
	}
	stats.TopVotedIssues = make([]VotedIssue, 0, len(voted))
	for _, issue := range voted {
		stats.TopVotedIssues = append(stats.TopVotedIssues, VotedIssue{
			ID:       issue.ID.Hex(),
			Title:    issue.Title,
			Category: string(issue.Category),
			Votes:    issue.UpVotes,
		})
	}
	return stats
}

// PaymentStats summarises recorded payments.
type PaymentStats struct {
	Count       int         `json:"count"`
	TotalAmount float64     `json:"totalAmount"`
	ByType      []NameValue `json:"byType"`
}

func SummarizePayments(payments []models.Payment) PaymentStats {
	stats := PaymentStats{Count: len(payments)}
	counts := make(map[models.PaymentType]int)
	for _, p := range payments {
		stats.TotalAmount += p.Amount
		counts[p.Type]++
	}
	for _, t := range []models.PaymentType{models.PremiumSubscription, models.BoostIssue, models.OtherPayment} {
		stats.ByType = append(stats.ByType, NameValue{Name: string(t), Value: counts[t]})
	}
	return stats
}

// LatestResolved returns up to limit resolved issues, most recently updated first.
func LatestResolved(issues []models.Issue, limit int) []models.Issue {
	out := make([]models.Issue, 0, limit)
	for _, issue := range issues {
		if issue.Status == models.Resolved {
			out = append(out, issue)
		}
	}
	slices.SortStableFunc(out, newestFirst(func(i models.Issue) time.Time { return i.UpdatedAt }))
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
