package models

import (
	"encoding/json"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role enum
type Role string

const (
	RoleCitizen Role = "citizen"
	RoleStaff   Role = "staff"
	RoleAdmin   Role = "admin"
	RoleUnknown Role = "unknown"
)

func ParseRole(s string) Role {
	switch normalizeToken(s) {
	case "citizen", "user", "":
		return RoleCitizen
	case "staff":
		return RoleStaff
	case "admin":
		return RoleAdmin
	}
	return RoleUnknown
}

func (r *Role) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*r = ParseRole(raw)
	return nil
}

// User is the platform account as the API returns it.
type User struct {
	ID            primitive.ObjectID `json:"_id"`
	Name          string             `json:"name"`
	Email         string             `json:"email"`
	PhotoURL      string             `json:"photoURL"`
	Phone         string             `json:"phone"`
	Address       string             `json:"address"`
	IsPremium     bool               `json:"isPremium"`
	IsBlocked     bool               `json:"isBlocked"`
	MemberSince   time.Time          `json:"memberSince"`
	IssueCount    int                `json:"issueCount"`
	TotalPayments float64            `json:"totalPayments"`
	Role          Role               `json:"role"`
}

// QuotaReached reports whether a free account has used all of its issue submissions.
func (u User) QuotaReached(maxFreeIssues int) bool {
	return !u.IsPremium && u.IssueCount >= maxFreeIssues
}
