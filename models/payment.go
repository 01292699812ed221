package models

import (
	"encoding/json"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PaymentType enum
type PaymentType string

const (
	PremiumSubscription PaymentType = "Premium Subscription"
	BoostIssue          PaymentType = "Boost Issue"
	OtherPayment        PaymentType = "Other"
)

func ParsePaymentType(s string) PaymentType {
	switch normalizeToken(s) {
	case "premiumsubscription", "premium", "subscription":
		return PremiumSubscription
	case "boostissue", "boost":
		return BoostIssue
	}
	return OtherPayment
}

func (t *PaymentType) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*t = ParsePaymentType(raw)
	return nil
}

// Payment is a completed checkout as recorded by the API.
type Payment struct {
	ID            primitive.ObjectID  `json:"_id"`
	Email         string              `json:"email"`
	Type          PaymentType         `json:"type"`
	Amount        float64             `json:"amount"`
	TransactionID string              `json:"transactionId"`
	PaidAt        time.Time           `json:"paidAt"`
	IssueID       *primitive.ObjectID `json:"issueId,omitempty"`
}

// OwnedBy reports whether the payment belongs to email.
func (p Payment) OwnedBy(email string) bool {
	return email != "" && strings.EqualFold(p.Email, email)
}
