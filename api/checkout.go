package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"civicsync-fe/models"
)

// ErrNoRedirect means the checkout service did not return a redirect URL.
var ErrNoRedirect = errors.New("checkout returned no redirect url")

// CheckoutRequest describes what is being paid for.
type CheckoutRequest struct {
	Type       models.PaymentType `json:"type"`
	Amount     float64            `json:"amount"`
	Email      string             `json:"email"`
	IssueID    string             `json:"issueId,omitempty"`
	SuccessURL string             `json:"successUrl"`
	CancelURL  string             `json:"cancelUrl"`
}

type Checkout struct {
	client *Client
}

func NewCheckout(baseURL string, timeout time.Duration) *Checkout {
	return &Checkout{client: NewClient(baseURL, timeout)}
}

// Start opens a checkout session and returns the URL the browser must visit.
func (c *Checkout) Start(ctx context.Context, req CheckoutRequest) (string, error) {
	body, err := c.client.do(ctx, http.MethodPost, "", nil, req)
	if err != nil {
		return "", err
	}
	if u := firstString(gjson.ParseBytes(body), "url", "data.url", "redirectUrl"); u != "" {
		return u, nil
	}
	return "", ErrNoRedirect
}
