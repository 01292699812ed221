package api

import (
	"context"
	"net/http"
	"net/url"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"civicsync-fe/models"
)

func (c *Client) ListPayments(ctx context.Context) ([]models.Payment, error) {
	body, err := c.do(ctx, http.MethodGet, "/payments", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeList[models.Payment](body, "payments")
}

func (c *Client) ListPaymentsByEmail(ctx context.Context, email string) ([]models.Payment, error) {
	body, err := c.do(ctx, http.MethodGet, "/payments", url.Values{"email": {email}}, nil)
	if err != nil {
		return nil, err
	}
	return decodeList[models.Payment](body, "payments")
}

// ConfirmCheckout asks the API to verify a finished checkout session and
// returns the Payment it recorded.
func (c *Client) ConfirmCheckout(ctx context.Context, sessionID string) (models.Payment, error) {
	body, err := c.do(ctx, http.MethodPatch, "/payment-success", url.Values{"session_id": {sessionID}}, nil)
	if err != nil {
		return models.Payment{}, err
	}
	return decodeOne[models.Payment](body, "payment")
}

func (c *Client) DeletePayment(ctx context.Context, id primitive.ObjectID) (Ack, error) {
	return c.write(ctx, http.MethodDelete, "/payments/"+id.Hex(), nil, writeDelete)
}
