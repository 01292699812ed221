package api

import (
	"context"
	"net/http"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"civicsync-fe/models"
)

// StaffInput is the body for creating or updating a staff member.
type StaffInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	PhotoURL string `json:"photoURL,omitempty"`
}

func (c *Client) ListStaff(ctx context.Context) ([]models.Staff, error) {
	body, err := c.do(ctx, http.MethodGet, "/staff", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeList[models.Staff](body, "staff")
}

func (c *Client) CreateStaff(ctx context.Context, in StaffInput) (Ack, error) {
	return c.write(ctx, http.MethodPost, "/staff", in, writeCreate)
}

func (c *Client) UpdateStaff(ctx context.Context, id primitive.ObjectID, in StaffInput) (Ack, error) {
	return c.write(ctx, http.MethodPatch, "/staff/"+id.Hex(), in, writeUpdate)
}

func (c *Client) DeleteStaff(ctx context.Context, id primitive.ObjectID) (Ack, error) {
	return c.write(ctx, http.MethodDelete, "/staff/"+id.Hex(), nil, writeDelete)
}
