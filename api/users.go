package api

import (
	"context"
	"net/http"
	"net/url"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"civicsync-fe/models"
)

// ProfilePatch is what a user may change about themselves.
type ProfilePatch struct {
	Name     *string `json:"name,omitempty"`
	PhotoURL *string `json:"photoURL,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Address  *string `json:"address,omitempty"`
}

func (c *Client) ListUsers(ctx context.Context) ([]models.User, error) {
	body, err := c.do(ctx, http.MethodGet, "/users", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeList[models.User](body, "users")
}

func (c *Client) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	body, err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(email), nil, nil)
	if err != nil {
		return models.User{}, err
	}
	return decodeOne[models.User](body, "user")
}

// SaveUser upserts the account the identity provider just signed in.
func (c *Client) SaveUser(ctx context.Context, name, email, photoURL string) (Ack, error) {
	body := map[string]string{"name": name, "email": email, "photoURL": photoURL}
	return c.write(ctx, http.MethodPost, "/users", body, writeUpdate)
}

func (c *Client) UpdateProfile(ctx context.Context, email string, patch ProfilePatch) (Ack, error) {
	return c.write(ctx, http.MethodPatch, "/users/"+url.PathEscape(email), patch, writeUpdate)
}

func (c *Client) SetBlocked(ctx context.Context, id primitive.ObjectID, blocked bool) (Ack, error) {
	return c.write(ctx, http.MethodPatch, "/users/"+id.Hex()+"/block", map[string]bool{"isBlocked": blocked}, writeUpdate)
}
