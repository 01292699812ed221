package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/tidwall/gjson"
)

// ErrNoIdentity means the identity provider answered without a usable account.
var ErrNoIdentity = errors.New("identity provider returned no account")

// Account is the signed-in principal as the identity provider describes it.
type Account struct {
	Token       string
	Email       string
	DisplayName string
	PhotoURL    string
	ExpiresAt   time.Time
}

// Credentials is an email/password pair; Name and PhotoURL are used on sign-up only.
type Credentials struct {
	Name     string `json:"displayName,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
	PhotoURL string `json:"photoURL,omitempty"`
}

// Identity is a client for the external identity provider.
type Identity struct {
	client *Client
}

func NewIdentity(baseURL string, timeout time.Duration) *Identity {
	return &Identity{client: NewClient(baseURL, timeout)}
}

func (i *Identity) SignIn(ctx context.Context, creds Credentials) (Account, error) {
	return i.exchange(ctx, "/signin", creds)
}

func (i *Identity) SignUp(ctx context.Context, creds Credentials) (Account, error) {
	return i.exchange(ctx, "/signup", creds)
}

func (i *Identity) exchange(ctx context.Context, path string, creds Credentials) (Account, error) {
	payload, err := json.Marshal(creds)
	if err != nil {
		return Account{}, fmt.Errorf("marshal credentials: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.client.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return Account{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := i.client.send(req)
	if err != nil {
		return Account{}, err
	}
	return parseAccount(body)
}

// parseAccount reads the provider's answer. Fields missing from the body are
// filled from the id token's claims when it is a JWT.
func parseAccount(body []byte) (Account, error) {
	r := gjson.ParseBytes(body)
	acc := Account{
		Token:       firstString(r, "idToken", "token", "accessToken", "user.stsTokenManager.accessToken"),
		Email:       firstString(r, "email", "user.email"),
		DisplayName: firstString(r, "displayName", "name", "user.displayName"),
		PhotoURL:    firstString(r, "photoURL", "photoUrl", "user.photoURL"),
	}

	if acc.Token != "" {
		claims := jwt.MapClaims{}
		if _, _, err := new(jwt.Parser).ParseUnverified(acc.Token, claims); err == nil {
			if acc.Email == "" {
				acc.Email, _ = claims["email"].(string)
			}
			if acc.DisplayName == "" {
				acc.DisplayName, _ = claims["name"].(string)
			}
			if acc.PhotoURL == "" {
				acc.PhotoURL, _ = claims["picture"].(string)
			}
			if exp, ok := claims["exp"].(float64); ok {
				acc.ExpiresAt = time.Unix(int64(exp), 0)
			}
		}
	}

	acc.Email = strings.ToLower(strings.TrimSpace(acc.Email))
	if acc.Token == "" || acc.Email == "" {
		return Account{}, ErrNoIdentity
	}
	if acc.DisplayName == "" {
		acc.DisplayName = strings.SplitN(acc.Email, "@", 2)[0]
	}
	return acc, nil
}
