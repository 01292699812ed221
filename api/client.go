// Package api talks to the platform's REST API and the third-party services
// the web client depends on: identity, image hosting and checkout.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const maxBody = 8 << 20

// Error is a non-2xx answer from an upstream service.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is an upstream 404.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

type tokenKey struct{}

// WithToken attaches the signed-in user's bearer token to ctx.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func tokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// Client is the REST API client. The zero value is not usable; use NewClient.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *log.Entry
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     log.WithField("component", "api"),
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := tokenFrom(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return c.send(req)
}

func (c *Client) send(req *http.Request) ([]byte, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	c.logger.WithFields(log.Fields{
		"method":  req.Method,
		"path":    req.URL.Path,
		"status":  resp.StatusCode,
		"latency": time.Since(start).String(),
	}).Debug("upstream call")

	if resp.StatusCode >= 400 {
		return nil, &Error{Status: resp.StatusCode, Message: errorMessage(data, resp.Status)}
	}
	return data, nil
}

func errorMessage(body []byte, fallback string) string {
	if gjson.ValidBytes(body) {
		r := gjson.ParseBytes(body)
		for _, field := range []string{"message", "error", "error.message"} {
			if v := r.Get(field); v.Type == gjson.String && v.String() != "" {
				return v.String()
			}
		}
	}
	if msg := strings.TrimSpace(string(body)); msg != "" && len(msg) < 512 {
		return msg
	}
	return fallback
}

// decodeList accepts either a bare JSON array or an object wrapping the array
// under field or "data".
func decodeList[T any](body []byte, field string) ([]T, error) {
	r := gjson.ParseBytes(body)
	raw := ""
	switch {
	case r.IsArray():
		raw = r.Raw
	case r.Get(field).IsArray():
		raw = r.Get(field).Raw
	case r.Get("data").IsArray():
		raw = r.Get("data").Raw
	default:
		return nil, fmt.Errorf("decode %s: expected a list", field)
	}

	out := []T{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", field, err)
	}
	return out, nil
}

// decodeOne accepts the entity itself or an object wrapping it under field or "data".
func decodeOne[T any](body []byte, field string) (T, error) {
	var out T
	r := gjson.ParseBytes(body)
	raw := r.Raw
	if w := r.Get(field); w.IsObject() {
		raw = w.Raw
	} else if w := r.Get("data"); w.IsObject() {
		raw = w.Raw
	}
	if !gjson.Valid(raw) || !gjson.Parse(raw).IsObject() {
		return out, fmt.Errorf("decode %s: expected an object", field)
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return out, fmt.Errorf("decode %s: %w", field, err)
	}
	return out, nil
}
