package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"
)

// ErrNoImageURL means the image host accepted the upload but returned no URL.
var ErrNoImageURL = errors.New("image host returned no url")

// ImageHost uploads images and hands back their public URL.
type ImageHost struct {
	client *Client
	key    string
}

func NewImageHost(baseURL, key string, timeout time.Duration) *ImageHost {
	return &ImageHost{client: NewClient(baseURL, timeout), key: key}
}

func (h *ImageHost) Upload(ctx context.Context, filename string, image io.Reader) (string, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("image", filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, image); err != nil {
		return "", fmt.Errorf("copy image: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("close form: %w", err)
	}

	target := h.client.baseURL
	if h.key != "" {
		target += "?" + url.Values{"key": {h.key}}.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	body, err := h.client.send(req)
	if err != nil {
		return "", err
	}
	if u := firstString(gjson.ParseBytes(body), "data.url", "data.display_url", "url"); u != "" {
		return u, nil
	}
	return "", ErrNoImageURL
}
