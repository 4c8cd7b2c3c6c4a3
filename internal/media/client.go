// Package media stores evidence photos in a content-addressed store through
// the IPFS HTTP API.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type UploadError struct {
	Message string
	Err     error
}

func (e *UploadError) Error() string {
	return "media upload failed: " + e.Message
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
	MaxSize int64
}

func New(baseURL string, maxSize int64) *Client {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		HTTP:    &http.Client{Timeout: 2 * time.Minute},
		MaxSize: maxSize,
	}
}

// Upload validates f locally and stores it, returning its content hash.
func (c *Client) Upload(ctx context.Context, f File) (string, error) {
	if err := Validate(f, c.MaxSize); err != nil {
		return "", err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	name := f.Name
	if name == "" {
		name = "evidence"
	}
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return "", &UploadError{Message: err.Error(), Err: err}
	}
	if _, err := part.Write(f.Data); err != nil {
		return "", &UploadError{Message: err.Error(), Err: err}
	}
	if err := mw.Close(); err != nil {
		return "", &UploadError{Message: err.Error(), Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/v0/add?pin=true", &body)
	if err != nil {
		return "", &UploadError{Message: err.Error(), Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", &UploadError{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", &UploadError{Message: storeMessage(resp)}
	}

	var out struct {
		Hash string `json:"Hash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &UploadError{Message: "decode store response: " + err.Error(), Err: err}
	}
	if strings.TrimSpace(out.Hash) == "" {
		return "", &UploadError{Message: "store returned no content hash"}
	}
	return out.Hash, nil
}

// Get fetches a blob by hash. An empty hash means no media was attached and
// is reported as not found rather than as an error.
func (c *Client) Get(ctx context.Context, hash string) ([]byte, bool, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return nil, false, nil
	}
	endpoint := c.BaseURL + "/api/v0/cat?arg=" + url.QueryEscape(hash)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.StatusCode >= 300 {
		return nil, false, fmt.Errorf("media store returned %d: %s", resp.StatusCode, storeMessage(resp))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.MaxSize+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(data)) > c.MaxSize {
		return nil, false, fmt.Errorf("media %s exceeds %d bytes", hash, c.MaxSize)
	}
	return data, true, nil
}

// storeMessage extracts the IPFS error message, falling back to the raw body.
func storeMessage(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var out struct {
		Message string `json:"Message"`
	}
	if err := json.Unmarshal(raw, &out); err == nil && out.Message != "" {
		return out.Message
	}
	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		msg = resp.Status
	}
	return msg
}
