// Package oracle asks the yield-prediction service how many tokens a
// reclaimed area is expected to produce.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const DefaultURL = "http://127.0.0.1:5000/predict"

var ErrUnavailable = errors.New("yield oracle unavailable")

const responseSchema = `{
  "type": "object",
  "required": ["prediction"],
  "properties": {
    "prediction": {"type": "number"}
  }
}`

type Request struct {
	Latitude  int64 `json:"latitude"`
	Longitude int64 `json:"longitude"`
	Area      int64 `json:"area"`
	Year      int   `json:"year"`
}

type Client struct {
	URL    string
	HTTP   *http.Client
	schema *jsonschema.Schema
}

func New(url string, timeout time.Duration) (*Client, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	schema, err := jsonschema.CompileString("prediction-response.json", responseSchema)
	if err != nil {
		return nil, fmt.Errorf("compile prediction schema: %w", err)
	}
	return &Client{
		URL:    url,
		HTTP:   &http.Client{Timeout: timeout},
		schema: schema,
	}, nil
}

// Predict returns the whole-token yield estimate, floored and never negative.
// Every failure wraps ErrUnavailable.
func (c *Client) Predict(ctx context.Context, in Request) (int64, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("%w: oracle returned %d", ErrUnavailable, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return 0, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if err := c.schema.Validate(doc); err != nil {
		return 0, fmt.Errorf("%w: unexpected response: %v", ErrUnavailable, err)
	}
	prediction := doc.(map[string]any)["prediction"].(float64)
	return sanitize(prediction)
}

func sanitize(prediction float64) (int64, error) {
	if math.IsNaN(prediction) || math.IsInf(prediction, 0) {
		return 0, fmt.Errorf("%w: prediction is not finite", ErrUnavailable)
	}
	floored := math.Floor(prediction)
	if floored <= 0 {
		return 0, nil
	}
	if floored >= math.MaxInt64 {
		return math.MaxInt64, nil
	}
	return int64(floored), nil
}
