// Package client talks to a running lazyfall server.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/san-kum/lazyfall/internal/dynamo"
)

const defaultTimeout = 5 * time.Second

// StatusError is returned for responses other than 200 and 400.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for the server at baseURL. A nil httpClient gets a
// private client with a short timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetPos queries body id and returns its flattened transform. Every call
// advances the body on the server.
func (c *Client) GetPos(ctx context.Context, id int) ([16]float32, error) {
	var pos [16]float32
	if id < 0 {
		return pos, fmt.Errorf("%w: %d", dynamo.ErrInvalidID, id)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/GetPos/"+strconv.Itoa(id), nil)
	if err != nil {
		return pos, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return pos, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest:
		return pos, fmt.Errorf("%w: %d", dynamo.ErrInvalidID, id)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return pos, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(&pos); err != nil {
		return pos, fmt.Errorf("decode position %d: %w", id, err)
	}
	return pos, nil
}

// Sweep queries ids 0..maxID in order and stops at the first failure.
func (c *Client) Sweep(ctx context.Context, maxID int) ([][16]float32, error) {
	out := make([][16]float32, 0, maxID+1)
	for id := 0; id <= maxID; id++ {
		pos, err := c.GetPos(ctx, id)
		if err != nil {
			return out, err
		}
		out = append(out, pos)
	}
	return out, nil
}
