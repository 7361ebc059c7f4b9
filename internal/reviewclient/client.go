// Package reviewclient is a typed client for the finishline HTTP API.
package reviewclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/okian/finishline/internal/domain/model"
	"github.com/okian/finishline/internal/domain/types"
)

// Identity headers understood by the API.
const (
	headerUser = "X-Auth-User"
	headerRole = "X-Auth-Role"
)

// Client talks to one finishline instance.
type Client struct {
	base *url.URL
	http *http.Client
	user string
	role string
}

// NewClient returns a client for baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}
	c := &Client{base: u, http: &http.Client{Timeout: defaultTimeout}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ClaimResult is the answer to a claim.
type ClaimResult struct {
	LeaseExpiry *time.Time      `json:"lease_expiry"`
	Item        model.QueueItem `json:"item"`
}

// Job is a fusion job as submitted over the API and read from jobs files.
type Job struct {
	JobID      string `json:"job_id" yaml:"job_id"`
	ImageID    string `json:"image_id" yaml:"image_id"`
	EventID    string `json:"event_id,omitempty" yaml:"event_id"`
	ImageRef   string `json:"image_ref" yaml:"image_ref"`
	Collection string `json:"collection,omitempty" yaml:"collection"`
}

// Ack is the answer to a job submission.
type Ack struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
	JobID     string `json:"job_id"`
}

// ListQueue fetches one page of queue items. Zero page or limit leaves the
// server default.
func (c *Client) ListQueue(ctx context.Context, status string, page, limit int) (types.Page[model.QueueItem], error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out types.Page[model.QueueItem]
	err := c.do(ctx, http.MethodGet, "/queue", q, nil, &out)
	return out, err
}

// GetItem fetches a queue item.
func (c *Client) GetItem(ctx context.Context, id string) (model.QueueItem, error) {
	var out model.QueueItem
	err := c.do(ctx, http.MethodGet, "/queue/"+url.PathEscape(id), nil, nil, &out)
	return out, err
}

// Claim takes the advisory review lease on an item.
func (c *Client) Claim(ctx context.Context, id string) (ClaimResult, error) {
	var out ClaimResult
	err := c.do(ctx, http.MethodPost, "/queue/"+url.PathEscape(id)+"/claim", nil, nil, &out)
	return out, err
}

// Approve confirms the recognition on an item.
func (c *Client) Approve(ctx context.Context, id, notes string) (model.QueueItem, error) {
	var out model.QueueItem
	body := map[string]string{"notes": notes}
	err := c.do(ctx, http.MethodPost, "/queue/"+url.PathEscape(id)+"/approve", nil, body, &out)
	return out, err
}

// Reject refuses the recognition on an item.
func (c *Client) Reject(ctx context.Context, id, reason, notes string) (model.QueueItem, error) {
	var out model.QueueItem
	body := map[string]string{"reason": reason, "notes": notes}
	err := c.do(ctx, http.MethodPost, "/queue/"+url.PathEscape(id)+"/reject", nil, body, &out)
	return out, err
}

// Reassign hands an item to another reviewer.
func (c *Client) Reassign(ctx context.Context, id, target string) (model.QueueItem, error) {
	var out model.QueueItem
	body := map[string]string{"target": target}
	err := c.do(ctx, http.MethodPost, "/queue/"+url.PathEscape(id)+"/reassign", nil, body, &out)
	return out, err
}

// Image fetches the recognition summary of an image.
func (c *Client) Image(ctx context.Context, id string) (model.ImageRecord, error) {
	var out model.ImageRecord
	err := c.do(ctx, http.MethodGet, "/images/"+url.PathEscape(id), nil, nil, &out)
	return out, err
}

// SubmitJob posts one fusion job.
func (c *Client) SubmitJob(ctx context.Context, job Job) (Ack, error) {
	var out Ack
	err := c.do(ctx, http.MethodPost, "/fusion/jobs", nil, job, &out)
	return out, err
}

// Stats fetches the service statistics.
func (c *Client) Stats(ctx context.Context) (map[string]any, error) {
	out := map[string]any{}
	err := c.do(ctx, http.MethodGet, "/stats", nil, nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := *c.base
	u.Path += path
	u.RawQuery = query.Encode()

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.user != "" {
		req.Header.Set(headerUser, c.user)
	}
	if c.role != "" {
		req.Header.Set(headerRole, c.role)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
