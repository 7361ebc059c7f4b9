package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okian/finishline/internal/domain/model"
	"github.com/okian/finishline/pkg/metrics"
)

const (
	defaultTimeout  = 10 * time.Second
	maxErrorBodyLen = 512
)

// Client calls a detection service over HTTP/JSON.
//
//	POST {base}/faces/detect   {"image_ref"}                  -> {"faces": [...]}
//	POST {base}/faces/search   SearchRequest                  -> {"matches": [...]}
//	POST {base}/text/detect    {"image_ref"}                  -> {"detections": [...]}
type Client struct {
	base    string
	http    *http.Client
	headers http.Header
}

var _ Detector = (*Client)(nil)

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: empty base url", ErrInvalidParameter)
	}
	c := &Client{
		base:    baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
		headers: make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type imageRequest struct {
	ImageRef string `json:"image_ref"`
}

type faceDetection struct {
	BoundingBox model.BoundingBox    `json:"bounding_box"`
	Attributes  model.FaceAttributes `json:"attributes"`
}

// DetectFaces implements Detector.
func (c *Client) DetectFaces(ctx context.Context, imageRef string) ([]model.FaceCandidate, error) {
	var resp struct {
		Faces []faceDetection `json:"faces"`
	}
	if err := c.call(ctx, "detect_faces", "/faces/detect", imageRequest{ImageRef: imageRef}, &resp); err != nil {
		return nil, err
	}
	out := make([]model.FaceCandidate, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		out = append(out, model.FaceCandidate{BoundingBox: f.BoundingBox, Attributes: f.Attributes})
	}
	return out, nil
}

// SearchFace implements Detector.
func (c *Client) SearchFace(ctx context.Context, req SearchRequest) ([]model.FaceMatch, error) {
	if req.Threshold <= 0 {
		req.Threshold = DefaultSearchThreshold
	}
	if req.MaxResults <= 0 {
		req.MaxResults = DefaultMaxResults
	}
	var resp struct {
		Matches []model.FaceMatch `json:"matches"`
	}
	if err := c.call(ctx, "search_face", "/faces/search", req, &resp); err != nil {
		return nil, err
	}
	if resp.Matches == nil {
		resp.Matches = []model.FaceMatch{}
	}
	return resp.Matches, nil
}

// DetectText implements Detector.
func (c *Client) DetectText(ctx context.Context, imageRef string) ([]model.TextLine, error) {
	var resp struct {
		Detections []model.TextLine `json:"detections"`
	}
	if err := c.call(ctx, "detect_text", "/text/detect", imageRequest{ImageRef: imageRef}, &resp); err != nil {
		return nil, err
	}
	return resp.Detections, nil
}

func (c *Client) call(ctx context.Context, op, path string, body, out any) (err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.RecordDetectionCall(op, outcome, float64(time.Since(start).Microseconds())/1000)
	}()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s: %s", ErrInvalidParameter, op, readSnippet(resp.Body))
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s: %s", ErrImageNotFound, op, readSnippet(resp.Body))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%w: %s: status %d: %s", ErrUnavailable, op, resp.StatusCode, readSnippet(resp.Body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBodyLen))
	return strings.TrimSpace(string(b))
}
