// Package stream is the client side of the job progress endpoint. It opens
// an authenticated GET /jobs/{id}/stream request, parses the text/event-stream
// body incrementally and keeps the logical stream alive across dropped
// connections with a bounded exponential backoff.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/archon-dev/archon/internal/models"
	logging "github.com/ipfs/go-log/v2"
	"k8s.io/utils/clock"
)

var log = logging.Logger("stream")

// Client opens progress streams against one API base URL, for example
// "http://localhost:8000/api".
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      func() string
	policy     Policy
	clock      clock.Clock
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests. It must not carry
// an overall Timeout, since progress streams are long-lived.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken sends a fixed bearer token with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = func() string { return token } }
}

// WithTokenFunc reads the bearer token before each connection attempt, so a
// refreshed token is picked up by the next reconnect.
func WithTokenFunc(fn func() string) Option {
	return func(c *Client) { c.token = fn }
}

// WithPolicy overrides DefaultPolicy.
func WithPolicy(p Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithClock sets the clock used for retry timers.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) { c.clock = clk }
}

// NewClient creates a Client for the API rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		token:      func() string { return "" },
		policy:     DefaultPolicy(),
		clock:      clock.RealClock{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy returns the retry policy used by streams opened from c.
func (c *Client) Policy() Policy { return c.policy }

func (c *Client) streamURL(jobID string) string {
	return c.baseURL + "/jobs/" + url.PathEscape(jobID) + "/stream"
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// Open starts streaming progress for jobID and returns immediately; the
// connection is made in the background. Only cb.OnProgress is required.
func (c *Client) Open(jobID string, cb Callbacks) (*Stream, error) {
	if cb.OnProgress == nil {
		return nil, ErrNoProgressCallback
	}
	s := newStream(c, jobID, cb)
	go s.run()
	return s, nil
}

// StartJobRequest asks the server to start a background job.
type StartJobRequest struct {
	Kind string `json:"kind"`
	Path string `json:"path,omitempty"`
}

// StartJob submits a job and returns its initial snapshot.
func (c *Client) StartJob(ctx context.Context, r StartJobRequest) (models.JobProgressSnapshot, error) {
	var snap models.JobProgressSnapshot

	payload, err := json.Marshal(r)
	if err != nil {
		return snap, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL+"/jobs", bytes.NewReader(payload))
	if err != nil {
		return snap, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return snap, fmt.Errorf("could not start job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var body struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body) == nil && body.Error != "" {
			return snap, fmt.Errorf("could not start job: %s", body.Error)
		}
		return snap, fmt.Errorf("could not start job: %w", &StatusError{Code: resp.StatusCode})
	}
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return snap, fmt.Errorf("could not decode job: %w", err)
	}
	return snap, nil
}
