// Package client talks to the analysis backend's run API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kdimtricp/civiclens/internal/models"
)

const (
	DefaultBaseURL = "http://localhost:8000"
	defaultTimeout = 30 * time.Second

	// MaxLogTail is the largest tail the backend will honour.
	MaxLogTail = 500
)

// Doer is the subset of *http.Client the API client needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	baseURL    string
	httpClient Doer
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return NewWithDoer(baseURL, &http.Client{Timeout: timeout})
}

func NewWithDoer(baseURL string, doer Doer) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: doer,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func runPath(runID string, parts ...string) string {
	p := "/api/runs/" + url.PathEscape(runID)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

// do sends a request and returns the body of a 2xx response. Non-2xx
// responses become *ServerError, network failures *TransportError.
func (c *Client) do(ctx context.Context, op, method, path, contentType string, body io.Reader) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("X-Request-ID", uuid.New().String())
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, &TransportError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, &ServerError{Op: op, Status: resp.StatusCode, Detail: parseDetail(data)}
	}

	return data, resp.Header, nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, out any) error {
	data, _, err := c.do(ctx, op, http.MethodGet, path, "", nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &ParseError{Op: op, Err: err}
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, op, path string, payload any) error {
	var body io.Reader
	contentType := ""
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	_, _, err := c.do(ctx, op, http.MethodPost, path, contentType, body)
	return err
}

func (c *Client) Health(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.getJSON(ctx, "health", "/api/health", &out); err != nil {
		return err
	}
	if out.Status != "ok" {
		return &ServerError{Op: "health", Status: http.StatusOK, Detail: "backend reported " + out.Status}
	}
	return nil
}

// CreateRun uploads a video and returns the new run id. roiConfig is an
// optional ROI configuration JSON document.
func (c *Client) CreateRun(ctx context.Context, videoName string, video io.Reader, roiConfig []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("video", filepath.Base(videoName))
	if err != nil {
		return "", fmt.Errorf("create run: build form: %w", err)
	}
	if _, err := io.Copy(part, video); err != nil {
		return "", fmt.Errorf("create run: read video: %w", err)
	}
	if len(roiConfig) > 0 {
		if !json.Valid(roiConfig) {
			return "", fmt.Errorf("create run: roi config is not valid JSON")
		}
		if err := mw.WriteField("roi_config_json", string(roiConfig)); err != nil {
			return "", fmt.Errorf("create run: build form: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("create run: build form: %w", err)
	}

	data, _, err := c.do(ctx, "create run", http.MethodPost, "/api/runs", mw.FormDataContentType(), &buf)
	if err != nil {
		return "", err
	}

	var out struct {
		RunID string `json:"run_id"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", &ParseError{Op: "create run", Err: err}
	}
	if out.RunID == "" {
		return "", &ParseError{Op: "create run", Err: fmt.Errorf("response has no run_id")}
	}
	return out.RunID, nil
}

func (c *Client) StartRun(ctx context.Context, runID string) error {
	return c.postJSON(ctx, "start run", runPath(runID, "start"), nil)
}

func (c *Client) ListRuns(ctx context.Context) ([]models.RunStatus, error) {
	var out struct {
		Runs []models.RunStatus `json:"runs"`
	}
	if err := c.getJSON(ctx, "list runs", "/api/runs", &out); err != nil {
		return nil, err
	}
	return out.Runs, nil
}

func (c *Client) Status(ctx context.Context, runID string) (*models.RunStatus, error) {
	var status models.RunStatus
	if err := c.getJSON(ctx, "fetch status", runPath(runID, "status"), &status); err != nil {
		return nil, err
	}
	switch {
	case status.RunID == "":
		return nil, &ParseError{Op: "fetch status", Err: fmt.Errorf("response has no run_id")}
	case status.State == "":
		return nil, &ParseError{Op: "fetch status", Err: fmt.Errorf("response has no state")}
	}
	return &status, nil
}

func (c *Client) Events(ctx context.Context, runID string) (*models.EventsPage, error) {
	var page models.EventsPage
	if err := c.getJSON(ctx, "fetch events", runPath(runID, "events"), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) Trace(ctx context.Context, runID string) (*models.TracePage, error) {
	var page models.TracePage
	if err := c.getJSON(ctx, "fetch trace", runPath(runID, "trace"), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// ClampTail bounds a requested log tail to what the backend accepts.
func ClampTail(tail int) int {
	if tail < 1 {
		return 1
	}
	if tail > MaxLogTail {
		return MaxLogTail
	}
	return tail
}

func (c *Client) Logs(ctx context.Context, runID string, tail int) (*models.LogsPage, error) {
	path := runPath(runID, "logs") + "?tail=" + strconv.Itoa(ClampTail(tail))
	var page models.LogsPage
	if err := c.getJSON(ctx, "fetch logs", path, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// SubmitReview upserts the decision for d.EventID.
func (c *Client) SubmitReview(ctx context.Context, runID string, d models.ReviewDecision) error {
	if d.EventID == "" {
		return fmt.Errorf("submit review: event id is required")
	}
	return c.postJSON(ctx, "submit review", runPath(runID, "events", url.PathEscape(d.EventID), "review"), d)
}

// Export fetches the case pack archive. The bytes are returned untouched.
func (c *Client) Export(ctx context.Context, runID string) ([]byte, error) {
	data, _, err := c.do(ctx, "export case pack", http.MethodGet, runPath(runID, "export"), "", nil)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// ArtifactURL resolves an evidence-frame reference to a fetchable URL.
func (c *Client) ArtifactURL(runID, path string) string {
	if path == "" {
		return ""
	}
	return c.baseURL + runPath(runID, "artifact") + "?path=" + url.QueryEscape(path)
}

// Artifact downloads an evidence frame and its content type.
func (c *Client) Artifact(ctx context.Context, runID, path string) ([]byte, string, error) {
	if path == "" {
		return nil, "", fmt.Errorf("fetch artifact: path is required")
	}
	rel := runPath(runID, "artifact") + "?path=" + url.QueryEscape(path)
	data, header, err := c.do(ctx, "fetch artifact", http.MethodGet, rel, "", nil)
	if err != nil {
		return nil, "", err
	}
	return data, header.Get("Content-Type"), nil
}
