package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"vocalsplit/internal/api"
)

// ErrUnavailable reports that the daemon could not be reached.
var ErrUnavailable = errors.New("daemon API unavailable")

// APIError is a non-2xx reply decoded from the daemon's error body.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

// Client talks to the vocalsplit daemon's HTTP API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// LogQuery selects events from GET /api/logs.
type LogQuery struct {
	Since     uint64
	Limit     int
	Follow    bool
	Tail      bool
	JobID     string
	Component string
}

// New builds a client for bind, which may be a host:port or a full URL.
// Requests carry no timeout; callers bound them with the context since log
// follow and upload calls legitimately run long.
func New(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, errors.New("api bind address is empty")
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, fmt.Errorf("parse api address: %w", err)
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""
	return &Client{base: base, token: strings.TrimSpace(token), http: &http.Client{}}, nil
}

// BaseURL returns the daemon address requests are sent to.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Upload streams the file at path to POST /upload.
func (c *Client) Upload(ctx context.Context, path string) (api.UploadResponse, error) {
	file, err := os.Open(path)
	if err != nil {
		return api.UploadResponse{}, fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, file)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	var out api.UploadResponse
	err = c.do(ctx, http.MethodPost, "/upload", nil, pr, mw.FormDataContentType(), &out)
	// Unblocks the writer goroutine when the request failed before draining the pipe.
	_ = pr.Close()
	return out, err
}

// JobStatus polls GET /status/{id}.
func (c *Client) JobStatus(ctx context.Context, id string) (api.JobStatus, error) {
	var out api.JobStatus
	err := c.do(ctx, http.MethodGet, "/status/"+url.PathEscape(id), nil, nil, "", &out)
	return out, err
}

// Job fetches the full snapshot of one job.
func (c *Client) Job(ctx context.Context, id string) (api.JobView, error) {
	var out api.JobView
	err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, nil, "", &out)
	return out, err
}

// Jobs lists every job, optionally filtered by status.
func (c *Client) Jobs(ctx context.Context, status string) (api.JobListResponse, error) {
	values := url.Values{}
	if s := strings.TrimSpace(status); s != "" {
		values.Set("status", s)
	}
	var out api.JobListResponse
	err := c.do(ctx, http.MethodGet, "/api/jobs", values, nil, "", &out)
	return out, err
}

// Preview describes a completed job's result file.
func (c *Client) Preview(ctx context.Context, id string) (api.PreviewResponse, error) {
	var out api.PreviewResponse
	err := c.do(ctx, http.MethodGet, "/preview/"+url.PathEscape(id), nil, nil, "", &out)
	return out, err
}

// Download copies a processed file to w.
func (c *Client) Download(ctx context.Context, filename string, w io.Writer) (int64, error) {
	resp, err := c.send(ctx, http.MethodGet, "/download/"+url.PathEscape(filename), nil, nil, "")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return io.Copy(w, resp.Body)
}

// Status fetches the daemon status snapshot.
func (c *Client) Status(ctx context.Context) (api.DaemonStatus, error) {
	var out api.DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, "", &out)
	return out, err
}

// History fetches journal rows for one job, or the most recent rows across
// all jobs when id is empty.
func (c *Client) History(ctx context.Context, id string, limit int) (api.HistoryResponse, error) {
	path := "/api/history"
	values := url.Values{}
	if id = strings.TrimSpace(id); id != "" {
		path += "/" + url.PathEscape(id)
	} else if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	var out api.HistoryResponse
	err := c.do(ctx, http.MethodGet, path, values, nil, "", &out)
	return out, err
}

// Logs fetches one page of daemon log events.
func (c *Client) Logs(ctx context.Context, q LogQuery) (api.LogStreamResponse, error) {
	values := url.Values{}
	if q.Since > 0 {
		values.Set("since", strconv.FormatUint(q.Since, 10))
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Follow {
		values.Set("follow", "1")
	}
	if q.Tail {
		values.Set("tail", "1")
	}
	if s := strings.TrimSpace(q.JobID); s != "" {
		values.Set("job", s)
	}
	if s := strings.TrimSpace(q.Component); s != "" {
		values.Set("component", s)
	}
	var out api.LogStreamResponse
	err := c.do(ctx, http.MethodGet, "/api/logs", values, nil, "", &out)
	return out, err
}

// TestNotification asks the daemon to send a test push notification.
func (c *Client) TestNotification(ctx context.Context) (api.NotificationTestResponse, error) {
	var out api.NotificationTestResponse
	err := c.do(ctx, http.MethodPost, "/api/notifications/test", nil, nil, "", &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, out any) error {
	resp, err := c.send(ctx, method, path, query, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) (*http.Response, error) {
	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if IsUnavailable(err) {
			return nil, fmt.Errorf("%w at %s: %v", ErrUnavailable, c.base, err)
		}
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var payload api.ErrorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		apiErr.Message = payload.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}

// IsUnavailable reports whether err means no daemon answered.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnavailable) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// StatusCode extracts the HTTP status from an APIError, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
