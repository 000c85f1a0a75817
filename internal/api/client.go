package api

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
)

// ErrAPIUnavailable is returned when no daemon address is configured or the
// daemon cannot be reached.
var ErrAPIUnavailable = errors.New("daemon API unavailable")

// StatusError reports a non-2xx reply.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api returned status %d", e.Code)
	}
	return fmt.Sprintf("api returned status %d: %s", e.Code, e.Message)
}

// Client talks to a running daemon.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// LogQuery filters GET /api/logs.
type LogQuery struct {
	Since     uint64
	Limit     int
	Follow    bool
	Tail      bool
	Component string
	TaskID    string
	Level     string
}

// NewClient builds a client for the daemon bound at bind. A blank bind
// returns a nil client whose methods report ErrAPIUnavailable.
func NewClient(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, nil
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, err
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	return &Client{
		base:  base,
		token: strings.TrimSpace(token),
		// No timeout: uploads and log follow requests run until the caller cancels.
		http: &http.Client{},
	}, nil
}

// Upload streams the file at path to POST /upload and returns the task id.
func (c *Client) Upload(ctx context.Context, path string) (string, error) {
	if c == nil {
		return "", ErrAPIUnavailable
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		part, err := form.CreateFormFile("file", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = form.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/upload", nil, pr)
	if err != nil {
		_ = pr.Close()
		return "", err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	body, err := c.doText(req)
	if err != nil {
		return "", err
	}
	id, ok := strings.CutPrefix(strings.TrimSpace(body), UploadAccepted)
	if !ok || strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("unexpected upload response %q", body)
	}
	return strings.TrimSpace(id), nil
}

// Progress returns the raw status string for taskID.
func (c *Client) Progress(ctx context.Context, taskID string) (string, error) {
	if c == nil {
		return "", ErrAPIUnavailable
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/progress", url.Values{"task-id": {taskID}}, nil)
	if err != nil {
		return "", err
	}
	body, err := c.doText(req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(body), nil
}

// Tasks lists live tasks and, when historyLimit is positive, recent history.
func (c *Client) Tasks(ctx context.Context, historyLimit int) (TaskListResponse, error) {
	var payload TaskListResponse
	values := url.Values{}
	if historyLimit > 0 {
		values.Set("history", strconv.Itoa(historyLimit))
	}
	err := c.getJSON(ctx, "/api/tasks", values, &payload)
	return payload, err
}

// Task describes one task.
func (c *Client) Task(ctx context.Context, taskID string) (TaskResponse, error) {
	var payload TaskResponse
	err := c.getJSON(ctx, "/api/tasks/"+url.PathEscape(taskID), nil, &payload)
	return payload, err
}

// Cancel stops a running task.
func (c *Client) Cancel(ctx context.Context, taskID string) error {
	if c == nil {
		return ErrAPIUnavailable
	}
	req, err := c.newRequest(ctx, http.MethodDelete, "/api/tasks/"+url.PathEscape(taskID), nil, nil)
	if err != nil {
		return err
	}
	_, err = c.doText(req)
	return err
}

// Status returns daemon diagnostics.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var payload DaemonStatus
	err := c.getJSON(ctx, "/api/status", nil, &payload)
	return payload, err
}

// Logs fetches buffered log events.
func (c *Client) Logs(ctx context.Context, q LogQuery) (LogStreamResponse, error) {
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
	if strings.TrimSpace(q.Component) != "" {
		values.Set("component", q.Component)
	}
	if strings.TrimSpace(q.TaskID) != "" {
		values.Set("task", q.TaskID)
	}
	if strings.TrimSpace(q.Level) != "" {
		values.Set("level", q.Level)
	}
	var payload LogStreamResponse
	err := c.getJSON(ctx, "/api/logs", values, &payload)
	return payload, err
}

func (c *Client) newRequest(ctx context.Context, method, path string, values url.Values, body io.Reader) (*http.Request, error) {
	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: values.Encode()})
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) getJSON(ctx context.Context, path string, values url.Values, out any) error {
	if c == nil {
		return ErrAPIUnavailable
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, values, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeStatusError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) doText(req *http.Request) (string, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", decodeStatusError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeStatusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	message := strings.TrimSpace(string(data))
	var payload ErrorResponse
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		message = payload.Error
	}
	return &StatusError{Code: resp.StatusCode, Message: message}
}

// IsAPIUnavailable reports whether err means the daemon could not be reached.
func IsAPIUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrAPIUnavailable) || errors.As(err, &opErr)
}
