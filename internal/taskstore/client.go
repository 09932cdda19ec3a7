package taskstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/c.mueller/househelper-sync/internal/action"
	"github.com/c.mueller/househelper-sync/internal/models"
	"github.com/danielgtaylor/huma/v2"
)

// Client is a Store backed by the task service's HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the task service at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ApplyAddTask creates a task keyed by actionID.
func (c *Client) ApplyAddTask(ctx context.Context, actionID string, p action.AddTask) (models.TaskSnapshot, error) {
	in := models.CreateTaskInput{
		Title:    p.Title,
		DueDate:  p.DueDate,
		ExternID: actionID,
	}

	var task models.Task
	if err := c.do(ctx, http.MethodPost, "/tasks", in, &task); err != nil {
		return models.TaskSnapshot{}, err
	}
	return task.Snapshot(), nil
}

// ApplyCompleteTask marks taskID completed.
func (c *Client) ApplyCompleteTask(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodPost, "/tasks/"+url.PathEscape(taskID)+"/complete", nil, nil)
}

// NotifyStartTimer records a started timer keyed by actionID.
func (c *Client) NotifyStartTimer(ctx context.Context, actionID string, p action.StartTimer) error {
	in := models.StartTimerInput{
		Type:            p.TimerType,
		DurationSeconds: p.DurationSeconds,
		TaskID:          p.TaskID,
		ExternID:        actionID,
	}
	return c.do(ctx, http.MethodPost, "/timers", in, nil)
}

// FetchAllTasks returns the full task list in service order.
func (c *Client) FetchAllTasks(ctx context.Context) ([]models.TaskSnapshot, error) {
	var tasks []models.Task
	if err := c.do(ctx, http.MethodGet, "/tasks", nil, &tasks); err != nil {
		return nil, err
	}

	snapshots := make([]models.TaskSnapshot, 0, len(tasks))
	for _, task := range tasks {
		snapshots = append(snapshots, task.Snapshot())
	}
	return snapshots, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrStoreUnreachable, method, path, err)
	}
	defer resp.Body.Close()

	if err := classify(resp); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", ErrStoreUnreachable, err)
	}
	return nil
}

// classify maps a response status onto the store's error taxonomy.
func classify(resp *http.Response) error {
	code := resp.StatusCode
	if code >= 200 && code < 300 {
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(detail))

	switch {
	case code == http.StatusNotFound && isProblem(detail, code):
		return ErrNotFound
	case code == http.StatusNotFound:
		// A bare 404 means the route is missing, not the task.
		return fmt.Errorf("%w: status %d: %s", ErrStoreUnreachable, code, msg)
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return fmt.Errorf("%w: status %d: %s", ErrStoreUnreachable, code, msg)
	default:
		return fmt.Errorf("%w: status %d: %s", ErrRejected, code, msg)
	}
}

// isProblem reports whether body is an error model the task service wrote
// for status, as opposed to a router or proxy page.
func isProblem(body []byte, status int) bool {
	var problem huma.ErrorModel
	if err := json.Unmarshal(body, &problem); err != nil {
		return false
	}
	return problem.Status == status
}
