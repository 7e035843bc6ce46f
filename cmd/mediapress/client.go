package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mediapress/internal/status"
	"mediapress/internal/tasks"
)

// apiClient talks to the daemon HTTP API.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient(server, token string) *apiClient {
	return &apiClient{
		baseURL: "http://" + strings.TrimPrefix(server, "http://"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type submitResult struct {
	TaskID    string `json:"task_id"`
	JobHandle string `json:"job_handle"`
	Status    string `json:"status"`
}

type taskView struct {
	TaskID           string         `json:"task_id"`
	UserID           string         `json:"user_id"`
	OriginalFilename string         `json:"original_filename"`
	Status           string         `json:"status"`
	Progress         int            `json:"progress"`
	ErrorMessage     string         `json:"error_message"`
	Outputs          *tasks.Outputs `json:"outputs"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

type daemonStatus struct {
	Running    bool           `json:"running"`
	TaskDBPath string         `json:"task_db_path"`
	LockPath   string         `json:"lock_path"`
	Tasks      map[string]int `json:"tasks"`
}

func (c *apiClient) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (HTTP %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("request failed with HTTP %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *apiClient) submit(ctx context.Context, userID, path string) (*submitResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("user_id", userID); err != nil {
		return nil, err
	}
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	var result submitResult
	if err := c.do(ctx, http.MethodPost, "/api/media", &body, writer.FormDataContentType(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *apiClient) getTask(ctx context.Context, id string) (*taskView, error) {
	var task taskView
	if err := c.do(ctx, http.MethodGet, "/api/tasks/"+id, nil, "", &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *apiClient) listTasks(ctx context.Context, statuses []string) ([]taskView, error) {
	path := "/api/tasks"
	if len(statuses) > 0 {
		path += "?status=" + strings.Join(statuses, "&status=")
	}
	var listing struct {
		Tasks []taskView `json:"tasks"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, "", &listing); err != nil {
		return nil, err
	}
	return listing.Tasks, nil
}

func (c *apiClient) clearTasks(ctx context.Context, status string) (int64, error) {
	var result struct {
		Removed int64 `json:"removed"`
	}
	if err := c.do(ctx, http.MethodDelete, "/api/tasks?status="+status, nil, "", &result); err != nil {
		return 0, err
	}
	return result.Removed, nil
}

func (c *apiClient) removeTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/tasks/"+id, nil, "", nil)
}

func (c *apiClient) status(ctx context.Context) (*daemonStatus, error) {
	var result daemonStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, "", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// watch streams live snapshots, invoking fn for each one until the stream
// ends or fn returns false.
func (c *apiClient) watch(ctx context.Context, id string, fn func(status.Snapshot) bool) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tasks/"+id+"/events", nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	// No client timeout here: the stream stays open until terminal status.
	streaming := &http.Client{}
	resp, err := streaming.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("event stream failed with HTTP %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		// Unknown tasks terminate the stream with {"error":"Task not found"}.
		var frame struct {
			status.Snapshot
			Error string `json:"error"`
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame); err != nil {
			return fmt.Errorf("decode snapshot: %w", err)
		}
		snapshot := frame.Snapshot
		if frame.Error != "" {
			snapshot.NotFound = true
		}
		if !fn(snapshot) {
			return nil
		}
	}
	return scanner.Err()
}
