package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/color"
	"io"
	"mime/multipart"
	"net/http"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"mediapress/internal/logging"
	"mediapress/internal/testsupport"
)

func startTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	cfg := testsupport.NewConfig(t)

	d, err := New(context.Background(), cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(d.Stop)
	return d
}

func encodePNG(t *testing.T) []byte {
	t.Helper()
	img := imaging.New(100, 50, color.NRGBA{R: 10, G: 200, B: 90, A: 255})
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func submitUpload(t *testing.T, baseURL, userID, filename string, content []byte) (*http.Response, []byte) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if userID != "" {
		if err := writer.WriteField("user_id", userID); err != nil {
			t.Fatal(err)
		}
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := writer.Close(); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Post(baseURL+"/api/media", writer.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("post upload: %v", err)
	}
	payload, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	return resp, payload
}

func TestDaemonLifecycleAndHealth(t *testing.T) {
	d := startTestDaemon(t)
	baseURL := "http://" + d.APIAddr()

	resp, err := http.Get(baseURL + "/api/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}

	status := d.Status(context.Background())
	if !status.Running {
		t.Error("daemon not reported running")
	}
	if status.TaskDBPath == "" || status.LockFilePath == "" {
		t.Errorf("incomplete status %+v", status)
	}
}

func TestDaemonRejectsSecondInstance(t *testing.T) {
	d := startTestDaemon(t)

	second, err := New(context.Background(), d.cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	defer second.Close()

	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("second instance acquired the lock")
	}
}

func TestUploadRunsPipelineToCompletion(t *testing.T) {
	d := startTestDaemon(t)
	baseURL := "http://" + d.APIAddr()

	resp, payload := submitUpload(t, baseURL, "alice", "photo.png", encodePNG(t))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload status = %d: %s", resp.StatusCode, payload)
	}
	var receipt struct {
		TaskID    string `json:"task_id"`
		JobHandle string `json:"job_handle"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal(payload, &receipt); err != nil {
		t.Fatalf("decode receipt: %v", err)
	}
	if receipt.Status != "queued" || receipt.TaskID == "" || receipt.JobHandle == "" {
		t.Fatalf("receipt = %+v", receipt)
	}

	deadline := time.Now().Add(30 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatal("task did not complete in time")
		}
		resp, err := http.Get(fmt.Sprintf("%s/api/tasks/%s", baseURL, receipt.TaskID))
		if err != nil {
			t.Fatal(err)
		}
		var task struct {
			Status   string `json:"status"`
			Progress int    `json:"progress"`
			Outputs  *struct {
				Thumbnail string `json:"thumbnail"`
				Variants  []struct {
					Label string `json:"label"`
					URL   string `json:"url"`
				} `json:"variants"`
			} `json:"outputs"`
			ErrorMessage string `json:"error_message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()

		switch task.Status {
		case "completed":
			if task.Progress != 100 {
				t.Errorf("progress = %d, want 100", task.Progress)
			}
			if task.Outputs == nil || len(task.Outputs.Variants) != 3 {
				t.Fatalf("outputs = %+v", task.Outputs)
			}
			return
		case "failed":
			t.Fatalf("task failed: %s", task.ErrorMessage)
		}
		time.Sleep(25 * time.Millisecond)
	}
}

func TestUploadUnsupportedFormatFails(t *testing.T) {
	d := startTestDaemon(t)
	baseURL := "http://" + d.APIAddr()

	resp, payload := submitUpload(t, baseURL, "alice", "notes.txt", []byte("plain text"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload status = %d: %s", resp.StatusCode, payload)
	}
	var receipt struct {
		TaskID string `json:"task_id"`
	}
	if err := json.Unmarshal(payload, &receipt); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatal("task did not fail in time")
		}
		resp, err := http.Get(fmt.Sprintf("%s/api/tasks/%s", baseURL, receipt.TaskID))
		if err != nil {
			t.Fatal(err)
		}
		var task struct {
			Status       string `json:"status"`
			Progress     int    `json:"progress"`
			ErrorMessage string `json:"error_message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()

		if task.Status == "failed" {
			if task.Progress != 0 {
				t.Errorf("progress = %d, want 0", task.Progress)
			}
			if task.ErrorMessage == "" {
				t.Error("error_message empty")
			}
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
}

func TestUploadRequiresFile(t *testing.T) {
	d := startTestDaemon(t)
	baseURL := "http://" + d.APIAddr()

	resp, err := http.Post(baseURL+"/api/media", "application/json", bytes.NewReader(nil))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetUnknownTaskReturns404(t *testing.T) {
	d := startTestDaemon(t)
	baseURL := "http://" + d.APIAddr()

	resp, err := http.Get(baseURL + "/api/tasks/no-such-task")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
