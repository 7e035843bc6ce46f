package admission

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"mediapress/internal/logging"
	"mediapress/internal/services"
	"mediapress/internal/tasks"
	"mediapress/internal/testsupport"
)

type captureEnqueuer struct {
	jobs []string
	err  error
}

func (e *captureEnqueuer) Enqueue(taskID, handle string) error {
	if e.err != nil {
		return e.err
	}
	e.jobs = append(e.jobs, taskID)
	return nil
}

func newController(t *testing.T, quota int) (*Controller, *tasks.Store, *captureEnqueuer) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithQuota(quota))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	enqueuer := &captureEnqueuer{}
	return NewController(cfg, store, enqueuer, nil, logging.NewNop()), store, enqueuer
}

func TestSubmitAdmitsAndEnqueues(t *testing.T) {
	ctrl, store, enqueuer := newController(t, 3)

	receipt, err := ctrl.Submit(context.Background(), "alice", "photo.png", strings.NewReader("pngdata"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if receipt.Status != tasks.StatusQueued {
		t.Errorf("receipt status = %q, want queued", receipt.Status)
	}
	if receipt.JobHandle == "" {
		t.Error("receipt missing job handle")
	}

	stored, err := store.GetByID(context.Background(), receipt.TaskID)
	if err != nil {
		t.Fatal(err)
	}
	if stored == nil {
		t.Fatal("task row not created")
	}
	if stored.JobHandle != receipt.JobHandle {
		t.Errorf("stored handle = %q, want %q", stored.JobHandle, receipt.JobHandle)
	}
	data, err := os.ReadFile(stored.SourcePath)
	if err != nil {
		t.Fatalf("read spooled upload: %v", err)
	}
	if string(data) != "pngdata" {
		t.Errorf("spooled content = %q", data)
	}
	if len(enqueuer.jobs) != 1 || enqueuer.jobs[0] != receipt.TaskID {
		t.Errorf("enqueued jobs = %v", enqueuer.jobs)
	}
}

func TestSubmitRejectsOverQuotaWithoutSideEffects(t *testing.T) {
	ctrl, store, enqueuer := newController(t, 3)

	for i := 0; i < 3; i++ {
		if _, err := ctrl.Submit(context.Background(), "alice", "photo.png", strings.NewReader("x")); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	_, err := ctrl.Submit(context.Background(), "alice", "photo.png", strings.NewReader("x"))
	if !errors.Is(err, services.ErrQuota) {
		t.Fatalf("err = %v, want quota rejection", err)
	}

	active, err := store.CountActiveForUser(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if active != 3 {
		t.Errorf("active tasks = %d, want 3 (rejection created a row)", active)
	}
	if len(enqueuer.jobs) != 3 {
		t.Errorf("enqueued jobs = %d, want 3", len(enqueuer.jobs))
	}
}

func TestSubmitQuotaIsPerUser(t *testing.T) {
	ctrl, _, _ := newController(t, 3)

	for i := 0; i < 3; i++ {
		if _, err := ctrl.Submit(context.Background(), "alice", "a.png", strings.NewReader("x")); err != nil {
			t.Fatalf("alice submit %d: %v", i, err)
		}
	}
	if _, err := ctrl.Submit(context.Background(), "bob", "b.png", strings.NewReader("x")); err != nil {
		t.Fatalf("bob blocked by alice's quota: %v", err)
	}
}

func TestSubmitTerminalTasksFreeQuota(t *testing.T) {
	ctrl, store, _ := newController(t, 3)

	var last *Receipt
	for i := 0; i < 3; i++ {
		receipt, err := ctrl.Submit(context.Background(), "alice", "a.png", strings.NewReader("x"))
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		last = receipt
	}

	patch := tasks.Patch{Status: tasks.StatusOf(tasks.StatusCompleted), Progress: tasks.IntOf(100)}
	if err := store.Apply(context.Background(), last.TaskID, patch); err != nil {
		t.Fatal(err)
	}

	if _, err := ctrl.Submit(context.Background(), "alice", "a.png", strings.NewReader("x")); err != nil {
		t.Fatalf("submit after slot freed: %v", err)
	}
}

func TestSubmitRejectsMissingFields(t *testing.T) {
	ctrl, _, _ := newController(t, 3)

	if _, err := ctrl.Submit(context.Background(), "", "a.png", strings.NewReader("x")); !services.IsPermanent(err) {
		t.Errorf("missing user id: err = %v", err)
	}
	if _, err := ctrl.Submit(context.Background(), "alice", "", strings.NewReader("x")); !services.IsPermanent(err) {
		t.Errorf("missing filename: err = %v", err)
	}
}
