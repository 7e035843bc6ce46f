package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"mediapress/internal/logging"
	"mediapress/internal/tasks"
	"mediapress/internal/testsupport"
)

func TestDispatcherRunsEnqueuedJobs(t *testing.T) {
	chain := newFakeChain()
	runner, store, _ := newRunnerHarness(t, chain)
	d := NewDispatcher(runner.cfg, store, runner, logging.NewNop())

	task := testsupport.NewTask(t, store, "alice", "photo.png")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	if err := d.Enqueue(task.ID, "h-disp"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		stored, err := store.GetByID(context.Background(), task.ID)
		if err != nil {
			t.Fatal(err)
		}
		if stored.Status == tasks.StatusCompleted {
			d.Stop()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("task did not complete before deadline")
}

func TestRecoverRequeuesInterruptedAndQueued(t *testing.T) {
	chain := newFakeChain()
	runner, store, _ := newRunnerHarness(t, chain)
	d := NewDispatcher(runner.cfg, store, runner, logging.NewNop())

	// One task stuck in processing from a previous run, one still queued.
	interrupted := testsupport.NewTask(t, store, "alice", "a.png")
	patch := tasks.Patch{
		Status:    tasks.StatusOf(tasks.StatusProcessing),
		Progress:  tasks.IntOf(55),
		JobHandle: tasks.StringOf("stale-handle"),
	}
	if err := store.Apply(context.Background(), interrupted.ID, patch); err != nil {
		t.Fatal(err)
	}
	queued := testsupport.NewTask(t, store, "bob", "b.png")

	if err := d.Recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}

	for _, id := range []string{interrupted.ID, queued.ID} {
		stored, err := store.GetByID(context.Background(), id)
		if err != nil {
			t.Fatal(err)
		}
		if stored.Status != tasks.StatusQueued {
			t.Errorf("task %s status = %q, want queued", id, stored.Status)
		}
		if stored.JobHandle == "" || stored.JobHandle == "stale-handle" {
			t.Errorf("task %s handle = %q, want fresh handle", id, stored.JobHandle)
		}
	}

	// Committed progress survives the requeue.
	stored, err := store.GetByID(context.Background(), interrupted.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Progress != 55 {
		t.Errorf("interrupted task progress = %d, want 55", stored.Progress)
	}

	// Both jobs sit in the queue ready for workers.
	if got := len(d.queue); got != 2 {
		t.Errorf("queue length = %d, want 2", got)
	}
}

func TestEnqueueReportsFullQueue(t *testing.T) {
	chain := newFakeChain()
	runner, store, _ := newRunnerHarness(t, chain)
	d := NewDispatcher(runner.cfg, store, runner, logging.NewNop())

	for i := 0; i < queueCapacity; i++ {
		if err := d.Enqueue("task", "handle"); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	if err := d.Enqueue("task", "handle"); err != ErrQueueFull {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
}

func TestEnqueueRecordsQueuedState(t *testing.T) {
	chain := newFakeChain()
	runner, store, registry := newRunnerHarness(t, chain)
	d := NewDispatcher(runner.cfg, store, runner, logging.NewNop())

	task := testsupport.NewTask(t, store, "alice", "photo.png")
	if err := d.Enqueue(task.ID, "h-pending"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	exec, ok := registry.Lookup(context.Background(), "h-pending")
	if !ok {
		t.Fatal("no execution state recorded for enqueued job")
	}
	if exec.State != ExecQueued {
		t.Errorf("state = %q, want %q", exec.State, ExecQueued)
	}
}

func TestEnqueueAfterStopReturnsError(t *testing.T) {
	chain := newFakeChain()
	runner, store, _ := newRunnerHarness(t, chain)
	d := NewDispatcher(runner.cfg, store, runner, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	d.Stop()

	if err := d.Enqueue("t-late", "h-late"); !errors.Is(err, ErrStopped) {
		t.Fatalf("enqueue after stop = %v, want ErrStopped", err)
	}
	d.Stop()
}
