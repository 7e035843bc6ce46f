package status

import (
	"context"
	"testing"
	"time"

	"mediapress/internal/logging"
	"mediapress/internal/pipeline"
	"mediapress/internal/tasks"
	"mediapress/internal/testsupport"
)

type staticExecs struct {
	states map[string]pipeline.Execution
}

func (s staticExecs) Lookup(ctx context.Context, handle string) (pipeline.Execution, bool) {
	exec, ok := s.states[handle]
	return exec, ok
}

func newPublisherHarness(t *testing.T) (*Publisher, *tasks.Store, staticExecs) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	execs := staticExecs{states: make(map[string]pipeline.Execution)}
	return NewPublisher(cfg, store, execs, logging.NewNop()), store, execs
}

func collect(t *testing.T, ch <-chan Snapshot, limit int, timeout time.Duration) []Snapshot {
	t.Helper()
	var got []Snapshot
	deadline := time.After(timeout)
	for len(got) < limit {
		select {
		case snapshot, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, snapshot)
		case <-deadline:
			t.Fatalf("timed out after %d snapshots", len(got))
		}
	}
	return got
}

func TestSubscribeUnknownTaskEmitsNotFoundThenCloses(t *testing.T) {
	pub, _, _ := newPublisherHarness(t)

	ch := pub.Subscribe(context.Background(), "no-such-task")
	got := collect(t, ch, 1, time.Second)
	if len(got) != 1 || !got[0].NotFound {
		t.Fatalf("snapshots = %+v", got)
	}
	if _, open := <-ch; open {
		t.Error("channel still open after not-found snapshot")
	}
}

func TestSubscribeStreamsUntilTerminal(t *testing.T) {
	pub, store, execs := newPublisherHarness(t)
	task := testsupport.NewTask(t, store, "alice", "photo.png")

	patch := tasks.Patch{JobHandle: tasks.StringOf("h-1")}
	if err := store.Apply(context.Background(), task.ID, patch); err != nil {
		t.Fatal(err)
	}
	execs.states["h-1"] = pipeline.Execution{
		State: pipeline.ExecRunning, Stage: "convert", Progress: 25,
	}

	ch := pub.Subscribe(context.Background(), task.ID)

	first := collect(t, ch, 1, time.Second)[0]
	if first.Status != tasks.StatusQueued {
		t.Errorf("first status = %q, want queued", first.Status)
	}
	if first.Execution == nil || first.Execution.State != "running" {
		t.Errorf("execution = %+v", first.Execution)
	}
	if first.Execution.Meta.Stage != "convert" {
		t.Errorf("meta stage = %q", first.Execution.Meta.Stage)
	}

	done := tasks.Patch{
		Status:   tasks.StatusOf(tasks.StatusCompleted),
		Progress: tasks.IntOf(100),
		Outputs:  &tasks.Outputs{Thumbnail: "u", Variants: []tasks.Variant{{Label: "1080p", URL: "v"}}},
	}
	if err := store.Apply(context.Background(), task.ID, done); err != nil {
		t.Fatal(err)
	}

	var last Snapshot
	deadline := time.After(3 * time.Second)
	for {
		select {
		case snapshot, ok := <-ch:
			if !ok {
				if last.Status != tasks.StatusCompleted {
					t.Fatalf("stream closed on non-terminal snapshot %+v", last)
				}
				if last.Progress != 100 {
					t.Errorf("final progress = %d", last.Progress)
				}
				if last.Outputs == nil || last.Outputs.Thumbnail != "u" {
					t.Errorf("final outputs = %+v", last.Outputs)
				}
				return
			}
			last = snapshot
		case <-deadline:
			t.Fatal("stream did not close after terminal status")
		}
	}
}

func TestSubscribeStopsOnContextCancel(t *testing.T) {
	pub, store, _ := newPublisherHarness(t)
	task := testsupport.NewTask(t, store, "alice", "photo.png")

	ctx, cancel := context.WithCancel(context.Background())
	ch := pub.Subscribe(ctx, task.ID)
	collect(t, ch, 1, time.Second)
	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, open := <-ch:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after cancellation")
		}
	}
}

func TestSnapshotProgressSequenceNonDecreasing(t *testing.T) {
	pub, store, _ := newPublisherHarness(t)
	task := testsupport.NewTask(t, store, "alice", "photo.png")

	checkpoints := []int{10, 25, 55, 75, 90}
	var seen []int
	for _, cp := range checkpoints {
		patch := tasks.Patch{
			Status:   tasks.StatusOf(tasks.StatusProcessing),
			Progress: tasks.IntOf(cp),
		}
		if err := store.Apply(context.Background(), task.ID, patch); err != nil {
			t.Fatal(err)
		}
		snapshot, terminal, err := pub.Snapshot(context.Background(), task.ID)
		if err != nil {
			t.Fatal(err)
		}
		if terminal {
			t.Fatalf("terminal at checkpoint %d", cp)
		}
		seen = append(seen, snapshot.Progress)
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] < seen[i-1] {
			t.Fatalf("progress regressed: %v", seen)
		}
	}
}

func TestSnapshotReportsQueuedExecutionState(t *testing.T) {
	pub, store, execs := newPublisherHarness(t)
	task := testsupport.NewTask(t, store, "alice", "photo.png")

	patch := tasks.Patch{JobHandle: tasks.StringOf("h-waiting")}
	if err := store.Apply(context.Background(), task.ID, patch); err != nil {
		t.Fatal(err)
	}
	execs.states["h-waiting"] = pipeline.Execution{State: pipeline.ExecQueued}

	snapshot, terminal, err := pub.Snapshot(context.Background(), task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if terminal {
		t.Fatal("queued task reported as terminal")
	}
	if snapshot.Execution == nil || snapshot.Execution.State != "queued" {
		t.Fatalf("execution = %+v, want state queued", snapshot.Execution)
	}
}

func TestSnapshotReadErrorIsNotTreatedAsUnknownTask(t *testing.T) {
	pub, store, _ := newPublisherHarness(t)
	task := testsupport.NewTask(t, store, "alice", "photo.png")
	store.Close()

	snapshot, terminal, err := pub.Snapshot(context.Background(), task.ID)
	if err == nil {
		t.Fatal("expected a read error from the closed store")
	}
	if snapshot.NotFound {
		t.Error("read error reported as not-found")
	}
	if terminal {
		t.Error("read error reported as terminal")
	}
}
