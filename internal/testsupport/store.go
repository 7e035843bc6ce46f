package testsupport

import (
	"context"
	"testing"

	"mediapress/internal/config"
	"mediapress/internal/tasks"
)

// MustOpenStore opens a tasks.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *tasks.Store {
	t.Helper()

	store, err := tasks.Open(cfg)
	if err != nil {
		t.Fatalf("tasks.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewTask creates a queued task for tests using the provided store.
func NewTask(t testing.TB, store *tasks.Store, userID, filename string) *tasks.Task {
	t.Helper()

	task, err := store.Create(context.Background(), tasks.CreateParams{
		UserID:           userID,
		OriginalFilename: filename,
	})
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return task
}
