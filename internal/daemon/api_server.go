package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"mediapress/internal/config"
	"mediapress/internal/services"
	"mediapress/internal/tasks"
)

// maxUploadBytes caps a single submission body.
const maxUploadBytes = 2 << 30

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logger,
		daemon: d,
	}

	router := mux.NewRouter()
	router.HandleFunc("/api/health", srv.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/api/status", srv.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/api/media", srv.handleSubmit).Methods(http.MethodPost)
	router.HandleFunc("/api/tasks", srv.handleListTasks).Methods(http.MethodGet)
	router.HandleFunc("/api/tasks", srv.handleClearTasks).Methods(http.MethodDelete)
	router.HandleFunc("/api/tasks/{id}", srv.handleGetTask).Methods(http.MethodGet)
	router.HandleFunc("/api/tasks/{id}", srv.handleRemoveTask).Methods(http.MethodDelete)
	router.HandleFunc("/api/tasks/{id}/events", srv.handleTaskEvents).Methods(http.MethodGet)

	srv.server = &http.Server{
		Handler:           authMiddleware(cfg.Paths.APIToken, router),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", "address", listener.Addr().String())
	return nil
}

func (s *apiServer) stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	counts := make(map[string]int, len(status.Tasks))
	for st, n := range status.Tasks {
		counts[string(st)] = n
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"running":      status.Running,
		"task_db_path": status.TaskDBPath,
		"lock_path":    status.LockFilePath,
		"tasks":        counts,
	})
}

type submitResponse struct {
	TaskID    string `json:"task_id"`
	JobHandle string `json:"job_handle"`
	Status    string `json:"status"`
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()
	userID := strings.TrimSpace(r.FormValue("user_id"))

	receipt, err := s.daemon.controller.Submit(r.Context(), userID, header.Filename, file)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrQuota):
			s.writeError(w, http.StatusTooManyRequests, services.Message(err))
		case services.IsPermanent(err):
			s.writeError(w, http.StatusBadRequest, services.Message(err))
		default:
			s.logger.Error("submission failed", "error", err)
			s.writeError(w, http.StatusInternalServerError, "submission failed")
		}
		return
	}
	s.writeJSON(w, http.StatusCreated, submitResponse{
		TaskID:    receipt.TaskID,
		JobHandle: receipt.JobHandle,
		Status:    string(receipt.Status),
	})
}

type taskResponse struct {
	TaskID           string         `json:"task_id"`
	UserID           string         `json:"user_id"`
	OriginalFilename string         `json:"original_filename"`
	Status           string         `json:"status"`
	Progress         int            `json:"progress"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	Outputs          *tasks.Outputs `json:"outputs,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

func toTaskResponse(task *tasks.Task) taskResponse {
	resp := taskResponse{
		TaskID:           task.ID,
		UserID:           task.UserID,
		OriginalFilename: task.OriginalFilename,
		Status:           string(task.Status),
		Progress:         task.Progress,
		ErrorMessage:     task.ErrorMessage,
		CreatedAt:        task.CreatedAt,
		UpdatedAt:        task.UpdatedAt,
	}
	if outputs, err := task.Outputs(); err == nil && !outputs.IsZero() {
		resp.Outputs = &outputs
	}
	return resp
}

func (s *apiServer) handleListTasks(w http.ResponseWriter, r *http.Request) {
	var statuses []tasks.Status
	for _, value := range r.URL.Query()["status"] {
		if status, ok := tasks.ParseStatus(value); ok {
			statuses = append(statuses, status)
		}
	}
	items, err := s.daemon.store.List(r.Context(), statuses...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	payload := make([]taskResponse, 0, len(items))
	for _, item := range items {
		payload = append(payload, toTaskResponse(item))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"tasks": payload})
}

// handleClearTasks removes terminal task rows. Only completed and failed may
// be cleared; active tasks are never deletable through the API.
func (s *apiServer) handleClearTasks(w http.ResponseWriter, r *http.Request) {
	var removed int64
	var err error
	switch r.URL.Query().Get("status") {
	case "completed":
		removed, err = s.daemon.store.ClearCompleted(r.Context())
	case "failed":
		removed, err = s.daemon.store.ClearFailed(r.Context())
	default:
		s.writeError(w, http.StatusBadRequest, "status must be completed or failed")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}

func (s *apiServer) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	task, err := s.daemon.store.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if task == nil {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	s.writeJSON(w, http.StatusOK, toTaskResponse(task))
}

// handleRemoveTask deletes a single terminal task row. Active tasks must run
// to a terminal status first.
func (s *apiServer) handleRemoveTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	task, err := s.daemon.store.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if task == nil {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if !task.Status.IsTerminal() {
		s.writeError(w, http.StatusConflict, "task is still active")
		return
	}
	if _, err := s.daemon.store.Remove(r.Context(), id); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"removed": id})
}

// handleTaskEvents streams live snapshots over server-sent events until the
// task reaches a terminal status or the client disconnects.
func (s *apiServer) handleTaskEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	id := mux.Vars(r)["id"]

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for snapshot := range s.daemon.publisher.Subscribe(r.Context(), id) {
		var payload []byte
		var err error
		if snapshot.NotFound {
			payload, err = json.Marshal(map[string]string{"error": "Task not found"})
		} else {
			payload, err = json.Marshal(snapshot)
		}
		if err != nil {
			s.logger.Warn("snapshot encode failed", "task_id", id, "error", err)
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return
		}
		flusher.Flush()
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("response encode failed", "error", err)
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
