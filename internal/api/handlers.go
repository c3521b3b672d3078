package api

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/edgard/pubplan/internal/database"
	apperrors "github.com/edgard/pubplan/internal/errors"
)

// maxUploadSize caps attachment uploads at 32 MiB.
const maxUploadSize = 32 << 20

// PublicationScheduler is the scheduling operation the API delegates to.
type PublicationScheduler interface {
	SchedulePublication(ctx context.Context, taskID int64, removeFromKanban bool) (*database.Task, error)
}

// Handlers carries the dependencies of all HTTP handlers.
type Handlers struct {
	store     database.Store
	scheduler PublicationScheduler
	uploadDir string
	logger    *slog.Logger
}

// NewHandlers creates the handler set backed by the given store and scheduler.
func NewHandlers(store database.Store, scheduler PublicationScheduler, uploadDir string, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		store:     store,
		scheduler: scheduler,
		uploadDir: uploadDir,
		logger:    logger.With("component", "api_handlers"),
	}
}

// Request/response payloads

type taskRequest struct {
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	ColumnID        *int64     `json:"columnId"`
	Position        int        `json:"position"`
	AssigneeID      *int64     `json:"assigneeId"`
	PublishAt       *time.Time `json:"publishAt"`
	PublishTelegram bool       `json:"publishTelegram"`
	PublishVK       bool       `json:"publishVk"`
	PublishSite     bool       `json:"publishSite"`
	Priority        string     `json:"priority"`
}

type taskResponse struct {
	ID              int64      `json:"id"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	ColumnID        *int64     `json:"columnId"`
	Position        int        `json:"position"`
	AssigneeID      *int64     `json:"assigneeId"`
	PublishAt       *time.Time `json:"publishAt"`
	PublishedAt     *time.Time `json:"publishedAt"`
	PublishTelegram bool       `json:"publishTelegram"`
	PublishVK       bool       `json:"publishVk"`
	PublishSite     bool       `json:"publishSite"`
	Priority        string     `json:"priority"`
	Source          *string    `json:"source"`
	SourceUser      *string    `json:"sourceUser"`
	State           string     `json:"state"`
}

type columnRequest struct {
	Title    string `json:"title"`
	Position int    `json:"position"`
}

type columnResponse struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Position int    `json:"position"`
}

type userRequest struct {
	Name             string `json:"name"`
	TelegramUsername string `json:"telegramUsername"`
}

type userResponse struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	TelegramUsername string `json:"telegramUsername"`
}

type attachmentResponse struct {
	ID         int64     `json:"id"`
	TaskID     int64     `json:"taskId"`
	FileName   string    `json:"fileName"`
	StorageKey string    `json:"storageKey"`
	CreatedAt  time.Time `json:"createdAt"`
}

type scheduleRequest struct {
	RemoveFromKanban bool `json:"removeFromKanban"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func toTaskResponse(task *database.Task) taskResponse {
	resp := taskResponse{
		ID:              task.ID,
		CreatedAt:       task.CreatedAt,
		UpdatedAt:       task.UpdatedAt,
		Title:           task.Title,
		Description:     task.Description,
		Position:        task.Position,
		PublishTelegram: task.PublishTelegram,
		PublishVK:       task.PublishVK,
		PublishSite:     task.PublishSite,
		Priority:        task.Priority,
		State:           string(task.State()),
	}
	if task.ColumnID.Valid {
		resp.ColumnID = &task.ColumnID.Int64
	}
	if task.AssigneeID.Valid {
		resp.AssigneeID = &task.AssigneeID.Int64
	}
	if task.PublishAt.Valid {
		resp.PublishAt = &task.PublishAt.Time
	}
	if task.PublishedAt.Valid {
		resp.PublishedAt = &task.PublishedAt.Time
	}
	if task.Source.Valid {
		resp.Source = &task.Source.String
	}
	if task.SourceUser.Valid {
		resp.SourceUser = &task.SourceUser.String
	}
	return resp
}

func (req *taskRequest) apply(task *database.Task) {
	task.Title = req.Title
	task.Description = req.Description
	task.Position = req.Position
	task.PublishTelegram = req.PublishTelegram
	task.PublishVK = req.PublishVK
	task.PublishSite = req.PublishSite
	task.Priority = req.Priority

	task.ColumnID = sql.NullInt64{}
	if req.ColumnID != nil {
		task.ColumnID = sql.NullInt64{Int64: *req.ColumnID, Valid: true}
	}
	task.AssigneeID = sql.NullInt64{}
	if req.AssigneeID != nil {
		task.AssigneeID = sql.NullInt64{Int64: *req.AssigneeID, Valid: true}
	}
	task.PublishAt = sql.NullTime{}
	if req.PublishAt != nil {
		task.PublishAt = sql.NullTime{Time: req.PublishAt.UTC(), Valid: true}
	}
}

func (req *taskRequest) validate() error {
	if req.Title == "" {
		return apperrors.NewValidationError("title is required", nil)
	}
	switch req.Priority {
	case "", database.PriorityLow, database.PriorityNormal, database.PriorityHigh:
	default:
		return apperrors.NewValidationError(fmt.Sprintf("unknown priority %q", req.Priority), nil)
	}
	return nil
}

// Handlers

// Health reports whether the database answers a ping. The frontend polls it
// to surface store outages.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "Health check failed", "error", err)
		h.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "database unavailable", Code: apperrors.CodeDatabase})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.store.ListTasks(r.Context())
	if err != nil {
		h.writeError(w, r, apperrors.NewDatabaseError("failed to list tasks", err))
		return
	}

	resp := make([]taskResponse, 0, len(tasks))
	for i := range tasks {
		resp = append(resp, toTaskResponse(&tasks[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := h.readJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		h.writeError(w, r, err)
		return
	}

	task := &database.Task{}
	req.apply(task)
	if task.Priority == "" {
		task.Priority = database.PriorityNormal
	}

	if err := h.store.CreateTask(r.Context(), task); err != nil {
		h.writeError(w, r, apperrors.NewDatabaseError("failed to create task", err))
		return
	}
	h.writeJSON(w, http.StatusCreated, toTaskResponse(task))
}

func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	task, err := h.store.GetTask(r.Context(), id)
	if err != nil {
		h.writeError(w, r, apperrors.NewDatabaseError("failed to load task", err))
		return
	}
	if task == nil {
		h.writeError(w, r, apperrors.NewNotFoundError(fmt.Sprintf("task %d not found", id)))
		return
	}
	h.writeJSON(w, http.StatusOK, toTaskResponse(task))
}

// UpdateTask replaces all mutable fields of a task with the request payload.
// Drag-and-drop clients send the full card state, so partial patching is not
// needed.
func (h *Handlers) UpdateTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req taskRequest
	if err := h.readJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		h.writeError(w, r, err)
		return
	}

	task, err := h.store.GetTask(r.Context(), id)
	if err != nil {
		h.writeError(w, r, apperrors.NewDatabaseError("failed to load task", err))
		return
	}
	if task == nil {
		h.writeError(w, r, apperrors.NewNotFoundError(fmt.Sprintf("task %d not found", id)))
		return
	}

	req.apply(task)
	if task.Priority == "" {
		task.Priority = database.PriorityNormal
	}

	if err := h.store.UpdateTask(r.Context(), task); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(w, r, apperrors.NewNotFoundError(fmt.Sprintf("task %d not found", id)))
			return
		}
		h.writeError(w, r, apperrors.NewDatabaseError("failed to update task", err))
		return
	}
	h.writeJSON(w, http.StatusOK, toTaskResponse(task))
}

func (h *Handlers) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.store.DeleteTask(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(w, r, apperrors.NewNotFoundError(fmt.Sprintf("task %d not found", id)))
			return
		}
		h.writeError(w, r, apperrors.NewDatabaseError("failed to delete task", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ScheduleTask invokes the publication scheduler for a task. An occupied
// horizon surfaces as 409, an unknown task as 404.
func (h *Handlers) ScheduleTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req scheduleRequest
	if err := h.readOptionalJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	task, err := h.scheduler.SchedulePublication(r.Context(), id, req.RemoveFromKanban)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toTaskResponse(task))
}

// ListPlan returns the content-plan calendar for a date range, defaulting to
// the next 30 days.
func (h *Handlers) ListPlan(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	from := now.AddDate(0, 0, -1)
	to := now.AddDate(0, 0, 30)

	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.writeError(w, r, apperrors.NewValidationError("invalid 'from' timestamp", err))
			return
		}
		from = parsed
	}
	if v := r.URL.Query().Get("to"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.writeError(w, r, apperrors.NewValidationError("invalid 'to' timestamp", err))
			return
		}
		to = parsed
	}

	tasks, err := h.store.GetPlanTasksBetween(r.Context(), from, to)
	if err != nil {
		h.writeError(w, r, apperrors.NewDatabaseError("failed to list plan", err))
		return
	}

	resp := make([]taskResponse, 0, len(tasks))
	for i := range tasks {
		resp = append(resp, toTaskResponse(&tasks[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) ListColumns(w http.ResponseWriter, r *http.Request) {
	columns, err := h.store.ListColumns(r.Context())
	if err != nil {
		h.writeError(w, r, apperrors.NewDatabaseError("failed to list columns", err))
		return
	}

	resp := make([]columnResponse, 0, len(columns))
	for _, c := range columns {
		resp = append(resp, columnResponse{ID: c.ID, Title: c.Title, Position: c.Position})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) CreateColumn(w http.ResponseWriter, r *http.Request) {
	var req columnRequest
	if err := h.readJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Title == "" {
		h.writeError(w, r, apperrors.NewValidationError("title is required", nil))
		return
	}

	column := &database.Column{Title: req.Title, Position: req.Position}
	if err := h.store.CreateColumn(r.Context(), column); err != nil {
		h.writeError(w, r, apperrors.NewDatabaseError("failed to create column", err))
		return
	}
	h.writeJSON(w, http.StatusCreated, columnResponse{ID: column.ID, Title: column.Title, Position: column.Position})
}

func (h *Handlers) UpdateColumn(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req columnRequest
	if err := h.readJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Title == "" {
		h.writeError(w, r, apperrors.NewValidationError("title is required", nil))
		return
	}

	column := &database.Column{ID: id, Title: req.Title, Position: req.Position}
	if err := h.store.UpdateColumn(r.Context(), column); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(w, r, apperrors.NewNotFoundError(fmt.Sprintf("column %d not found", id)))
			return
		}
		h.writeError(w, r, apperrors.NewDatabaseError("failed to update column", err))
		return
	}
	h.writeJSON(w, http.StatusOK, columnResponse{ID: column.ID, Title: column.Title, Position: column.Position})
}

func (h *Handlers) DeleteColumn(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.store.DeleteColumn(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(w, r, apperrors.NewNotFoundError(fmt.Sprintf("column %d not found", id)))
			return
		}
		h.writeError(w, r, apperrors.NewDatabaseError("failed to delete column", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := h.readJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Name == "" {
		h.writeError(w, r, apperrors.NewValidationError("name is required", nil))
		return
	}

	user := &database.User{Name: req.Name, TelegramUsername: req.TelegramUsername}
	if err := h.store.CreateUser(r.Context(), user); err != nil {
		h.writeError(w, r, apperrors.NewDatabaseError("failed to create user", err))
		return
	}
	h.writeJSON(w, http.StatusCreated, userResponse{ID: user.ID, Name: user.Name, TelegramUsername: user.TelegramUsername})
}

func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		h.writeError(w, r, apperrors.NewDatabaseError("failed to list users", err))
		return
	}

	resp := make([]userResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, userResponse{ID: u.ID, Name: u.Name, TelegramUsername: u.TelegramUsername})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// UploadAttachment stores the uploaded file under the configured directory
// with a generated storage key and records the attachment on the task.
func (h *Handlers) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	taskID, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	task, err := h.store.GetTask(r.Context(), taskID)
	if err != nil {
		h.writeError(w, r, apperrors.NewDatabaseError("failed to load task", err))
		return
	}
	if task == nil {
		h.writeError(w, r, apperrors.NewNotFoundError(fmt.Sprintf("task %d not found", taskID)))
		return
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		h.writeError(w, r, apperrors.NewValidationError("invalid multipart form", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, r, apperrors.NewValidationError("missing 'file' form field", err))
		return
	}
	defer file.Close()

	storageKey := uuid.NewString() + filepath.Ext(header.Filename)
	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		h.writeError(w, r, apperrors.NewDatabaseError("failed to prepare upload directory", err))
		return
	}

	dst, err := os.Create(filepath.Join(h.uploadDir, storageKey))
	if err != nil {
		h.writeError(w, r, apperrors.NewDatabaseError("failed to store file", err))
		return
	}
	defer dst.Close()
	if _, err := io.Copy(dst, file); err != nil {
		h.writeError(w, r, apperrors.NewDatabaseError("failed to store file", err))
		return
	}

	attachment := &database.Attachment{
		TaskID:     taskID,
		FileName:   header.Filename,
		StorageKey: storageKey,
	}
	if err := h.store.CreateAttachment(r.Context(), attachment); err != nil {
		h.writeError(w, r, apperrors.NewDatabaseError("failed to save attachment", err))
		return
	}

	h.writeJSON(w, http.StatusCreated, attachmentResponse{
		ID:         attachment.ID,
		TaskID:     attachment.TaskID,
		FileName:   attachment.FileName,
		StorageKey: attachment.StorageKey,
		CreatedAt:  attachment.CreatedAt,
	})
}

func (h *Handlers) ListAttachments(w http.ResponseWriter, r *http.Request) {
	taskID, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	attachments, err := h.store.ListAttachments(r.Context(), taskID)
	if err != nil {
		h.writeError(w, r, apperrors.NewDatabaseError("failed to list attachments", err))
		return
	}

	resp := make([]attachmentResponse, 0, len(attachments))
	for _, a := range attachments {
		resp = append(resp, attachmentResponse{
			ID:         a.ID,
			TaskID:     a.TaskID,
			FileName:   a.FileName,
			StorageKey: a.StorageKey,
			CreatedAt:  a.CreatedAt,
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) DeleteAttachment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	attachment, err := h.store.GetAttachment(r.Context(), id)
	if err != nil {
		h.writeError(w, r, apperrors.NewDatabaseError("failed to load attachment", err))
		return
	}
	if attachment == nil {
		h.writeError(w, r, apperrors.NewNotFoundError(fmt.Sprintf("attachment %d not found", id)))
		return
	}

	if err := h.store.DeleteAttachment(r.Context(), id); err != nil {
		h.writeError(w, r, apperrors.NewDatabaseError("failed to delete attachment", err))
		return
	}

	// Best-effort file removal; the record is already gone.
	if err := os.Remove(filepath.Join(h.uploadDir, attachment.StorageKey)); err != nil && !os.IsNotExist(err) {
		h.logger.WarnContext(r.Context(), "Failed to remove attachment file",
			"storage_key", attachment.StorageKey, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Helpers

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError(fmt.Sprintf("invalid id %q", raw), err)
	}
	return id, nil
}

func (h *Handlers) readJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxUploadSize))
	if err != nil {
		return apperrors.NewValidationError("failed to read request body", err)
	}
	if err := sonic.Unmarshal(body, v); err != nil {
		return apperrors.NewValidationError("invalid JSON payload", err)
	}
	return nil
}

// readOptionalJSON decodes the body into v, leaving v at its zero value when
// the body is empty. Presence is decided by reading, not by Content-Length,
// since chunked requests report a length of -1.
func (h *Handlers) readOptionalJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxUploadSize))
	if err != nil {
		return apperrors.NewValidationError("failed to read request body", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(body, v); err != nil {
		return apperrors.NewValidationError("invalid JSON payload", err)
	}
	return nil
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		h.logger.Error("Failed to encode response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		h.logger.Error("Failed to write response", "error", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.Code(err)

	var status int
	switch code {
	case apperrors.CodeNotFound:
		status = http.StatusNotFound
	case apperrors.CodeNoAvailableSlot:
		status = http.StatusConflict
	case apperrors.CodeValidation:
		status = http.StatusBadRequest
	case apperrors.CodeUnauthorized:
		status = http.StatusUnauthorized
	default:
		status = http.StatusInternalServerError
	}

	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "code", code, "error", err)
	} else {
		h.logger.DebugContext(r.Context(), "Request rejected", "path", r.URL.Path, "code", code, "error", err)
	}

	h.writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}
