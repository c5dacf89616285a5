package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/SWCCGArena/rando/internal/model"
	"github.com/SWCCGArena/rando/internal/service"
)

// defaultTraceLimit caps how many decisions a trace request returns when
// the client does not ask for a specific count.
const defaultTraceLimit = 50

// WorkerService is the slice of the worker manager the HTTP layer needs.
type WorkerService interface {
	List(ctx context.Context) []model.WorkerStatus
	Detail(ctx context.Context, name string) (*model.WorkerDetail, error)
	Board(ctx context.Context, name string) (json.RawMessage, error)
	Trace(ctx context.Context, name string, limit int) ([]model.TraceEntry, error)
	Start(name string) error
	Stop(name string) error
}

// WorkerHandler handles the bot worker endpoints.
type WorkerHandler struct {
	workers WorkerService
}

// NewWorkerHandler creates a WorkerHandler.
func NewWorkerHandler(workers WorkerService) *WorkerHandler {
	return &WorkerHandler{workers: workers}
}

// ListWorkers handles GET /api/v1/workers
func (h *WorkerHandler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	statuses := h.workers.List(r.Context())
	if statuses == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

// GetWorker handles GET /api/v1/workers/{name}
func (h *WorkerHandler) GetWorker(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	detail, err := h.workers.Detail(r.Context(), name)
	if err != nil {
		if errors.Is(err, service.ErrUnknownWorker) {
			writeError(w, http.StatusNotFound, "worker not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// GetBoard handles GET /api/v1/workers/{name}/board
func (h *WorkerHandler) GetBoard(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	board, err := h.workers.Board(r.Context(), name)
	if err != nil {
		log.Error().Err(err).Str("worker", name).Msg("Board lookup failed")
		writeError(w, http.StatusInternalServerError, "failed to load board")
		return
	}
	if board == nil {
		writeError(w, http.StatusNotFound, "no board snapshot")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(board)
}

// GetTrace handles GET /api/v1/workers/{name}/trace?limit=N
func (h *WorkerHandler) GetTrace(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	limit, ok := limitParam(w, r, defaultTraceLimit)
	if !ok {
		return
	}

	trace, err := h.workers.Trace(r.Context(), name, limit)
	if err != nil {
		log.Error().Err(err).Str("worker", name).Msg("Trace lookup failed")
		writeError(w, http.StatusInternalServerError, "failed to load trace")
		return
	}
	if trace == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, trace)
}

// StartWorker handles POST /api/v1/workers/{name}/start
func (h *WorkerHandler) StartWorker(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := h.workers.Start(name); err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownWorker):
			writeError(w, http.StatusNotFound, "worker not found")
		case errors.Is(err, service.ErrAlreadyRunning):
			writeError(w, http.StatusConflict, "worker is already running")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

// StopWorker handles POST /api/v1/workers/{name}/stop
func (h *WorkerHandler) StopWorker(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := h.workers.Stop(name); err != nil {
		if errors.Is(err, service.ErrNotRunning) {
			writeError(w, http.StatusConflict, "worker is not running")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}
