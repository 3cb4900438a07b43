package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/consultra/engine/internal/analysis"
	"github.com/consultra/engine/internal/api/middleware"
	"github.com/consultra/engine/internal/api/types"
	"github.com/consultra/engine/internal/models"
	"github.com/consultra/engine/internal/orchestrator"
	"github.com/consultra/engine/internal/queue/tasks"
	"github.com/consultra/engine/internal/store"
	appErr "github.com/consultra/engine/pkg/errors"
	"github.com/consultra/engine/pkg/logger"
)

// EngagementsHandler exposes the engagement lifecycle over HTTP. Execution is
// asynchronous: the execute endpoint enqueues a task and returns 202.
type EngagementsHandler struct {
	orc      *orchestrator.Orchestrator
	store    store.Store
	queue    *asynq.Client
	validate interface{ Struct(any) error }
}

func NewEngagementsHandler(orc *orchestrator.Orchestrator, s store.Store, q *asynq.Client, v interface{ Struct(any) error }) *EngagementsHandler {
	return &EngagementsHandler{orc: orc, store: s, queue: q, validate: v}
}

func (h *EngagementsHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req types.EngagementStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.orc.StartProject(r.Context(), &analysis.ClientRequest{
		Query:                req.Query,
		Context:              req.Context,
		ExpectedDeliverables: req.ExpectedDeliverables,
		Timeframe:            req.Timeframe,
		Budget:               req.Budget,
		Stakeholders:         req.Stakeholders,
		Urgency:              req.Urgency,
	})
	if err != nil {
		writeError(w, types.HTTPStatus(err), err)
		return
	}

	// Feasible engagements begin executing without a second call. Enqueue
	// failures are logged, not surfaced: the project exists and the execute
	// endpoint remains available.
	if res.Feasible && h.queue != nil {
		if task, terr := tasks.NewExecuteTask(res.Project.ID); terr == nil {
			if _, qerr := h.queue.EnqueueContext(r.Context(), task); qerr != nil {
				logger.L().Warn("auto-execute enqueue failed",
					zap.String("project_id", res.Project.ID.String()), zap.Error(qerr))
			}
		}
	}

	writeJSON(w, http.StatusCreated, types.APIResponse{Success: true, Data: res})
}

func (h *EngagementsHandler) Execute(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	// Validate existence and state before enqueueing so the client gets a
	// synchronous rejection instead of a silently failing task.
	project, err := h.store.GetProject(r.Context(), id)
	if err != nil {
		writeError(w, types.HTTPStatus(err), err)
		return
	}
	if project.Status != models.StatusInitiated && project.Status != models.StatusInProgress {
		err := appErr.Newf(appErr.CodeInvalid, "project is %s and cannot be executed", project.Status)
		writeError(w, types.HTTPStatus(err), err)
		return
	}

	task, err := tasks.NewExecuteTask(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	info, err := h.queue.EnqueueContext(r.Context(), task)
	if err != nil {
		err := appErr.Wrap(err, appErr.CodeUnavailable, "enqueue execution task failed")
		writeError(w, types.HTTPStatus(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, types.APIResponse{Success: true, Data: map[string]string{
		"project_id": id.String(),
		"task_id":    info.ID,
		"state":      "queued",
	}})
}

func (h *EngagementsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	project, err := h.store.GetProject(r.Context(), id)
	if err != nil {
		writeError(w, types.HTTPStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: project})
}

func (h *EngagementsHandler) Progress(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	updates, err := h.store.GetProgressUpdates(r.Context(), id, limit)
	if err != nil {
		writeError(w, types.HTTPStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: updates})
}

func (h *EngagementsHandler) Report(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	report, err := h.store.GetProjectReport(r.Context(), id)
	if err != nil {
		writeError(w, types.HTTPStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: report})
}

func (h *EngagementsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req types.EngagementCancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.orc.CancelProject(r.Context(), id, req.Reason); err != nil {
		writeError(w, types.HTTPStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: map[string]string{
		"project_id": id.String(),
		"status":     "cancelled",
	}})
}

func (h *EngagementsHandler) List(w http.ResponseWriter, r *http.Request) {
	clientStr := r.URL.Query().Get("client_id")
	if clientStr == "" {
		clientStr = middleware.GetClientID(r.Context())
	}
	clientID, err := uuid.Parse(clientStr)
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid client id")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	items, err := h.store.GetClientProjects(r.Context(), clientID, limit)
	if err != nil {
		writeError(w, types.HTTPStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{
		Success: true,
		Data:    items,
		Meta:    &types.Meta{Total: int64(len(items)), PageSize: limit},
	})
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid project id")
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, types.APIResponse{Success: false, Error: types.FromAppError(err)})
}

func writeErrorStr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.APIResponse{Success: false, Error: &types.APIError{Code: "invalid", Message: msg}})
}
