package tasks

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/consultra/engine/internal/orchestrator"
	"github.com/consultra/engine/pkg/logger"
)

// TypeExecuteEngagement is the queue task type for running a project's work
// modules through to a validated report.
const TypeExecuteEngagement = "engagement:execute"

// ExecutePayload is the task payload for engagement execution.
type ExecutePayload struct {
	ProjectID string `json:"project_id"`
}

// NewExecuteTask builds the asynq task that runs one project.
func NewExecuteTask(projectID uuid.UUID) (*asynq.Task, error) {
	b, err := json.Marshal(ExecutePayload{ProjectID: projectID.String()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeExecuteEngagement, b), nil
}

// ExecuteTaskHandler drives engagement execution off the queue.
type ExecuteTaskHandler struct {
	orc *orchestrator.Orchestrator
}

func NewExecuteTaskHandler(orc *orchestrator.Orchestrator) *ExecuteTaskHandler {
	return &ExecuteTaskHandler{orc: orc}
}

func (h *ExecuteTaskHandler) HandleExecute(ctx context.Context, t *asynq.Task) error {
	var p ExecutePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		logger.L().Error("invalid execute task payload", zap.Error(err))
		return err
	}
	id, err := uuid.Parse(p.ProjectID)
	if err != nil {
		logger.L().Error("invalid project id in task", zap.Error(err))
		return err
	}

	logger.L().Info("handling execute task", zap.String("project_id", id.String()))

	progress := func(phase, message string, percent int) error {
		logger.L().Info("engagement progress",
			zap.String("project_id", id.String()),
			zap.String("phase", phase),
			zap.String("message", message),
			zap.Int("percent", percent))
		return nil
	}

	res, err := h.orc.ExecuteProject(ctx, id, progress)
	if err != nil {
		logger.L().Error("execute task failed", zap.String("project_id", id.String()), zap.Error(err))
		return err
	}

	// A manual-review outcome is terminal for the queue: retrying would only
	// burn the same validation cycles again.
	logger.L().Info("execute task finished",
		zap.String("project_id", id.String()),
		zap.String("outcome", res.Outcome),
		zap.Int("cycles", res.Cycles))
	return nil
}
