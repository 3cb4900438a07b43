package tasks

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/consultra/engine/internal/analysis"
	"github.com/consultra/engine/internal/models"
	"github.com/consultra/engine/internal/orchestrator"
	"github.com/consultra/engine/internal/store/storetest"
	"github.com/consultra/engine/pkg/logger"
)

func TestMain(m *testing.M) {
	_, err := logger.Init("info", "json")
	if err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

func TestNewExecuteTask(t *testing.T) {
	id := uuid.New()
	task, err := NewExecuteTask(id)
	require.NoError(t, err)
	require.Equal(t, TypeExecuteEngagement, task.Type())

	var p ExecutePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	require.Equal(t, id.String(), p.ProjectID)
}

func TestHandleExecuteInvalidPayload(t *testing.T) {
	h := NewExecuteTaskHandler(orchestrator.New(storetest.New(), nil, nil))

	err := h.HandleExecute(context.Background(), asynq.NewTask(TypeExecuteEngagement, []byte("not json")))
	require.Error(t, err)

	bad, _ := json.Marshal(ExecutePayload{ProjectID: "not-a-uuid"})
	err = h.HandleExecute(context.Background(), asynq.NewTask(TypeExecuteEngagement, bad))
	require.Error(t, err)
}

func TestHandleExecuteUnknownProject(t *testing.T) {
	h := NewExecuteTaskHandler(orchestrator.New(storetest.New(), nil, nil))

	task, err := NewExecuteTask(uuid.New())
	require.NoError(t, err)
	require.Error(t, h.HandleExecute(context.Background(), task))
}

func TestHandleExecuteRunsProject(t *testing.T) {
	fs := storetest.New()
	orc := orchestrator.New(fs, nil, nil)
	h := NewExecuteTaskHandler(orc)
	ctx := context.Background()

	res, err := orc.StartProject(ctx, &analysis.ClientRequest{
		Query:     "Evaluate our strategy for expansion into adjacent markets",
		Timeframe: "3 months",
	})
	require.NoError(t, err)

	task, err := NewExecuteTask(res.Project.ID)
	require.NoError(t, err)
	require.NoError(t, h.HandleExecute(ctx, task))

	p, err := fs.GetProject(ctx, res.Project.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, p.Status)
}
