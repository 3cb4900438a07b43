package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/consultra/engine/internal/analysis"
	"github.com/consultra/engine/internal/api/types"
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

func setupHandler() (*EngagementsHandler, *storetest.Store, *orchestrator.Orchestrator) {
	fs := storetest.New()
	orc := orchestrator.New(fs, nil, nil)
	v := validator.New(validator.WithRequiredStructEnabled())
	return NewEngagementsHandler(orc, fs, nil, v), fs, orc
}

func mountEngagements(h *EngagementsHandler) http.Handler {
	r := chi.NewRouter()
	r.Route("/engagements", func(er chi.Router) {
		er.Get("/", h.List)
		er.Post("/", h.Start)
		er.Get("/{id}", h.Get)
		er.Get("/{id}/progress", h.Progress)
		er.Get("/{id}/report", h.Report)
		er.Post("/{id}/cancel", h.Cancel)
	})
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) (*httptest.ResponseRecorder, types.APIResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp types.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func TestStartEngagement(t *testing.T) {
	h, _, _ := setupHandler()
	router := mountEngagements(h)

	rec, resp := doJSON(t, router, http.MethodPost, "/engagements", types.EngagementStartRequest{
		Query:     "Evaluate our strategy for expansion into adjacent markets",
		Timeframe: "3 months",
		Urgency:   "high",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.True(t, resp.Success)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var started orchestrator.StartResult
	require.NoError(t, json.Unmarshal(data, &started))
	require.True(t, started.Feasible)
	require.NotEqual(t, uuid.Nil, started.Project.ID)
	require.Len(t, started.Project.Modules, 3)
}

func TestStartEngagementValidation(t *testing.T) {
	h, _, _ := setupHandler()
	router := mountEngagements(h)

	rec, resp := doJSON(t, router, http.MethodPost, "/engagements", types.EngagementStartRequest{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.False(t, resp.Success)

	rec, _ = doJSON(t, router, http.MethodPost, "/engagements", types.EngagementStartRequest{
		Query:   "valid query but bogus urgency level",
		Urgency: "apocalyptic",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetEngagement(t *testing.T) {
	h, _, orc := setupHandler()
	router := mountEngagements(h)

	res, err := orc.StartProject(context.Background(), &analysis.ClientRequest{
		Query: "Evaluate our strategy for expansion into adjacent markets",
	})
	require.NoError(t, err)

	rec, resp := doJSON(t, router, http.MethodGet, "/engagements/"+res.Project.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, resp.Success)

	rec, resp = doJSON(t, router, http.MethodGet, "/engagements/"+uuid.NewString(), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "not_found", resp.Error.Code)

	rec, _ = doJSON(t, router, http.MethodGet, "/engagements/not-a-uuid", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelEngagement(t *testing.T) {
	h, _, orc := setupHandler()
	router := mountEngagements(h)

	res, err := orc.StartProject(context.Background(), &analysis.ClientRequest{
		Query: "Evaluate our strategy for expansion into adjacent markets",
	})
	require.NoError(t, err)
	path := "/engagements/" + res.Project.ID.String() + "/cancel"

	// Reason is mandatory.
	rec, _ := doJSON(t, router, http.MethodPost, path, types.EngagementCancelRequest{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp := doJSON(t, router, http.MethodPost, path, types.EngagementCancelRequest{Reason: "budget cut"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, resp.Success)

	// Cancelling a terminal engagement is rejected.
	rec, resp = doJSON(t, router, http.MethodPost, path, types.EngagementCancelRequest{Reason: "again"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid", resp.Error.Code)
}

func TestEngagementProgressAndReport(t *testing.T) {
	h, fs, orc := setupHandler()
	router := mountEngagements(h)
	ctx := context.Background()

	res, err := orc.StartProject(ctx, &analysis.ClientRequest{
		Query: "Evaluate our strategy for expansion into adjacent markets",
	})
	require.NoError(t, err)
	id := res.Project.ID.String()

	// No report before execution.
	rec, _ := doJSON(t, router, http.MethodGet, "/engagements/"+id+"/report", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	out, err := orc.ExecuteProject(ctx, res.Project.ID, nil)
	require.NoError(t, err)
	require.Equal(t, orchestrator.OutcomeCompleted, out.Outcome)

	rec, resp := doJSON(t, router, http.MethodGet, "/engagements/"+id+"/progress", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, resp.Success)

	rec, resp = doJSON(t, router, http.MethodGet, "/engagements/"+id+"/report", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, resp.Success)

	// The list endpoint finds the client's engagement.
	p, err := fs.GetProject(ctx, res.Project.ID)
	require.NoError(t, err)
	rec, resp = doJSON(t, router, http.MethodGet, "/engagements/?client_id="+p.ClientID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, resp.Success)
	require.EqualValues(t, 1, resp.Meta.Total)
}
