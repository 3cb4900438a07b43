package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/consultra/engine/internal/cache"
	"github.com/consultra/engine/internal/models"
	appErr "github.com/consultra/engine/pkg/errors"
)

// setupStore spins a throwaway Postgres container. Skipped when no container
// runtime is available.
func setupStore(t *testing.T) (Store, *gorm.DB, *cache.Memory) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	pg, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("engine_test"),
		tcpostgres.WithUsername("engine"),
		tcpostgres.WithPassword("engine"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Exec(`CREATE EXTENSION IF NOT EXISTS "pgcrypto"`).Error)
	require.NoError(t, db.AutoMigrate(
		&models.Client{},
		&models.Project{},
		&models.WorkModule{},
		&models.ProgressUpdate{},
		&models.ProjectReport{},
	))

	mem := cache.NewMemory()
	return New(db, mem, time.Minute), db, mem
}

func engagementInput() *CreateProjectInput {
	researchID := uuid.NewString()
	return &CreateProjectInput{
		Title:     "Market entry assessment",
		Query:     "Assess entry into the nordic market",
		Timeframe: "3 months",
		Modules: []ModuleInput{
			{ID: researchID, ModuleType: "research", Description: "background research", EstimatedHours: 4},
			{ModuleType: "analysis", Description: "core analysis", EstimatedHours: 6, Dependencies: []string{researchID}},
		},
	}
}

func TestCreateProjectPersistsAtomically(t *testing.T) {
	s, db, _ := setupStore(t)
	ctx := context.Background()

	p, err := s.CreateProject(ctx, engagementInput())
	require.NoError(t, err)
	require.Equal(t, models.StatusInitiated, p.Status)
	require.Len(t, p.Modules, 2)
	require.NotEqual(t, uuid.Nil, p.ClientID)

	// The demo client was lazily created.
	var c models.Client
	require.NoError(t, db.Where("email = ?", models.DefaultClientEmail).First(&c).Error)
	require.Equal(t, c.ID, p.ClientID)

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got.Modules, 2)
	require.Equal(t, models.ModulePending, got.Modules[0].Status)
}

func TestCreateProjectCycleRejectedBeforeAnyWrite(t *testing.T) {
	s, db, _ := setupStore(t)
	ctx := context.Background()

	a := uuid.NewString()
	b := uuid.NewString()
	_, err := s.CreateProject(ctx, &CreateProjectInput{
		Title: "cyclic",
		Modules: []ModuleInput{
			{ID: a, ModuleType: "research", Description: "a", Dependencies: []string{b}},
			{ID: b, ModuleType: "analysis", Description: "b", Dependencies: []string{a}},
		},
	})
	require.Error(t, err)
	require.True(t, appErr.IsInvalid(err))

	var count int64
	require.NoError(t, db.Model(&models.Project{}).Count(&count).Error)
	require.Zero(t, count)
	require.NoError(t, db.Model(&models.WorkModule{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestCreateProjectFailedModuleInsertRollsBackEverything(t *testing.T) {
	s, db, _ := setupStore(t)
	ctx := context.Background()

	// Two modules sharing a pre-assigned id pass intake normalization and
	// force a primary-key violation on the second module insert, after the
	// project row and the first module are already written inside the
	// transaction. Everything must roll back.
	dup := uuid.NewString()
	_, err := s.CreateProject(ctx, &CreateProjectInput{
		Title: "duplicate module ids",
		Modules: []ModuleInput{
			{ID: dup, ModuleType: "research", Description: "first"},
			{ID: dup, ModuleType: "analysis", Description: "second"},
		},
	})
	require.Error(t, err)
	require.True(t, appErr.IsCode(err, appErr.CodeInternal))

	var count int64
	require.NoError(t, db.Model(&models.Project{}).Count(&count).Error)
	require.Zero(t, count)
	require.NoError(t, db.Model(&models.WorkModule{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestGetProjectServesFromCacheUntilInvalidated(t *testing.T) {
	s, db, _ := setupStore(t)
	ctx := context.Background()

	p, err := s.CreateProject(ctx, engagementInput())
	require.NoError(t, err)

	// Populate the cache.
	_, err = s.GetProject(ctx, p.ID)
	require.NoError(t, err)

	// A write that bypasses the store is invisible while the entry lives.
	require.NoError(t, db.Model(&models.Project{}).Where("id = ?", p.ID).
		Update("title", "changed behind the cache").Error)
	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, "Market entry assessment", got.Title)

	// A store write invalidates; the next read sees both changes.
	require.NoError(t, s.UpdateProject(ctx, p.ID, map[string]any{"status": models.StatusInProgress}))
	got, err = s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusInProgress, got.Status)
	require.Equal(t, "changed behind the cache", got.Title)
}

func TestUpdateProjectWhitelist(t *testing.T) {
	s, _, _ := setupStore(t)
	ctx := context.Background()

	p, err := s.CreateProject(ctx, engagementInput())
	require.NoError(t, err)

	err = s.UpdateProject(ctx, p.ID, map[string]any{"title": "nope", "client_id": uuid.NewString()})
	require.Error(t, err)
	require.True(t, appErr.IsInvalid(err))

	// Whitelisted fields pass through, others are dropped silently.
	require.NoError(t, s.UpdateProject(ctx, p.ID, map[string]any{
		"status":        models.StatusInProgress,
		"quality_score": 0.85,
		"title":         "still nope",
	}))
	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusInProgress, got.Status)
	require.InDelta(t, 0.85, got.QualityScore, 1e-9)
	require.Equal(t, "Market entry assessment", got.Title)
}

func TestUpdateProjectNotFound(t *testing.T) {
	s, _, _ := setupStore(t)

	err := s.UpdateProject(context.Background(), uuid.New(), map[string]any{"status": models.StatusCancelled})
	require.Error(t, err)
	require.True(t, appErr.IsNotFound(err))
}

func TestProgressLedgerChronologicalOrder(t *testing.T) {
	s, _, _ := setupStore(t)
	ctx := context.Background()

	p, err := s.CreateProject(ctx, engagementInput())
	require.NoError(t, err)

	for i, phase := range []string{"intake", "execution", "validation"} {
		require.NoError(t, s.AddProgressUpdate(ctx, p.ID, &ProgressInput{
			Phase:              phase,
			Message:            phase + " update",
			ProgressPercentage: (i + 1) * 10,
		}))
		time.Sleep(5 * time.Millisecond)
	}

	updates, err := s.GetProgressUpdates(ctx, p.ID, 10)
	require.NoError(t, err)
	require.Len(t, updates, 3)
	require.Equal(t, "intake", updates[0].Phase)
	require.Equal(t, "validation", updates[2].Phase)

	// Limit keeps the most recent entries, still chronological.
	updates, err = s.GetProgressUpdates(ctx, p.ID, 2)
	require.NoError(t, err)
	require.Len(t, updates, 2)
	require.Equal(t, "execution", updates[0].Phase)
	require.Equal(t, "validation", updates[1].Phase)
}

func TestSaveAndGetProjectReport(t *testing.T) {
	s, _, _ := setupStore(t)
	ctx := context.Background()

	p, err := s.CreateProject(ctx, engagementInput())
	require.NoError(t, err)

	_, err = s.GetProjectReport(ctx, p.ID)
	require.True(t, appErr.IsNotFound(err))

	saved, err := s.SaveProjectReport(ctx, p.ID, &ReportInput{
		ExecutiveSummary: "summary of the engagement findings and the recommended path",
		KeyFindings:      []string{"finding one"},
		Recommendations:  map[string]any{"primary": "enter via partnership"},
		QualityScore:     0.82,
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, saved.ID)

	got, err := s.GetProjectReport(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, saved.ID, got.ID)
	require.InDelta(t, 0.82, got.QualityScore, 1e-9)
}

func TestGetClientProjects(t *testing.T) {
	s, _, mem := setupStore(t)
	ctx := context.Background()

	p1, err := s.CreateProject(ctx, engagementInput())
	require.NoError(t, err)
	in := engagementInput()
	in.Title = "Second engagement"
	_, err = s.CreateProject(ctx, in)
	require.NoError(t, err)

	items, err := s.GetClientProjects(ctx, p1.ClientID, 10)
	require.NoError(t, err)
	require.Len(t, items, 2)

	// The list is now cached; creating another project invalidates it.
	key := cache.ClientProjectsKey(p1.ClientID.String())
	_, err = mem.Get(ctx, key)
	require.NoError(t, err)

	in = engagementInput()
	in.Title = "Third engagement"
	_, err = s.CreateProject(ctx, in)
	require.NoError(t, err)
	_, err = mem.Get(ctx, key)
	require.ErrorIs(t, err, cache.ErrMiss)

	items, err = s.GetClientProjects(ctx, p1.ClientID, 10)
	require.NoError(t, err)
	require.Len(t, items, 3)
}

func TestUpdateModuleInvalidatesProjectEntry(t *testing.T) {
	s, _, mem := setupStore(t)
	ctx := context.Background()

	p, err := s.CreateProject(ctx, engagementInput())
	require.NoError(t, err)

	_, err = s.GetProject(ctx, p.ID)
	require.NoError(t, err)

	moduleID := p.Modules[0].ID
	require.NoError(t, s.UpdateModule(ctx, moduleID, map[string]any{"status": models.ModuleCompleted}))

	_, err = mem.Get(ctx, cache.ProjectKey(p.ID.String()))
	require.ErrorIs(t, err, cache.ErrMiss)

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	var status string
	for _, m := range got.Modules {
		if m.ID == moduleID {
			status = m.Status
		}
	}
	require.Equal(t, models.ModuleCompleted, status)
}
