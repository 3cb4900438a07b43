// Package storetest provides an in-memory store.Store for tests that need
// lifecycle behavior without Postgres.
package storetest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/consultra/engine/internal/models"
	"github.com/consultra/engine/internal/store"
	appErr "github.com/consultra/engine/pkg/errors"
)

// Store is safe for concurrent use and records the order in which work
// modules reach the completed status.
type Store struct {
	mu              sync.Mutex
	projects        map[uuid.UUID]*models.Project
	progress        map[uuid.UUID][]models.ProgressUpdate
	reports         map[uuid.UUID][]*models.ProjectReport
	completionOrder []uuid.UUID
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		projects: map[uuid.UUID]*models.Project{},
		progress: map[uuid.UUID][]models.ProgressUpdate{},
		reports:  map[uuid.UUID][]*models.ProjectReport{},
	}
}

// CompletionOrder returns module ids in the order they completed.
func (f *Store) CompletionOrder() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID(nil), f.completionOrder...)
}

func mustMarshal(v any) datatypes.JSON {
	b, _ := json.Marshal(v)
	return datatypes.JSON(b)
}

func (f *Store) CreateProject(_ context.Context, input *store.CreateProjectInput) (*models.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := &models.Project{
		ID:                  uuid.New(),
		ClientID:            uuid.New(),
		Title:               input.Title,
		Query:               input.Query,
		Requirements:        mustMarshal(input.Requirements),
		FeasibilityAnalysis: mustMarshal(input.FeasibilityAnalysis),
		Status:              models.StatusInitiated,
	}
	for _, m := range input.Modules {
		id, err := uuid.Parse(m.ID)
		if err != nil {
			id = uuid.New()
		}
		p.Modules = append(p.Modules, models.WorkModule{
			ID:             id,
			ProjectID:      p.ID,
			ModuleType:     m.ModuleType,
			Title:          m.Title,
			Description:    m.Description,
			SpecialistType: m.SpecialistType,
			EstimatedHours: int(m.EstimatedHours),
			Status:         models.ModulePending,
			Dependencies:   mustMarshal(m.Dependencies),
		})
	}
	f.projects[p.ID] = p
	return f.snapshot(p.ID), nil
}

func (f *Store) GetProject(_ context.Context, projectID uuid.UUID) (*models.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.projects[projectID]; !ok {
		return nil, appErr.New(appErr.CodeNotFound, "project not found")
	}
	return f.snapshot(projectID), nil
}

// snapshot copies a project so callers never share mutable state. Caller
// holds the lock.
func (f *Store) snapshot(projectID uuid.UUID) *models.Project {
	p := f.projects[projectID]
	cp := *p
	cp.Modules = append([]models.WorkModule(nil), p.Modules...)
	return &cp
}

func (f *Store) UpdateProject(_ context.Context, projectID uuid.UUID, updates map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[projectID]
	if !ok {
		return appErr.New(appErr.CodeNotFound, "project not found")
	}
	if v, ok := updates["status"].(string); ok {
		p.Status = v
	}
	if v, ok := updates["quality_score"].(float64); ok {
		p.QualityScore = v
	}
	return nil
}

func (f *Store) AddProgressUpdate(_ context.Context, projectID uuid.UUID, input *store.ProgressInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress[projectID] = append(f.progress[projectID], models.ProgressUpdate{
		ID:                 uuid.New(),
		ProjectID:          projectID,
		Phase:              input.Phase,
		Message:            input.Message,
		ProgressPercentage: input.ProgressPercentage,
		AgentName:          input.AgentName,
		AgentRole:          input.AgentRole,
		Metadata:           mustMarshal(input.Metadata),
	})
	return nil
}

func (f *Store) GetProgressUpdates(_ context.Context, projectID uuid.UUID, _ int) ([]models.ProgressUpdate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ProgressUpdate(nil), f.progress[projectID]...), nil
}

func (f *Store) SaveProjectReport(_ context.Context, projectID uuid.UUID, input *store.ReportInput) (*models.ProjectReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := &models.ProjectReport{
		ID:               uuid.New(),
		ProjectID:        projectID,
		ExecutiveSummary: input.ExecutiveSummary,
		KeyFindings:      mustMarshal(input.KeyFindings),
		Recommendations:  mustMarshal(input.Recommendations),
		QualityScore:     input.QualityScore,
	}
	f.reports[projectID] = append(f.reports[projectID], r)
	return r, nil
}

func (f *Store) GetProjectReport(_ context.Context, projectID uuid.UUID) (*models.ProjectReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rs := f.reports[projectID]
	if len(rs) == 0 {
		return nil, appErr.New(appErr.CodeNotFound, "report not found")
	}
	return rs[len(rs)-1], nil
}

func (f *Store) GetClientProjects(_ context.Context, clientID uuid.UUID, _ int) ([]models.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Project
	for id, p := range f.projects {
		if p.ClientID == clientID {
			out = append(out, *f.snapshot(id))
		}
	}
	return out, nil
}

func (f *Store) UpdateModule(_ context.Context, moduleID uuid.UUID, updates map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.projects {
		for i := range p.Modules {
			if p.Modules[i].ID != moduleID {
				continue
			}
			if v, ok := updates["status"].(string); ok {
				p.Modules[i].Status = v
				if v == models.ModuleCompleted {
					f.completionOrder = append(f.completionOrder, moduleID)
				}
			}
			if v, ok := updates["quality_score"].(float64); ok {
				p.Modules[i].QualityScore = v
			}
			if v, ok := updates["deliverables"].(datatypes.JSON); ok {
				p.Modules[i].Deliverables = v
			}
			return nil
		}
	}
	return appErr.New(appErr.CodeNotFound, "module not found")
}

func (f *Store) HealthCheck(context.Context) error { return nil }
func (f *Store) Close() error                      { return nil }
