package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/consultra/engine/internal/cache"
	"github.com/consultra/engine/internal/models"
	"github.com/consultra/engine/internal/repository"
	appErr "github.com/consultra/engine/pkg/errors"
	"github.com/consultra/engine/pkg/logger"
)

// Store is the project lifecycle store: transactional project/module creation,
// whitelisted updates, the append-only progress ledger, and report persistence,
// with a read-through cache in front of Postgres.
type Store interface {
	CreateProject(ctx context.Context, input *CreateProjectInput) (*models.Project, error)
	GetProject(ctx context.Context, projectID uuid.UUID) (*models.Project, error)
	UpdateProject(ctx context.Context, projectID uuid.UUID, updates map[string]any) error
	AddProgressUpdate(ctx context.Context, projectID uuid.UUID, input *ProgressInput) error
	GetProgressUpdates(ctx context.Context, projectID uuid.UUID, limit int) ([]models.ProgressUpdate, error)
	SaveProjectReport(ctx context.Context, projectID uuid.UUID, input *ReportInput) (*models.ProjectReport, error)
	GetProjectReport(ctx context.Context, projectID uuid.UUID) (*models.ProjectReport, error)
	GetClientProjects(ctx context.Context, clientID uuid.UUID, limit int) ([]models.Project, error)
	UpdateModule(ctx context.Context, moduleID uuid.UUID, updates map[string]any) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// CreateProjectInput describes a project and its work modules, persisted as
// one atomic unit.
type CreateProjectInput struct {
	ClientID             string
	Title                string
	Query                string
	Context              string
	Timeframe            string
	Budget               string
	Urgency              string
	ExpectedDeliverables []string
	Requirements         map[string]any
	FeasibilityAnalysis  map[string]any
	Modules              []ModuleInput
}

// ModuleInput is one planned work module. ID may be pre-assigned by the
// planner so sibling modules can reference it in Dependencies.
type ModuleInput struct {
	ID             string
	ModuleType     string
	Title          string
	Description    string
	SpecialistType string
	EstimatedHours float64
	Deliverables   []string
	Dependencies   []string
}

// ProgressInput is one ledger entry.
type ProgressInput struct {
	Phase              string
	Message            string
	ProgressPercentage int
	AgentName          string
	AgentRole          string
	Metadata           map[string]any
}

// ReportInput is a compiled report ready for persistence.
type ReportInput struct {
	ExecutiveSummary      string
	KeyFindings           []string
	Recommendations       map[string]any
	ImplementationRoadmap map[string]any
	RiskMitigation        []string
	SuccessMetrics        []string
	QualityScore          float64
	Deliverables          []string
}

// Fields accepted by UpdateProject; anything else is silently ignored.
var projectUpdateWhitelist = map[string]bool{
	"status":            true,
	"quality_score":     true,
	"execution_start":   true,
	"actual_completion": true,
}

const defaultEstimatedHours = 2

type projectStore struct {
	db       *gorm.DB
	clients  repository.ClientRepository
	projects repository.ProjectRepository
	modules  repository.ModuleRepository
	progress repository.ProgressRepository
	reports  repository.ReportRepository
	cache    cache.Cache
	ttl      time.Duration
}

// New assembles a Store over gorm repositories and a cache. ttl bounds how
// long cached project reads stay valid.
func New(db *gorm.DB, c cache.Cache, ttl time.Duration) Store {
	return &projectStore{
		db:       db,
		clients:  repository.NewClientRepository(db),
		projects: repository.NewProjectRepository(db),
		modules:  repository.NewModuleRepository(db),
		progress: repository.NewProgressRepository(db),
		reports:  repository.NewReportRepository(db),
		cache:    c,
		ttl:      ttl,
	}
}

var _ Store = (*projectStore)(nil)

func (s *projectStore) CreateProject(ctx context.Context, input *CreateProjectInput) (*models.Project, error) {
	if input == nil || strings.TrimSpace(input.Title) == "" {
		return nil, appErr.New(appErr.CodeInvalid, "project title is required")
	}

	mods, err := normalizeModules(input.Modules)
	if err != nil {
		return nil, err
	}

	// Resolve the owning client outside the transaction; the demo client is
	// created lazily when no client id is supplied.
	var clientID uuid.UUID
	if strings.TrimSpace(input.ClientID) == "" {
		c, err := s.clients.EnsureDefault(ctx)
		if err != nil {
			return nil, err
		}
		clientID = c.ID
	} else {
		parsed, err := uuid.Parse(input.ClientID)
		if err != nil {
			return nil, appErr.Wrap(err, appErr.CodeInvalid, "invalid client id")
		}
		var c models.Client
		if err := s.clients.GetByID(ctx, parsed, &c); err != nil {
			return nil, err
		}
		clientID = c.ID
	}

	project := &models.Project{
		ID:                   uuid.New(),
		ClientID:             clientID,
		Title:                input.Title,
		Query:                input.Query,
		Context:              input.Context,
		Timeframe:            input.Timeframe,
		Budget:               input.Budget,
		Urgency:              input.Urgency,
		ExpectedDeliverables: mustJSON(input.ExpectedDeliverables),
		Requirements:         mustJSON(input.Requirements),
		FeasibilityAnalysis:  mustJSON(input.FeasibilityAnalysis),
		Status:               models.StatusInitiated,
	}

	// All modules or none: if any insert fails the project row rolls back too.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(project).Error; err != nil {
			return appErr.Wrap(err, appErr.CodeInternal, "create project failed")
		}
		for i := range mods {
			mods[i].ProjectID = project.ID
			if err := tx.Create(&mods[i]).Error; err != nil {
				return appErr.Wrap(err, appErr.CodeInternal, "create work module failed")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	project.Modules = mods
	s.invalidate(ctx, cache.ClientProjectsKey(clientID.String()))

	logger.L().Info("project created",
		zap.String("project_id", project.ID.String()),
		zap.String("client_id", clientID.String()),
		zap.Int("modules", len(mods)))
	return project, nil
}

// normalizeModules applies the intake coercions: pre-assigned or fresh uuid
// ids, positive integer hour estimates, synthesized titles, dependency
// filtering, and the cycle check.
func normalizeModules(items []ModuleInput) ([]models.WorkModule, error) {
	ids := make([]uuid.UUID, len(items))
	known := make(map[uuid.UUID]int, len(items))
	for i, item := range items {
		id, err := uuid.Parse(item.ID)
		if err != nil {
			id = uuid.New()
		}
		ids[i] = id
		known[id] = i
	}

	deps := make([][]uuid.UUID, len(items))
	out := make([]models.WorkModule, len(items))
	for i, item := range items {
		est := int(item.EstimatedHours)
		if est < 1 {
			est = defaultEstimatedHours
		}

		title := strings.TrimSpace(item.Title)
		if title == "" {
			title = synthesizeTitle(item.Description, item.ModuleType)
		}

		var kept []string
		for _, d := range item.Dependencies {
			id, err := uuid.Parse(d)
			if err != nil {
				// Non-conforming references are dropped, not failed. An
				// upstream planner emitting human-readable step ids loses its
				// edges here, so the drop is at least made visible.
				logger.L().Warn("dropping non-uuid module dependency",
					zap.String("module", title), zap.String("dependency", d))
				continue
			}
			kept = append(kept, id.String())
			deps[i] = append(deps[i], id)
		}

		out[i] = models.WorkModule{
			ID:             ids[i],
			ModuleType:     item.ModuleType,
			Title:          title,
			Description:    item.Description,
			SpecialistType: item.SpecialistType,
			EstimatedHours: est,
			Status:         models.ModulePending,
			Deliverables:   mustJSON(item.Deliverables),
			Dependencies:   mustJSON(kept),
		}
	}

	if err := checkDependencyCycles(ids, deps, known); err != nil {
		return nil, err
	}
	return out, nil
}

// checkDependencyCycles runs Kahn's algorithm over intra-project dependency
// edges. Dependencies on unknown ids are tolerated (they may reference modules
// outside this creation batch in future revisions); a cycle among the batch is
// rejected outright, since it would deadlock execution sequencing.
func checkDependencyCycles(ids []uuid.UUID, deps [][]uuid.UUID, known map[uuid.UUID]int) error {
	indegree := make([]int, len(ids))
	dependents := make([][]int, len(ids))
	for i, dd := range deps {
		for _, d := range dd {
			j, ok := known[d]
			if !ok {
				continue
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	queue := make([]int, 0, len(ids))
	for i, deg := range indegree {
		if deg == 0 {
			queue = append(queue, i)
		}
	}
	visited := 0
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		visited++
		for _, m := range dependents[n] {
			indegree[m]--
			if indegree[m] == 0 {
				queue = append(queue, m)
			}
		}
	}
	if visited != len(ids) {
		return appErr.New(appErr.CodeInvalid, "work module dependencies contain a cycle")
	}
	return nil
}

func synthesizeTitle(description, moduleType string) string {
	desc := strings.TrimSpace(description)
	if desc == "" {
		return strings.ReplaceAll(moduleType, "_", " ")
	}
	words := strings.Fields(desc)
	if len(words) > 8 {
		words = words[:8]
	}
	return strings.Join(words, " ")
}

func (s *projectStore) GetProject(ctx context.Context, projectID uuid.UUID) (*models.Project, error) {
	key := cache.ProjectKey(projectID.String())

	if b, err := s.cache.Get(ctx, key); err == nil {
		var p models.Project
		if err := json.Unmarshal(b, &p); err == nil {
			return &p, nil
		}
		// Corrupt entry: drop it and fall through to the source of truth.
		s.invalidate(ctx, key)
	} else if err != cache.ErrMiss {
		logger.L().Warn("project cache read failed", zap.String("project_id", projectID.String()), zap.Error(err))
	}

	var p models.Project
	if err := s.projects.GetWithModules(ctx, projectID, &p); err != nil {
		return nil, err
	}

	if b, err := json.Marshal(&p); err == nil {
		if err := s.cache.Set(ctx, key, b, s.ttl); err != nil {
			logger.L().Warn("project cache write failed", zap.String("project_id", projectID.String()), zap.Error(err))
		}
	}
	return &p, nil
}

func (s *projectStore) UpdateProject(ctx context.Context, projectID uuid.UUID, updates map[string]any) error {
	fields := make(map[string]any, len(updates))
	for k, v := range updates {
		if projectUpdateWhitelist[k] {
			fields[k] = v
		}
	}
	if len(fields) == 0 {
		return appErr.New(appErr.CodeInvalid, "no updatable fields supplied")
	}

	var p models.Project
	if err := s.projects.GetByID(ctx, projectID, &p); err != nil {
		return err
	}

	if err := s.projects.UpdateFields(ctx, projectID, fields); err != nil {
		return err
	}

	// Invalidation happens strictly after the committed write, project entry
	// first, then the client list.
	s.invalidate(ctx, cache.ProjectKey(projectID.String()))
	s.invalidate(ctx, cache.ClientProjectsKey(p.ClientID.String()))
	return nil
}

func (s *projectStore) AddProgressUpdate(ctx context.Context, projectID uuid.UUID, input *ProgressInput) error {
	if input == nil {
		return appErr.New(appErr.CodeInvalid, "progress input is required")
	}
	u := &models.ProgressUpdate{
		ProjectID:          projectID,
		Phase:              input.Phase,
		Message:            input.Message,
		ProgressPercentage: input.ProgressPercentage,
		AgentName:          input.AgentName,
		AgentRole:          input.AgentRole,
		Metadata:           mustJSON(input.Metadata),
	}
	return s.progress.Append(ctx, u)
}

func (s *projectStore) GetProgressUpdates(ctx context.Context, projectID uuid.UUID, limit int) ([]models.ProgressUpdate, error) {
	rows, err := s.progress.ListByProject(ctx, projectID, limit)
	if err != nil {
		return nil, err
	}
	// Stored most-recent-first; callers receive chronological order.
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

func (s *projectStore) SaveProjectReport(ctx context.Context, projectID uuid.UUID, input *ReportInput) (*models.ProjectReport, error) {
	if input == nil {
		return nil, appErr.New(appErr.CodeInvalid, "report input is required")
	}
	var p models.Project
	if err := s.projects.GetByID(ctx, projectID, &p); err != nil {
		return nil, err
	}

	r := &models.ProjectReport{
		ProjectID:             projectID,
		ExecutiveSummary:      input.ExecutiveSummary,
		KeyFindings:           mustJSON(input.KeyFindings),
		Recommendations:       mustJSON(input.Recommendations),
		ImplementationRoadmap: mustJSON(input.ImplementationRoadmap),
		RiskMitigation:        mustJSON(input.RiskMitigation),
		SuccessMetrics:        mustJSON(input.SuccessMetrics),
		QualityScore:          input.QualityScore,
		Deliverables:          mustJSON(input.Deliverables),
	}
	if err := s.reports.Create(ctx, r); err != nil {
		return nil, err
	}

	// Subsequent project reads must reflect the new report linkage.
	s.invalidate(ctx, cache.ProjectKey(projectID.String()))

	logger.L().Info("project report saved",
		zap.String("project_id", projectID.String()),
		zap.String("report_id", r.ID.String()),
		zap.Float64("quality_score", r.QualityScore))
	return r, nil
}

func (s *projectStore) GetProjectReport(ctx context.Context, projectID uuid.UUID) (*models.ProjectReport, error) {
	var r models.ProjectReport
	if err := s.reports.GetLatestByProject(ctx, projectID, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *projectStore) GetClientProjects(ctx context.Context, clientID uuid.UUID, limit int) ([]models.Project, error) {
	key := cache.ClientProjectsKey(clientID.String())

	if b, err := s.cache.Get(ctx, key); err == nil {
		var out []models.Project
		if err := json.Unmarshal(b, &out); err == nil {
			return out, nil
		}
		s.invalidate(ctx, key)
	} else if err != cache.ErrMiss {
		logger.L().Warn("client list cache read failed", zap.String("client_id", clientID.String()), zap.Error(err))
	}

	out, err := s.projects.ListByClient(ctx, clientID, limit)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(out); err == nil {
		if err := s.cache.Set(ctx, key, b, s.ttl); err != nil {
			logger.L().Warn("client list cache write failed", zap.String("client_id", clientID.String()), zap.Error(err))
		}
	}
	return out, nil
}

func (s *projectStore) UpdateModule(ctx context.Context, moduleID uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return appErr.New(appErr.CodeInvalid, "no module fields supplied")
	}
	var m models.WorkModule
	if err := s.modules.GetByID(ctx, moduleID, &m); err != nil {
		return err
	}
	if err := s.modules.UpdateFields(ctx, moduleID, updates); err != nil {
		return err
	}
	// The module aggregate lives inside the cached project entry.
	s.invalidate(ctx, cache.ProjectKey(m.ProjectID.String()))
	return nil
}

func (s *projectStore) HealthCheck(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return appErr.Wrap(err, appErr.CodeUnavailable, "database handle unavailable")
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return appErr.Wrap(err, appErr.CodeUnavailable, "database ping failed")
	}
	return nil
}

func (s *projectStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// invalidate drops cache keys, logging failures; a broken cache never fails
// the write that triggered the invalidation.
func (s *projectStore) invalidate(ctx context.Context, keys ...string) {
	if err := s.cache.Delete(ctx, keys...); err != nil {
		logger.L().Warn("cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func mustJSON(v any) datatypes.JSON {
	if v == nil {
		return datatypes.JSON("null")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(b)
}
