package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/consultra/engine/internal/analysis"
	"github.com/consultra/engine/internal/models"
	"github.com/consultra/engine/internal/sandbox"
	"github.com/consultra/engine/internal/store"
	appErr "github.com/consultra/engine/pkg/errors"
	"github.com/consultra/engine/pkg/logger"
)

// Execution outcomes beyond the persisted project statuses.
const (
	OutcomeCompleted            = "completed"
	OutcomeManualReviewRequired = "manual_review_required"
)

// maxValidationCycles bounds the validate/resubmit loop. Exceeding it ends in
// a manual-review outcome instead of looping indefinitely.
const maxValidationCycles = 3

// ProgressFunc receives best-effort progress notifications after each phase
// transition. Failures are logged, never raised: a broken callback must not
// stop the orchestrator.
type ProgressFunc func(phase, message string, percent int) error

// Orchestrator drives a project through intake, execution, report
// compilation, and the bounded validation loop.
type Orchestrator struct {
	store     store.Store
	analyzer  *analysis.Analyzer
	clarifier *analysis.Clarifier
	validator *analysis.Validator
	sandbox   *sandbox.Executor
}

// New assembles an Orchestrator. The sandbox executor is required only when
// plans include modules whose type needs code execution.
func New(s store.Store, llm analysis.Completer, sb *sandbox.Executor) *Orchestrator {
	return &Orchestrator{
		store:     s,
		analyzer:  analysis.NewAnalyzer(llm),
		clarifier: analysis.NewClarifier(llm),
		validator: analysis.NewValidator(llm),
		sandbox:   sb,
	}
}

// StartResult is the outcome of intake. An infeasible request still creates a
// project for record-keeping, but it never advances past initiated.
type StartResult struct {
	Project              *models.Project               `json:"project"`
	Feasible             bool                          `json:"feasible"`
	Reason               string                        `json:"reason,omitempty"`
	SuggestedAlternative string                        `json:"suggested_alternative,omitempty"`
	Requirements         *analysis.Requirements        `json:"requirements"`
	Clarification        *analysis.ClarificationResult `json:"clarification,omitempty"`
}

// ExecutionResult reports how an execution run ended.
type ExecutionResult struct {
	Outcome    string                     `json:"outcome"`
	Report     *models.ProjectReport      `json:"report,omitempty"`
	Validation *analysis.ValidationResult `json:"validation,omitempty"`
	Cycles     int                        `json:"cycles"`
}

// StartProject runs intake: requirements analysis, optional scope
// clarification, work-module planning, and transactional persistence.
func (o *Orchestrator) StartProject(ctx context.Context, req *analysis.ClientRequest) (*StartResult, error) {
	if req == nil || req.Query == "" {
		return nil, appErr.New(appErr.CodeInvalid, "client request query is required")
	}

	reqs := o.analyzer.Analyze(ctx, req)

	var clarification *analysis.ClarificationResult
	if reqs.ClarificationNeeded {
		clarification = o.clarifier.Clarify(ctx, reqs)
	}

	feasible := !reqs.FeasibilityWarning
	feasibility := map[string]any{"feasible": feasible}
	result := &StartResult{Feasible: feasible, Requirements: reqs, Clarification: clarification}
	if !feasible {
		result.Reason = "requested scope is not deliverable within the stated constraints"
		if len(reqs.ConstraintIssues) > 0 {
			result.Reason = reqs.ConstraintIssues[0]
		}
		if len(reqs.SuggestedAlternatives) > 0 {
			result.SuggestedAlternative = reqs.SuggestedAlternatives[0]
		}
		feasibility["reason"] = result.Reason
		feasibility["suggested_alternative"] = result.SuggestedAlternative
	}

	project, err := o.store.CreateProject(ctx, &store.CreateProjectInput{
		Title:                projectTitle(req.Query),
		Query:                req.Query,
		Context:              req.Context,
		Timeframe:            req.Timeframe,
		Budget:               req.Budget,
		Urgency:              req.Urgency,
		ExpectedDeliverables: req.ExpectedDeliverables,
		Requirements:         toMap(reqs),
		FeasibilityAnalysis:  feasibility,
		Modules:              planModules(reqs),
	})
	if err != nil {
		return nil, err
	}
	result.Project = project

	_ = o.store.AddProgressUpdate(ctx, project.ID, &store.ProgressInput{
		Phase:              "intake",
		Message:            "project created from client request",
		ProgressPercentage: 5,
		AgentName:          "orchestrator",
		AgentRole:          "lifecycle",
		Metadata:           map[string]any{"feasible": feasible},
	})

	logger.L().Info("project intake complete",
		zap.String("project_id", project.ID.String()),
		zap.Bool("feasible", feasible))
	return result, nil
}

// ExecuteProject walks the project's work modules respecting dependencies,
// compiles a report, and gates it through the validator with a bounded
// resubmission loop.
func (o *Orchestrator) ExecuteProject(ctx context.Context, projectID uuid.UUID, progress ProgressFunc) (*ExecutionResult, error) {
	project, err := o.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if models.TerminalStatus(project.Status) {
		return nil, appErr.Newf(appErr.CodeInvalid, "project is %s and cannot be executed", project.Status)
	}
	if !feasibleProject(project) {
		return nil, appErr.New(appErr.CodeInvalid, "project was assessed as not feasible and cannot be executed")
	}

	if project.Status == models.StatusInitiated {
		now := time.Now().UTC()
		if err := o.store.UpdateProject(ctx, projectID, map[string]any{
			"status":          models.StatusInProgress,
			"execution_start": now,
		}); err != nil {
			return nil, err
		}
		o.notify(progress, "execution", "work module execution started", 10)
	}

	var validation *analysis.ValidationResult
	var guidance string
	for cycle := 1; cycle <= maxValidationCycles; cycle++ {
		if err := o.executeModules(ctx, projectID, progress); err != nil {
			return nil, err
		}

		// Re-read so the compiled report sees final module state.
		project, err = o.store.GetProject(ctx, projectID)
		if err != nil {
			return nil, err
		}

		report := compileReport(project, cycle, guidance)
		o.notify(progress, "compilation", "engagement report compiled", 85)

		validation = o.validator.Validate(ctx, report)
		if validation.Approved {
			saved, err := o.store.SaveProjectReport(ctx, projectID, reportInput(report))
			if err != nil {
				return nil, err
			}
			now := time.Now().UTC()
			if err := o.store.UpdateProject(ctx, projectID, map[string]any{
				"status":            models.StatusCompleted,
				"quality_score":     report.QualityScore,
				"actual_completion": now,
			}); err != nil {
				return nil, err
			}
			_ = o.store.AddProgressUpdate(ctx, projectID, &store.ProgressInput{
				Phase:              "validation",
				Message:            "report approved for delivery",
				ProgressPercentage: 100,
				AgentName:          "orchestrator",
				AgentRole:          "lifecycle",
				Metadata:           map[string]any{"cycles": cycle},
			})
			o.notify(progress, "validation", "report approved, project completed", 100)
			return &ExecutionResult{Outcome: OutcomeCompleted, Report: saved, Validation: validation, Cycles: cycle}, nil
		}

		guidance = validation.ResubmissionGuidance
		_ = o.store.AddProgressUpdate(ctx, projectID, &store.ProgressInput{
			Phase:              "validation",
			Message:            "report rejected: " + validation.Feedback,
			ProgressPercentage: 90,
			AgentName:          "orchestrator",
			AgentRole:          "lifecycle",
			Metadata:           map[string]any{"cycle": cycle, "guidance": guidance},
		})
		o.notify(progress, "validation", fmt.Sprintf("report rejected (cycle %d), reworking", cycle), 90)
	}

	// The bounded loop is exhausted: hand off to a human instead of spinning.
	// The row deliberately stays in_progress so the engagement shows up in
	// work queues until someone picks it up.
	_ = o.store.AddProgressUpdate(ctx, projectID, &store.ProgressInput{
		Phase:              "validation",
		Message:            "validation cycles exhausted, manual review required",
		ProgressPercentage: 95,
		AgentName:          "orchestrator",
		AgentRole:          "lifecycle",
		Metadata:           map[string]any{"cycles": maxValidationCycles},
	})
	o.notify(progress, "validation", "manual review required", 95)
	return &ExecutionResult{Outcome: OutcomeManualReviewRequired, Validation: validation, Cycles: maxValidationCycles}, nil
}

// CancelProject transitions an active project to cancelled. Cancelling a
// terminal project is rejected.
func (o *Orchestrator) CancelProject(ctx context.Context, projectID uuid.UUID, reason string) error {
	if reason == "" {
		return appErr.New(appErr.CodeInvalid, "cancellation reason is required")
	}
	project, err := o.store.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	if models.TerminalStatus(project.Status) {
		return appErr.Newf(appErr.CodeInvalid, "project is %s and cannot be cancelled", project.Status)
	}
	if err := o.store.UpdateProject(ctx, projectID, map[string]any{"status": models.StatusCancelled}); err != nil {
		return err
	}
	_ = o.store.AddProgressUpdate(ctx, projectID, &store.ProgressInput{
		Phase:     "cancellation",
		Message:   "project cancelled: " + reason,
		AgentName: "orchestrator",
		AgentRole: "lifecycle",
		Metadata:  map[string]any{"reason": reason},
	})
	logger.L().Info("project cancelled",
		zap.String("project_id", projectID.String()),
		zap.String("reason", reason))
	return nil
}

// executeModules fans work modules out across goroutines. A module waits on
// its dependencies' done channels (no polling) and modules with no unmet
// dependencies run concurrently.
func (o *Orchestrator) executeModules(ctx context.Context, projectID uuid.UUID, progress ProgressFunc) error {
	project, err := o.store.GetProject(ctx, projectID)
	if err != nil {
		return err
	}

	done := make(map[uuid.UUID]chan struct{}, len(project.Modules))
	for _, m := range project.Modules {
		ch := make(chan struct{})
		if m.Status == models.ModuleCompleted {
			close(ch)
		}
		done[m.ID] = ch
	}

	total := len(project.Modules)
	var completed atomic.Int64
	for _, m := range project.Modules {
		if m.Status == models.ModuleCompleted {
			completed.Add(1)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range project.Modules {
		m := project.Modules[i]
		if m.Status == models.ModuleCompleted {
			continue
		}
		g.Go(func() error {
			for _, depID := range moduleDependencies(&m) {
				ch, ok := done[depID]
				if !ok {
					// Reference to a module outside this project; the store
					// filters these, but tolerate stale data.
					continue
				}
				select {
				case <-ch:
				case <-gctx.Done():
					return gctx.Err()
				}
			}

			// Cancellation stops future scheduling; a fresh status read keeps
			// the window small without interrupting in-flight work.
			current, err := o.store.GetProject(gctx, projectID)
			if err != nil {
				return err
			}
			if current.Status == models.StatusCancelled {
				return appErr.New(appErr.CodeConflict, "project cancelled during execution")
			}

			if err := o.runModule(gctx, projectID, &m, total, &completed, progress); err != nil {
				return err
			}
			close(done[m.ID])
			return nil
		})
	}
	return g.Wait()
}

// runModule executes one work module end to end, delegating to the sandbox
// when the module type requires code execution.
func (o *Orchestrator) runModule(ctx context.Context, projectID uuid.UUID, m *models.WorkModule, total int, completed *atomic.Int64, progress ProgressFunc) error {
	if err := o.store.UpdateModule(ctx, m.ID, map[string]any{"status": models.ModuleInProgress}); err != nil {
		return err
	}
	startPct := modulePercent(total, int(completed.Load()))
	_ = o.store.AddProgressUpdate(ctx, projectID, &store.ProgressInput{
		Phase:              "execution",
		Message:            "module started: " + m.Title,
		ProgressPercentage: startPct,
		AgentName:          m.SpecialistType,
		AgentRole:          m.ModuleType,
		Metadata:           map[string]any{"module_id": m.ID.String(), "slug": titleSlug(m.Title)},
	})
	o.notify(progress, "execution", "module started: "+m.Title, startPct)

	deliverables := map[string]any{"summary": m.Description}
	quality := 0.8

	if requiresSandbox(m.ModuleType) {
		if o.sandbox == nil {
			return appErr.New(appErr.CodeInvalid, "module requires code execution but no sandbox is configured")
		}
		res, err := o.sandbox.Run(ctx, prototypePlan(m))
		if err != nil {
			return err
		}
		deliverables["sandbox"] = map[string]any{
			"workspace":     res.WorkspacePath,
			"files_written": res.FilesWritten,
			"exit_code":     res.TestResult.Code,
			"killed":        res.TestResult.Killed,
		}
		if res.TestResult.Code != 0 {
			quality = 0.5
		}
	}

	fields := map[string]any{
		"status":        models.ModuleCompleted,
		"actual_hours":  float64(m.EstimatedHours),
		"quality_score": quality,
		"deliverables":  toJSON(deliverables),
	}
	if err := o.store.UpdateModule(ctx, m.ID, fields); err != nil {
		return err
	}
	donePct := modulePercent(total, int(completed.Add(1)))
	_ = o.store.AddProgressUpdate(ctx, projectID, &store.ProgressInput{
		Phase:              "execution",
		Message:            "module completed: " + m.Title,
		ProgressPercentage: donePct,
		AgentName:          m.SpecialistType,
		AgentRole:          m.ModuleType,
		Metadata:           map[string]any{"module_id": m.ID.String(), "quality": quality},
	})
	o.notify(progress, "execution", "module completed: "+m.Title, donePct)
	return nil
}

// prototypePlan builds a minimal sandbox plan for a prototype module.
func prototypePlan(m *models.WorkModule) *sandbox.Plan {
	return &sandbox.Plan{
		Files: []sandbox.File{
			{
				Path:    "prototype/main.py",
				Content: fmt.Sprintf("print(%q)\n", "prototype check: "+m.Title),
			},
		},
		TestCommand: "python3 prototype/main.py",
	}
}

// notify invokes the progress callback, swallowing errors and panics. The
// callback blocking is the caller's concern; its failure is never ours.
func (o *Orchestrator) notify(progress ProgressFunc, phase, message string, percent int) {
	if progress == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.L().Warn("progress callback panicked", zap.Any("panic", r))
		}
	}()
	if err := progress(phase, message, percent); err != nil {
		logger.L().Warn("progress callback failed", zap.String("phase", phase), zap.Error(err))
	}
}

func moduleDependencies(m *models.WorkModule) []uuid.UUID {
	var raw []string
	if len(m.Dependencies) > 0 {
		_ = json.Unmarshal(m.Dependencies, &raw)
	}
	out := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		if id, err := uuid.Parse(r); err == nil {
			out = append(out, id)
		}
	}
	return out
}

func feasibleProject(p *models.Project) bool {
	if len(p.FeasibilityAnalysis) == 0 {
		return true
	}
	var fa map[string]any
	if err := json.Unmarshal(p.FeasibilityAnalysis, &fa); err != nil {
		return true
	}
	if v, ok := fa["feasible"].(bool); ok {
		return v
	}
	return true
}

func modulePercent(total, completed int) int {
	if total == 0 {
		return 80
	}
	// Module execution occupies the 10..80 band of overall progress.
	return 10 + (70*completed)/total
}

func projectTitle(query string) string {
	const maxTitle = 80
	if len(query) <= maxTitle {
		return query
	}
	return query[:maxTitle]
}

func toMap(v any) map[string]any {
	b, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return map[string]any{}
	}
	return out
}

func toJSON(v any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(b)
}
