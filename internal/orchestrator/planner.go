package orchestrator

import (
	"strings"

	"github.com/google/uuid"

	"github.com/consultra/engine/internal/analysis"
	"github.com/consultra/engine/internal/store"
)

// Module types whose execution requires the sandbox.
const (
	moduleTypeResearch  = "research"
	moduleTypeAnalysis  = "analysis"
	moduleTypePrototype = "prototype"
	moduleTypeReporting = "report_drafting"
)

func requiresSandbox(moduleType string) bool {
	return moduleType == moduleTypePrototype
}

// planModules decomposes structured requirements into dependency-ordered work
// modules. Ids are assigned up front so dependency references are stable
// opaque identifiers by the time they reach the store.
func planModules(reqs *analysis.Requirements) []store.ModuleInput {
	researchID := uuid.NewString()
	analysisID := uuid.NewString()

	mods := []store.ModuleInput{
		{
			ID:             researchID,
			ModuleType:     moduleTypeResearch,
			Title:          "Background research",
			Description:    "Gather source material and context for: " + reqs.Scope,
			SpecialistType: "research_analyst",
			EstimatedHours: 4,
			Deliverables:   []string{"research notes", "source inventory"},
		},
		{
			ID:             analysisID,
			ModuleType:     moduleTypeAnalysis,
			Title:          "Core analysis",
			Description:    "Analyze findings against the engagement objectives",
			SpecialistType: specialistFor(reqs.ConsultingType),
			EstimatedHours: 6,
			Deliverables:   []string{"analysis summary", "option comparison"},
			Dependencies:   []string{researchID},
		},
	}

	reportDeps := []string{analysisID}
	if technicalEngagement(reqs) {
		prototypeID := uuid.NewString()
		mods = append(mods, store.ModuleInput{
			ID:             prototypeID,
			ModuleType:     moduleTypePrototype,
			Title:          "Technical prototype",
			Description:    "Validate the recommended approach with executable prototype code",
			SpecialistType: "solutions_engineer",
			EstimatedHours: 8,
			Deliverables:   []string{"prototype run results"},
			Dependencies:   []string{analysisID},
		})
		reportDeps = append(reportDeps, prototypeID)
	}

	mods = append(mods, store.ModuleInput{
		ID:             uuid.NewString(),
		ModuleType:     moduleTypeReporting,
		Title:          "Report drafting",
		Description:    "Draft the client-facing report from all module deliverables",
		SpecialistType: "engagement_lead",
		EstimatedHours: 4,
		Deliverables:   []string{"draft report"},
		Dependencies:   reportDeps,
	})

	return mods
}

func technicalEngagement(reqs *analysis.Requirements) bool {
	switch reqs.ConsultingType {
	case "technology_assessment", "digital_transformation":
		return true
	}
	return len(reqs.TechnicalContext) > 0
}

func specialistFor(consultingType string) string {
	switch consultingType {
	case "market_analysis":
		return "market_analyst"
	case "financial_advisory":
		return "financial_analyst"
	case "technology_assessment", "digital_transformation":
		return "technology_consultant"
	case "operations_improvement":
		return "operations_consultant"
	default:
		return "strategy_consultant"
	}
}

// titleSlug makes a workspace-friendly identifier for progress metadata.
func titleSlug(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	return strings.ReplaceAll(s, " ", "-")
}
