package analysis

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/consultra/engine/pkg/logger"
)

// Report is a compiled engagement report as handed to the quality gate.
type Report struct {
	ExecutiveSummary      string         `json:"executive_summary"`
	KeyFindings           []string       `json:"key_findings"`
	Recommendations       map[string]any `json:"recommendations"`
	ImplementationRoadmap map[string]any `json:"implementation_roadmap"`
	RiskMitigation        []string       `json:"risk_mitigation"`
	SuccessMetrics        []string       `json:"success_metrics"`
	Deliverables          []string       `json:"deliverables"`
	QualityScore          float64        `json:"quality_score"`
}

// ValidationResult is the quality gate's verdict on a compiled report.
type ValidationResult struct {
	Approved             bool     `json:"approved"`
	QualityAssessment    string   `json:"quality_assessment"`
	ClientReadiness      bool     `json:"client_readiness"`
	Feedback             string   `json:"feedback"`
	QualityIssues        []string `json:"quality_issues"`
	CompletenessIssues   []string `json:"completeness_issues"`
	RequiredImprovements []string `json:"required_improvements"`
	ResubmissionGuidance string   `json:"resubmission_guidance"`
	BusinessValue        string   `json:"business_value"`
	Actionability        string   `json:"actionability"`
}

// Fallback approval thresholds.
const (
	approvalScoreThreshold   = 0.7
	minExecutiveSummaryChars = 50
)

// Validator is the deliverable quality gate.
type Validator struct {
	llm Completer
}

// NewValidator creates a Validator. When llm is nil the deterministic
// threshold check is used for every report.
func NewValidator(llm Completer) *Validator {
	return &Validator{llm: llm}
}

const validateInstruction = `You are a consulting quality reviewer. Assess the report below for client readiness and respond with exactly one JSON object with these keys:
approved (bool), quality_assessment (excellent|good|adequate|poor), client_readiness (bool), feedback, quality_issues, completeness_issues, required_improvements, resubmission_guidance, business_value, actionability.
Only output the JSON, no other text.`

// Validate gates release of a compiled report. On call failure or unusable
// output it falls back to the deterministic threshold check.
func (v *Validator) Validate(ctx context.Context, report *Report) *ValidationResult {
	if v.llm != nil {
		ctxText, _ := json.Marshal(report)
		reply, err := v.llm.Complete(ctx, validateInstruction, string(ctxText))
		if err == nil {
			if raw, ok := extractJSON(reply); ok {
				var out ValidationResult
				if jsonErr := json.Unmarshal([]byte(raw), &out); jsonErr == nil && out.QualityAssessment != "" {
					return &out
				}
			}
			logger.L().Warn("validator reply had no usable JSON, using fallback")
		} else {
			logger.L().Warn("report validation call failed, using fallback", zap.Error(err))
		}
	}
	return fallbackValidation(report)
}

func fallbackValidation(report *Report) *ValidationResult {
	out := &ValidationResult{}

	hasRecommendations := len(report.Recommendations) > 0
	summaryOK := len(report.ExecutiveSummary) > minExecutiveSummaryChars
	scoreOK := report.QualityScore >= approvalScoreThreshold

	out.Approved = scoreOK && hasRecommendations && summaryOK
	out.ClientReadiness = out.Approved

	switch {
	case report.QualityScore >= 0.9:
		out.QualityAssessment = "excellent"
	case report.QualityScore >= approvalScoreThreshold:
		out.QualityAssessment = "good"
	case report.QualityScore >= 0.5:
		out.QualityAssessment = "adequate"
	default:
		out.QualityAssessment = "poor"
	}

	if !hasRecommendations {
		out.CompletenessIssues = append(out.CompletenessIssues, "recommendations are missing")
		out.RequiredImprovements = append(out.RequiredImprovements, "add actionable recommendations")
	}
	if !summaryOK {
		out.CompletenessIssues = append(out.CompletenessIssues, "executive summary is too short")
		out.RequiredImprovements = append(out.RequiredImprovements, "expand the executive summary")
	}
	if !scoreOK {
		out.QualityIssues = append(out.QualityIssues, "aggregate quality score below approval threshold")
	}

	if out.Approved {
		out.Feedback = "report meets the release threshold"
		out.BusinessValue = "acceptable"
		out.Actionability = "actionable"
	} else {
		out.Feedback = "report does not meet the release threshold"
		out.ResubmissionGuidance = "address the listed issues and resubmit"
		out.BusinessValue = "unclear"
		out.Actionability = "limited"
	}
	return out
}
