package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/consultra/engine/pkg/logger"
)

// ClientRequest is the free-text intake of an advisory engagement.
type ClientRequest struct {
	Query                string   `json:"query"`
	Context              string   `json:"context"`
	ExpectedDeliverables []string `json:"expected_deliverables"`
	Timeframe            string   `json:"timeframe"`
	Budget               string   `json:"budget"`
	Stakeholders         []string `json:"stakeholders"`
	Urgency              string   `json:"urgency"`
}

// Requirements is the structured form derived from a ClientRequest.
type Requirements struct {
	ConsultingType        string         `json:"consulting_type"`
	Scope                 string         `json:"scope"`
	Objectives            []string       `json:"objectives"`
	Constraints           []string       `json:"constraints"`
	SuccessCriteria       []string       `json:"success_criteria"`
	Complexity            string         `json:"complexity"`
	EstimatedEffort       string         `json:"estimated_effort"`
	TargetAudience        string         `json:"target_audience"`
	DeliverableFormat     string         `json:"deliverable_format"`
	KeyStakeholders       []string       `json:"key_stakeholders"`
	FeasibilityWarning    bool           `json:"feasibility_warning"`
	ConstraintIssues      []string       `json:"constraint_issues"`
	SuggestedAlternatives []string       `json:"suggested_alternatives"`
	ClarificationNeeded   bool           `json:"clarification_needed"`
	SuggestedQuestions    []string       `json:"suggested_questions"`
	TechnicalContext      map[string]any `json:"technical_context"`
}

// Queries shorter than this trigger a clarification request in the fallback.
const minQueryLength = 30

// Analyzer turns a free-text client request into structured requirements.
type Analyzer struct {
	llm Completer
}

// NewAnalyzer creates an Analyzer. llm may be nil, in which case every call
// uses the deterministic fallback.
func NewAnalyzer(llm Completer) *Analyzer {
	return &Analyzer{llm: llm}
}

const analyzeInstruction = `You are a consulting intake analyst. Analyze the client request and respond with exactly one JSON object with these keys:
consulting_type, scope, objectives, constraints, success_criteria, complexity, estimated_effort, target_audience, deliverable_format, key_stakeholders, feasibility_warning, constraint_issues, suggested_alternatives, clarification_needed, suggested_questions, technical_context.
Only output the JSON, no other text.`

// Analyze never returns an error: on call failure or unparsable output it
// falls back to deterministic heuristics so the pipeline cannot halt here.
func (a *Analyzer) Analyze(ctx context.Context, req *ClientRequest) *Requirements {
	if a.llm != nil {
		reply, err := a.llm.Complete(ctx, analyzeInstruction, renderRequest(req))
		if err == nil {
			if raw, ok := extractJSON(reply); ok {
				var out Requirements
				if jsonErr := json.Unmarshal([]byte(raw), &out); jsonErr == nil && out.ConsultingType != "" {
					return &out
				}
			}
			logger.L().Warn("requirements reply had no usable JSON, using fallback")
		} else {
			logger.L().Warn("requirements analysis call failed, using fallback", zap.Error(err))
		}
	}
	return fallbackRequirements(req)
}

func renderRequest(req *ClientRequest) string {
	var sb strings.Builder
	sb.WriteString("## Client Request\n\n")
	sb.WriteString(req.Query)
	if req.Context != "" {
		sb.WriteString("\n\n## Context\n\n")
		sb.WriteString(req.Context)
	}
	if len(req.ExpectedDeliverables) > 0 {
		sb.WriteString("\n\nExpected deliverables: " + strings.Join(req.ExpectedDeliverables, ", "))
	}
	if req.Timeframe != "" {
		sb.WriteString("\nTimeframe: " + req.Timeframe)
	}
	if req.Budget != "" {
		sb.WriteString("\nBudget: " + req.Budget)
	}
	if len(req.Stakeholders) > 0 {
		sb.WriteString("\nStakeholders: " + strings.Join(req.Stakeholders, ", "))
	}
	if req.Urgency != "" {
		sb.WriteString("\nUrgency: " + req.Urgency)
	}
	return sb.String()
}

var consultingKeywords = []struct {
	keyword string
	ctype   string
}{
	{"market", "market_analysis"},
	{"competitor", "market_analysis"},
	{"strategy", "strategy"},
	{"strategic", "strategy"},
	{"transformation", "digital_transformation"},
	{"digital", "digital_transformation"},
	{"technology", "technology_assessment"},
	{"architecture", "technology_assessment"},
	{"software", "technology_assessment"},
	{"operations", "operations_improvement"},
	{"process", "operations_improvement"},
	{"cost", "financial_advisory"},
	{"financial", "financial_advisory"},
}

func fallbackRequirements(req *ClientRequest) *Requirements {
	query := strings.ToLower(req.Query)

	ctype := "general_consulting"
	for _, kw := range consultingKeywords {
		if strings.Contains(query, kw.keyword) {
			ctype = kw.ctype
			break
		}
	}

	var constraints []string
	if req.Timeframe != "" {
		constraints = append(constraints, fmt.Sprintf("timeframe: %s", req.Timeframe))
	}
	if req.Budget != "" {
		constraints = append(constraints, fmt.Sprintf("budget: %s", req.Budget))
	}
	if req.Urgency != "" {
		constraints = append(constraints, fmt.Sprintf("urgency: %s", req.Urgency))
	}

	out := &Requirements{
		ConsultingType:    ctype,
		Scope:             req.Query,
		Objectives:        []string{"address the stated client request"},
		Constraints:       constraints,
		SuccessCriteria:   []string{"deliverables accepted by the client"},
		Complexity:        "medium",
		EstimatedEffort:   "standard engagement",
		TargetAudience:    "client leadership",
		DeliverableFormat: "written report",
		KeyStakeholders:   req.Stakeholders,
		TechnicalContext:  map[string]any{},
	}

	// An aggressive timeframe paired with broad-scope language is the classic
	// infeasible ask.
	if aggressiveTimeframe(req.Timeframe) && broadScope(query) {
		out.FeasibilityWarning = true
		out.ConstraintIssues = append(out.ConstraintIssues,
			fmt.Sprintf("broad scope requested within %q", req.Timeframe))
		out.SuggestedAlternatives = append(out.SuggestedAlternatives,
			"narrow the scope to a single focus area, or extend the timeframe")
	}

	if len(strings.TrimSpace(req.Query)) < minQueryLength {
		out.ClarificationNeeded = true
		out.SuggestedQuestions = append(out.SuggestedQuestions,
			"What outcome would make this engagement a success?",
			"Which part of the business is in scope?")
	}

	return out
}

func aggressiveTimeframe(timeframe string) bool {
	t := strings.ToLower(timeframe)
	return strings.Contains(t, "day") || strings.Contains(t, "week")
}

func broadScope(query string) bool {
	return strings.Contains(query, "comprehensive") || strings.Contains(query, "transformation")
}
