package analysis

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/consultra/engine/pkg/logger"
)

// ClarificationQuestion is one question the clarifier wants answered before
// execution starts.
type ClarificationQuestion struct {
	Question string `json:"question"`
	Category string `json:"category"`
	Priority string `json:"priority"`
}

// ClarificationResult refines structured requirements into an agreed scope.
type ClarificationResult struct {
	ClarificationQuestions []ClarificationQuestion `json:"clarification_questions"`
	SuggestedRefinements   []string                `json:"suggested_refinements"`
	RiskAreas              []string                `json:"risk_areas"`
	ScopeCreepRisk         string                  `json:"scope_creep_risk"`
	RecommendedScope       string                  `json:"recommended_scope"`
	PrioritizedObjectives  []string                `json:"prioritized_objectives"`
	TechnicalFeasibility   string                  `json:"technical_feasibility"`
	RequiredCapabilities   []string                `json:"required_capabilities"`
	RecommendedApproach    string                  `json:"recommended_approach"`
}

// Clarifier reviews structured requirements and proposes clarifying questions
// and a refined scope.
type Clarifier struct {
	llm Completer
}

func NewClarifier(llm Completer) *Clarifier {
	return &Clarifier{llm: llm}
}

const clarifyInstruction = `You are a consulting scope reviewer. Given structured requirements, respond with exactly one JSON object with these keys:
clarification_questions (array of {question, category, priority}), suggested_refinements, risk_areas, scope_creep_risk (low|medium|high), recommended_scope, prioritized_objectives, technical_feasibility, required_capabilities, recommended_approach.
Only output the JSON, no other text.`

// Clarify follows the same call-then-fallback contract as the analyzer and
// never returns an error.
func (c *Clarifier) Clarify(ctx context.Context, reqs *Requirements) *ClarificationResult {
	if c.llm != nil {
		ctxText, _ := json.Marshal(reqs)
		reply, err := c.llm.Complete(ctx, clarifyInstruction, string(ctxText))
		if err == nil {
			if raw, ok := extractJSON(reply); ok {
				var out ClarificationResult
				if jsonErr := json.Unmarshal([]byte(raw), &out); jsonErr == nil && out.ScopeCreepRisk != "" {
					return &out
				}
			}
			logger.L().Warn("clarifier reply had no usable JSON, using fallback")
		} else {
			logger.L().Warn("scope clarification call failed, using fallback", zap.Error(err))
		}
	}
	return fallbackClarification(reqs)
}

// fallbackClarification reuses the requirement defaults when no JSON is
// recoverable from the backend.
func fallbackClarification(reqs *Requirements) *ClarificationResult {
	out := &ClarificationResult{
		ScopeCreepRisk:        "medium",
		RecommendedScope:      reqs.Scope,
		PrioritizedObjectives: reqs.Objectives,
		TechnicalFeasibility:  "feasible with stated constraints",
		RequiredCapabilities:  []string{reqs.ConsultingType},
		RecommendedApproach:   "phased delivery with checkpoint reviews",
	}
	for _, q := range reqs.SuggestedQuestions {
		out.ClarificationQuestions = append(out.ClarificationQuestions, ClarificationQuestion{
			Question: q,
			Category: "scope",
			Priority: "high",
		})
	}
	if reqs.FeasibilityWarning {
		out.ScopeCreepRisk = "high"
		out.RiskAreas = append(out.RiskAreas, reqs.ConstraintIssues...)
		out.SuggestedRefinements = append(out.SuggestedRefinements, reqs.SuggestedAlternatives...)
	}
	return out
}
