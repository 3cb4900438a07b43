package analysis

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/consultra/engine/pkg/logger"
)

func TestMain(m *testing.M) {
	_, err := logger.Init("info", "json")
	if err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

// stubCompleter returns a fixed reply or error.
type stubCompleter struct {
	reply string
	err   error
}

func (s *stubCompleter) Complete(ctx context.Context, instruction, contextText string) (string, error) {
	return s.reply, s.err
}

func TestAnalyzeFallbackClassifiesConsultingType(t *testing.T) {
	a := NewAnalyzer(nil)

	cases := []struct {
		query string
		want  string
	}{
		{"Assess our market position against competitors in the region", "market_analysis"},
		{"Review the software architecture of our billing platform", "technology_assessment"},
		{"Reduce cost in our back-office operations", "operations_improvement"},
		{"Help us define a growth strategy for next year", "strategy"},
		{"Something entirely unrelated to any keyword here today", "general_consulting"},
	}
	for _, tc := range cases {
		got := a.Analyze(context.Background(), &ClientRequest{Query: tc.query})
		require.Equal(t, tc.want, got.ConsultingType, "query: %s", tc.query)
	}
}

func TestAnalyzeFallbackFeasibilityWarning(t *testing.T) {
	a := NewAnalyzer(nil)

	got := a.Analyze(context.Background(), &ClientRequest{
		Query:     "We need a comprehensive digital transformation of the whole company",
		Timeframe: "1 week",
	})
	require.True(t, got.FeasibilityWarning)
	require.NotEmpty(t, got.ConstraintIssues)
	require.NotEmpty(t, got.SuggestedAlternatives)

	// Same scope with a sane timeframe passes.
	got = a.Analyze(context.Background(), &ClientRequest{
		Query:     "We need a comprehensive digital transformation of the whole company",
		Timeframe: "9 months",
	})
	require.False(t, got.FeasibilityWarning)
}

func TestAnalyzeFallbackClarificationForShortQuery(t *testing.T) {
	a := NewAnalyzer(nil)

	got := a.Analyze(context.Background(), &ClientRequest{Query: "Fix our app"})
	require.True(t, got.ClarificationNeeded)
	require.NotEmpty(t, got.SuggestedQuestions)
}

func TestAnalyzeConstraintsFromRequest(t *testing.T) {
	a := NewAnalyzer(nil)

	got := a.Analyze(context.Background(), &ClientRequest{
		Query:     "Evaluate vendor options for our logistics process overhaul",
		Timeframe: "2 months",
		Budget:    "50k",
		Urgency:   "high",
	})
	require.Len(t, got.Constraints, 3)
}

func TestAnalyzeUsesLLMReply(t *testing.T) {
	reply := "```json\n{\"consulting_type\":\"strategy\",\"scope\":\"narrow\",\"complexity\":\"high\"}\n```"
	a := NewAnalyzer(&stubCompleter{reply: reply})

	got := a.Analyze(context.Background(), &ClientRequest{Query: "anything at all"})
	require.Equal(t, "strategy", got.ConsultingType)
	require.Equal(t, "narrow", got.Scope)
}

func TestAnalyzeFallsBackOnLLMError(t *testing.T) {
	a := NewAnalyzer(&stubCompleter{err: errors.New("backend down")})

	got := a.Analyze(context.Background(), &ClientRequest{Query: "Define a strategy for our expansion into new markets"})
	require.NotNil(t, got)
	require.NotEmpty(t, got.ConsultingType)
}

func TestClarifyFallbackRaisesRiskOnWarning(t *testing.T) {
	c := NewClarifier(nil)

	reqs := &Requirements{Scope: "everything", FeasibilityWarning: true}
	got := c.Clarify(context.Background(), reqs)
	require.Equal(t, "high", got.ScopeCreepRisk)

	reqs.FeasibilityWarning = false
	got = c.Clarify(context.Background(), reqs)
	require.Equal(t, "medium", got.ScopeCreepRisk)
}

func TestValidateFallbackThresholds(t *testing.T) {
	v := NewValidator(nil)
	longSummary := strings.Repeat("findings and recommendations ", 4)

	good := &Report{
		ExecutiveSummary: longSummary,
		Recommendations:  map[string]any{"primary": "do the thing"},
		QualityScore:     0.8,
	}
	res := v.Validate(context.Background(), good)
	require.True(t, res.Approved)
	require.True(t, res.ClientReadiness)
	require.Equal(t, "good", res.QualityAssessment)

	lowScore := &Report{
		ExecutiveSummary: longSummary,
		Recommendations:  map[string]any{"primary": "do the thing"},
		QualityScore:     0.6,
	}
	res = v.Validate(context.Background(), lowScore)
	require.False(t, res.Approved)
	require.NotEmpty(t, res.ResubmissionGuidance)
	require.Equal(t, "adequate", res.QualityAssessment)

	noRecs := &Report{ExecutiveSummary: longSummary, QualityScore: 0.95}
	res = v.Validate(context.Background(), noRecs)
	require.False(t, res.Approved)
	require.Contains(t, res.CompletenessIssues, "recommendations are missing")
	require.Equal(t, "excellent", res.QualityAssessment)

	shortSummary := &Report{
		ExecutiveSummary: "too short",
		Recommendations:  map[string]any{"primary": "x"},
		QualityScore:     0.9,
	}
	res = v.Validate(context.Background(), shortSummary)
	require.False(t, res.Approved)
}

func TestValidateUsesLLMVerdict(t *testing.T) {
	reply := `{"approved": false, "quality_assessment": "poor", "feedback": "rework", "resubmission_guidance": "add detail"}`
	v := NewValidator(&stubCompleter{reply: reply})

	res := v.Validate(context.Background(), &Report{QualityScore: 0.99})
	require.False(t, res.Approved)
	require.Equal(t, "add detail", res.ResubmissionGuidance)
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{`{"a":1}`, `{"a":1}`, true},
		{"prose before {\"a\": {\"b\": 2}} prose after", `{"a": {"b": 2}}`, true},
		{"```json\n{\"a\":1}\n```", `{"a":1}`, true},
		{`{"s":"brace } inside string"}`, `{"s":"brace } inside string"}`, true},
		{`{"s":"escaped \" quote"}`, `{"s":"escaped \" quote"}`, true},
		{"no json here", "", false},
		{`{"unbalanced": 1`, "", false},
	}
	for _, tc := range cases {
		got, ok := extractJSON(tc.in)
		require.Equal(t, tc.ok, ok, "input: %s", tc.in)
		require.Equal(t, tc.want, got, "input: %s", tc.in)
	}
}
