package store

import (
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	appErr "github.com/consultra/engine/pkg/errors"
	"github.com/consultra/engine/pkg/logger"
)

func TestMain(m *testing.M) {
	_, err := logger.Init("info", "json")
	if err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

func TestNormalizeModulesEstimatedHours(t *testing.T) {
	out, err := normalizeModules([]ModuleInput{
		{ModuleType: "research", Description: "a", EstimatedHours: 2.4},
		{ModuleType: "research", Description: "b", EstimatedHours: 0.5},
		{ModuleType: "research", Description: "c", EstimatedHours: 0},
		{ModuleType: "research", Description: "d", EstimatedHours: -3},
		{ModuleType: "research", Description: "e", EstimatedHours: 7},
	})
	require.NoError(t, err)

	// Fractions truncate; anything below one hour falls back to the default.
	require.Equal(t, 2, out[0].EstimatedHours)
	require.Equal(t, 2, out[1].EstimatedHours)
	require.Equal(t, 2, out[2].EstimatedHours)
	require.Equal(t, 2, out[3].EstimatedHours)
	require.Equal(t, 7, out[4].EstimatedHours)
}

func TestNormalizeModulesIDs(t *testing.T) {
	pre := uuid.NewString()
	out, err := normalizeModules([]ModuleInput{
		{ID: pre, ModuleType: "research", Description: "keeps assigned id"},
		{ID: "step-2", ModuleType: "analysis", Description: "generates a fresh one"},
		{ModuleType: "analysis", Description: "no id at all"},
	})
	require.NoError(t, err)

	require.Equal(t, pre, out[0].ID.String())
	require.NotEqual(t, uuid.Nil, out[1].ID)
	require.NotEqual(t, uuid.Nil, out[2].ID)
	require.NotEqual(t, out[1].ID, out[2].ID)
}

func TestNormalizeModulesTitleSynthesis(t *testing.T) {
	out, err := normalizeModules([]ModuleInput{
		{ModuleType: "research", Title: "Explicit title", Description: "ignored"},
		{ModuleType: "research", Description: "one two three four five six seven eight nine ten"},
		{ModuleType: "report_drafting"},
	})
	require.NoError(t, err)

	require.Equal(t, "Explicit title", out[0].Title)
	require.Equal(t, "one two three four five six seven eight", out[1].Title)
	require.Equal(t, "report drafting", out[2].Title)
}

func TestNormalizeModulesDropsNonUUIDDependencies(t *testing.T) {
	dep := uuid.NewString()
	out, err := normalizeModules([]ModuleInput{
		{ID: dep, ModuleType: "research", Description: "upstream"},
		{ModuleType: "analysis", Description: "downstream", Dependencies: []string{dep, "step-1", "not a uuid"}},
	})
	require.NoError(t, err)
	require.JSONEq(t, `["`+dep+`"]`, string(out[1].Dependencies))
}

func TestNormalizeModulesRejectsCycle(t *testing.T) {
	a := uuid.NewString()
	b := uuid.NewString()
	c := uuid.NewString()

	_, err := normalizeModules([]ModuleInput{
		{ID: a, ModuleType: "research", Description: "a", Dependencies: []string{c}},
		{ID: b, ModuleType: "analysis", Description: "b", Dependencies: []string{a}},
		{ID: c, ModuleType: "report_drafting", Description: "c", Dependencies: []string{b}},
	})
	require.Error(t, err)
	require.True(t, appErr.IsInvalid(err))
}

func TestNormalizeModulesSelfDependencyIsCycle(t *testing.T) {
	a := uuid.NewString()
	_, err := normalizeModules([]ModuleInput{
		{ID: a, ModuleType: "research", Description: "a", Dependencies: []string{a}},
	})
	require.Error(t, err)
	require.True(t, appErr.IsInvalid(err))
}

func TestNormalizeModulesToleratesUnknownDependency(t *testing.T) {
	outside := uuid.NewString()
	out, err := normalizeModules([]ModuleInput{
		{ModuleType: "research", Description: "a", Dependencies: []string{outside}},
	})
	require.NoError(t, err)
	require.JSONEq(t, `["`+outside+`"]`, string(out[0].Dependencies))
}

func TestSynthesizeTitle(t *testing.T) {
	require.Equal(t, "short description", synthesizeTitle("short description", "research"))
	require.Equal(t, "module type", synthesizeTitle("   ", "module_type"))
}
