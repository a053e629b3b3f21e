package region

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate_FlagsBannedSubstring(t *testing.T) {
	e := NewEvaluator()

	flags := e.Evaluate([]string{"Bread (contains Potassium Bromate)"}, "EU")

	require.NotEmpty(t, flags.Violations)
	assert.Equal(t, "EU", flags.Region)
	assert.Equal(t, "potassium bromate", flags.Violations[0].Ingredient)
	assert.Contains(t, flags.Violations[0].Reason, "EU")
	assert.Contains(t, flags.Violations[0].Reason, "EFSA")
}

func TestEvaluate_UnknownRegionFallsBackToUSRules(t *testing.T) {
	e := NewEvaluator()
	ingredients := []string{"Bread (contains Potassium Bromate)"}

	unknown := e.Evaluate(ingredients, "ZZ")
	us := e.Evaluate(ingredients, "US")

	// Same rule set, but the reported region stays as requested.
	assert.Equal(t, "ZZ", unknown.Region)
	require.Len(t, unknown.Violations, len(us.Violations))
	assert.Equal(t, us.Violations[0].Ingredient, unknown.Violations[0].Ingredient)
}

func TestEvaluate_EmptyRegionDefaults(t *testing.T) {
	e := NewEvaluator()

	flags := e.Evaluate([]string{"Azodicarbonamide"}, "")

	assert.Equal(t, DefaultRegion, flags.Region)
	require.Len(t, flags.Violations, 1)
}

func TestEvaluate_NoViolations(t *testing.T) {
	e := NewEvaluator()

	flags := e.Evaluate([]string{"Water", "Salt"}, "EU")

	assert.Equal(t, "EU", flags.Region)
	assert.NotNil(t, flags.Violations)
	assert.Empty(t, flags.Violations)
}

func TestEvaluate_EURulesIncludeBHA(t *testing.T) {
	e := NewEvaluator()

	eu := e.Evaluate([]string{"Preservative (BHA)"}, "EU")
	us := e.Evaluate([]string{"Preservative (BHA)"}, "US")

	assert.Len(t, eu.Violations, 1)
	assert.Empty(t, us.Violations)
}

func TestEvaluate_OneViolationPerBannedSubstance(t *testing.T) {
	e := NewEvaluator()

	flags := e.Evaluate([]string{"potassium bromate", "more potassium bromate"}, "US")

	assert.Len(t, flags.Violations, 1)
}

func TestLoadEvaluator_FromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `
US:
  banned_ingredients: ["red 3"]
  authority: FDA
BR:
  banned_ingredients: ["amaranth"]
  authority: ANVISA
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	e, err := LoadEvaluator(path)
	require.NoError(t, err)

	flags := e.Evaluate([]string{"Amaranth dye"}, "BR")
	require.Len(t, flags.Violations, 1)
	assert.Contains(t, flags.Violations[0].Reason, "ANVISA")
	assert.ElementsMatch(t, []string{"US", "BR"}, e.Regions())
}

func TestLoadEvaluator_EmptyPathUsesDefaults(t *testing.T) {
	e, err := LoadEvaluator("")
	require.NoError(t, err)
	assert.Contains(t, e.Regions(), "US")
	assert.Contains(t, e.Regions(), "EU")
}

func TestLoadEvaluator_MissingDefaultRegion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("EU:\n  banned_ingredients: [\"bha\"]\n  authority: EFSA\n"), 0o644))

	_, err := LoadEvaluator(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing default region")
}

func TestLoadEvaluator_BadFile(t *testing.T) {
	_, err := LoadEvaluator(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
