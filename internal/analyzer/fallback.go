package analyzer

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/sells-group/scansafe/internal/model"
)

// knownHarmful lists ingredients that are commonly flagged as harmful or
// controversial. Matching is case-insensitive substring.
var knownHarmful = []string{
	"palm oil", "high fructose corn syrup", "artificial sweetener",
	"aspartame", "msg", "monosodium glutamate", "trans fat",
	"sodium benzoate", "artificial color", "red 40", "yellow 5",
	"bha", "bht", "sodium nitrite", "potassium bromate",
}

const harmfulAdvisory = "This ingredient may have health concerns. Consider consulting with a healthcare professional."

const fallbackDisclaimer = "Note: This is a basic automated analysis. For detailed health advice, consult a healthcare professional."

// Nutriment thresholds per 100g that each contribute one health warning.
const (
	sugarThreshold  = 15.0
	saltThreshold   = 1.5
	satFatThreshold = 5.0
)

// FallbackAnalyzer is the deterministic rule-based analyzer used when the
// model is unavailable. It never fails.
type FallbackAnalyzer struct{}

// NewFallbackAnalyzer returns the rule-based analyzer.
func NewFallbackAnalyzer() *FallbackAnalyzer {
	return &FallbackAnalyzer{}
}

func (a *FallbackAnalyzer) Analyze(_ context.Context, product *model.ProductRecord, _ map[string]any) (*model.SafetyVerdict, error) {
	verdict := &model.SafetyVerdict{
		HarmfulSubstances: []string{},
		HealthWarnings:    []string{},
		IngredientRisks:   []model.IngredientRisk{},
		FallbackMode:      true,
	}

	for _, ing := range product.Ingredients {
		nameLower := strings.ToLower(ing.Name)
		for _, harmful := range knownHarmful {
			if strings.Contains(nameLower, harmful) {
				verdict.HarmfulSubstances = append(verdict.HarmfulSubstances, ing.Name)
				verdict.IngredientRisks = append(verdict.IngredientRisks, model.IngredientRisk{
					Name:        ing.Name,
					RiskLevel:   model.RiskModerate,
					Description: harmfulAdvisory,
					IsHarmful:   true,
				})
				break
			}
		}
	}

	if product.Nutriments["sugars_100g"] > sugarThreshold {
		verdict.HealthWarnings = append(verdict.HealthWarnings, "High sugar content (>15g per 100g)")
	}
	if product.Nutriments["salt_100g"] > saltThreshold {
		verdict.HealthWarnings = append(verdict.HealthWarnings, "High salt content (>1.5g per 100g)")
	}
	if product.Nutriments["saturated_fat_100g"] > satFatThreshold {
		verdict.HealthWarnings = append(verdict.HealthWarnings, "High saturated fat (>5g per 100g)")
	}

	score := 7.0
	score -= float64(len(verdict.HarmfulSubstances)) * 1.5
	score -= float64(len(verdict.HealthWarnings)) * 0.5

	switch product.NutriScore {
	case "a", "b":
		score++
	case "d", "e":
		score--
	}

	verdict.SafetyScore = clampScore(math.Round(score))
	verdict.Summary = buildFallbackSummary(product, verdict)

	return verdict, nil
}

func buildFallbackSummary(product *model.ProductRecord, verdict *model.SafetyVerdict) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s by %s ", product.ProductName, product.Brand)

	switch {
	case verdict.SafetyScore >= 7:
		b.WriteString("appears to be relatively safe for consumption. ")
	case verdict.SafetyScore >= 5:
		b.WriteString("has some concerns that should be considered. ")
	default:
		b.WriteString("has multiple health concerns that warrant attention. ")
	}

	if len(verdict.HarmfulSubstances) > 0 {
		listed := verdict.HarmfulSubstances
		if len(listed) > 3 {
			listed = listed[:3]
		}
		fmt.Fprintf(&b, "Contains potentially harmful ingredients: %s. ", strings.Join(listed, ", "))
	}

	b.WriteString(fallbackDisclaimer)
	return b.String()
}
