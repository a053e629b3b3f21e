package model

// IngredientRisk is a per-ingredient risk assessment inside a SafetyVerdict,
// matched back onto the fetched ingredient list by name.
type IngredientRisk struct {
	Name        string    `json:"name"`
	RiskLevel   RiskLevel `json:"riskLevel"`
	Description string    `json:"description"`
	IsHarmful   bool      `json:"isHarmful"`
}

// SafetyVerdict is the structured output of a safety analysis, whether
// model-derived or produced by the rule-based fallback.
type SafetyVerdict struct {
	SafetyScore       float64          `json:"safetyScore"`
	HarmfulSubstances []string         `json:"harmfulSubstances"`
	HealthWarnings    []string         `json:"healthWarnings"`
	IngredientRisks   []IngredientRisk `json:"ingredientRisks"`
	Summary           string           `json:"summary"`

	// FallbackMode is true when the verdict came from the deterministic
	// rule-based analyzer rather than the model.
	FallbackMode bool `json:"fallbackMode,omitempty"`
}
