package model

import "time"

// RiskLevel classifies how concerning an ingredient is.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
)

// Source marks where a scan result came from.
type Source string

const (
	SourceCache Source = "cache"
	SourceLive  Source = "live"
)

// Ingredient is a single entry in a product's ingredient list. It has no
// identity outside its parent ProductRecord.
type Ingredient struct {
	Name        string    `json:"name"`
	Percentage  *float64  `json:"percentage,omitempty"`
	IsHarmful   bool      `json:"isHarmful"`
	RiskLevel   RiskLevel `json:"riskLevel"`
	Description string    `json:"description,omitempty"`
}

// Violation flags an ingredient banned or restricted in some jurisdiction.
type Violation struct {
	Ingredient string `json:"ingredient"`
	Reason     string `json:"reason"`
}

// ProductRecord is the enriched product document keyed by barcode. At most one
// live record exists per barcode; re-fetches update it in place and records
// expire logically via CacheExpiry, never by deletion.
type ProductRecord struct {
	Barcode     string             `json:"barcode"`
	ProductName string             `json:"productName"`
	Brand       string             `json:"brand,omitempty"`
	Category    string             `json:"category,omitempty"`
	ImageURL    string             `json:"imageUrl,omitempty"`
	NutriScore  string             `json:"nutriScore,omitempty"`
	Nutriments  map[string]float64 `json:"nutriments,omitempty"`
	Ingredients []Ingredient       `json:"ingredients"`

	// AI analysis. SafetyScore is nil when analysis was unavailable.
	SafetyScore       *float64 `json:"safetyScore"`
	Summary           string   `json:"summary,omitempty"`
	HealthWarnings    []string `json:"healthWarnings"`
	HarmfulSubstances []string `json:"harmfulSubstances"`

	RegionFlags map[string][]Violation `json:"regionFlags,omitempty"`

	CachedAt      time.Time `json:"cachedAt,omitempty"`
	CacheExpiry   time.Time `json:"cacheExpiry,omitempty"`
	ScanCount     int       `json:"scanCount"`
	LastScannedAt time.Time `json:"lastScannedAt,omitempty"`
	Source        Source    `json:"source"`
}

// IngredientNames returns the names of all ingredients in order.
func (p *ProductRecord) IngredientNames() []string {
	names := make([]string, len(p.Ingredients))
	for i, ing := range p.Ingredients {
		names[i] = ing.Name
	}
	return names
}

// HarmfulSummary aggregates the harmful ingredients of a record for the
// scan response.
type HarmfulSummary struct {
	TotalHarmful       int          `json:"totalHarmful"`
	HighRiskCount      int          `json:"highRiskCount"`
	HarmfulIngredients []Ingredient `json:"harmfulIngredients"`
}

// BuildHarmfulSummary collects the harmful ingredients of a record.
func BuildHarmfulSummary(p *ProductRecord) HarmfulSummary {
	summary := HarmfulSummary{HarmfulIngredients: []Ingredient{}}
	for _, ing := range p.Ingredients {
		if !ing.IsHarmful {
			continue
		}
		summary.TotalHarmful++
		if ing.RiskLevel == RiskHigh {
			summary.HighRiskCount++
		}
		summary.HarmfulIngredients = append(summary.HarmfulIngredients, ing)
	}
	return summary
}
