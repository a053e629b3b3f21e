// Package analyzer produces safety verdicts for fetched products, either via
// Claude or via a deterministic rule-based fallback.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/scansafe/internal/model"
	"github.com/sells-group/scansafe/pkg/anthropic"
)

// Analyzer assesses a product and returns a structured safety verdict.
type Analyzer interface {
	Analyze(ctx context.Context, product *model.ProductRecord, userContext map[string]any) (*model.SafetyVerdict, error)
}

const systemPrompt = "You are a cautious nutrition and ingredient safety assistant. " +
	"You explain risks in clear, non-alarming but honest language. " +
	"You always remind users that this is not medical advice."

const verdictPrompt = `Analyze the following product for potential health risks.
Give a safetyScore from 0 (very risky) to 10 (very safe).
Identify harmful or controversial ingredients and summarize their risk.
Return JSON ONLY with keys: safetyScore (number), harmfulSubstances (array of strings), healthWarnings (array of strings), ingredientRisks (array of {name, riskLevel, description, isHarmful}), summary (string). Do not include any other keys or text.

Product name: %s
Brand: %s
Category: %s
NutriScore: %s
Nutriments (100g or 100ml basis, if given): %s
Ingredients: %s
User context (may influence warnings): %s`

// maxVerdictTokens bounds the model response; verdicts are small JSON
// documents.
const maxVerdictTokens = 1024

// ClaudeAnalyzer asks Claude for a verdict and falls back to the rule-based
// analyzer when the call fails. It makes a single attempt, no retries.
type ClaudeAnalyzer struct {
	client   anthropic.Client
	model    string
	fallback *FallbackAnalyzer
}

// NewClaudeAnalyzer builds an analyzer backed by the given Anthropic client.
func NewClaudeAnalyzer(client anthropic.Client, modelID string) *ClaudeAnalyzer {
	return &ClaudeAnalyzer{
		client:   client,
		model:    modelID,
		fallback: NewFallbackAnalyzer(),
	}
}

func (a *ClaudeAnalyzer) Analyze(ctx context.Context, product *model.ProductRecord, userContext map[string]any) (*model.SafetyVerdict, error) {
	prompt := buildPrompt(product, userContext)

	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: maxVerdictTokens,
		System:    anthropic.BuildCachedSystemBlocks(systemPrompt),
		Messages: []anthropic.Message{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		zap.L().Warn("analyzer: model call failed, using fallback",
			zap.String("barcode", product.Barcode),
			zap.Error(err),
		)
		return a.fallback.Analyze(ctx, product, userContext)
	}

	resp.Usage.LogCost(a.model, "safety_verdict")

	verdict, err := parseVerdict(resp.Text())
	if err != nil {
		zap.L().Warn("analyzer: unparseable model response, using fallback",
			zap.String("barcode", product.Barcode),
			zap.Error(err),
		)
		return a.fallback.Analyze(ctx, product, userContext)
	}
	return verdict, nil
}

func buildPrompt(product *model.ProductRecord, userContext map[string]any) string {
	parts := make([]string, 0, len(product.Ingredients))
	for _, ing := range product.Ingredients {
		pct := "?"
		if ing.Percentage != nil {
			pct = fmt.Sprintf("%g", *ing.Percentage)
		}
		parts = append(parts, fmt.Sprintf("%s (%s%%)", ing.Name, pct))
	}

	return fmt.Sprintf(verdictPrompt,
		product.ProductName,
		product.Brand,
		product.Category,
		product.NutriScore,
		formatNutriments(product.Nutriments),
		strings.Join(parts, ", "),
		formatContext(userContext),
	)
}

// formatNutriments renders the nutriment map with stable key order so the
// prompt is deterministic for identical inputs.
func formatNutriments(n map[string]float64) string {
	if len(n) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(n))
	for k := range n {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q: %g", k, n[k])
	}
	b.WriteString("}")
	return b.String()
}

func formatContext(userContext map[string]any) string {
	if len(userContext) == 0 {
		return "{}"
	}
	data, err := json.Marshal(userContext)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// parseVerdict extracts a SafetyVerdict from model output. The score is
// clamped into [0,10] and array fields that fail to parse are coerced to
// empty rather than failing the verdict.
func parseVerdict(text string) (*model.SafetyVerdict, error) {
	cleaned := cleanJSON(text)

	var raw map[string]any
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, eris.Wrap(err, "analyzer: parse verdict JSON")
	}

	verdict := &model.SafetyVerdict{
		HarmfulSubstances: toStringSlice(raw["harmfulSubstances"]),
		HealthWarnings:    toStringSlice(raw["healthWarnings"]),
		IngredientRisks:   toIngredientRisks(raw["ingredientRisks"]),
	}

	score, _ := toFloat64(raw["safetyScore"])
	verdict.SafetyScore = clampScore(score)

	verdict.Summary, _ = raw["summary"].(string)

	return verdict, nil
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func toStringSlice(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func toIngredientRisks(v any) []model.IngredientRisk {
	arr, ok := v.([]any)
	if !ok {
		return []model.IngredientRisk{}
	}
	out := make([]model.IngredientRisk, 0, len(arr))
	for _, item := range arr {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		risk := model.IngredientRisk{}
		risk.Name, _ = entry["name"].(string)
		if risk.Name == "" {
			continue
		}
		if level, ok := entry["riskLevel"].(string); ok {
			risk.RiskLevel = model.RiskLevel(level)
		}
		if risk.RiskLevel == "" {
			risk.RiskLevel = model.RiskLow
		}
		risk.Description, _ = entry["description"].(string)
		risk.IsHarmful, _ = entry["isHarmful"].(bool)
		out = append(out, risk)
	}
	return out
}

// cleanJSON attempts to extract a JSON object from text that may contain
// markdown code fences or other wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	// Strip markdown code fences.
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	// Find first { and last }.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
