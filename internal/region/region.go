// Package region checks ingredient lists against per-jurisdiction
// banned-substance tables.
package region

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/scansafe/internal/model"
)

// DefaultRegion is used when the caller supplies no region code.
const DefaultRegion = "US"

// RuleSet is the banned-ingredient table for one jurisdiction.
type RuleSet struct {
	BannedIngredients []string `yaml:"banned_ingredients"`
	Authority         string   `yaml:"authority"`
}

// Flags is the result of evaluating one product against one region.
type Flags struct {
	Region     string            `json:"region"`
	Violations []model.Violation `json:"violations"`
}

// Evaluator holds the rule table. The zero value is unusable; construct with
// NewEvaluator or LoadEvaluator.
type Evaluator struct {
	rules map[string]RuleSet
}

// defaultRules is intentionally small. It is a screening aid, not a complete
// regulatory database.
var defaultRules = map[string]RuleSet{
	"US": {
		BannedIngredients: []string{"potassium bromate", "azodicarbonamide"},
		Authority:         "FDA",
	},
	"EU": {
		BannedIngredients: []string{"potassium bromate", "azodicarbonamide", "BHA", "BHT"},
		Authority:         "EFSA",
	},
	"IN": {
		BannedIngredients: []string{"carmoisine", "sunset yellow"},
		Authority:         "FSSAI",
	},
}

// NewEvaluator returns an Evaluator with the built-in rule table.
func NewEvaluator() *Evaluator {
	return &Evaluator{rules: defaultRules}
}

// LoadEvaluator reads a rule table from a YAML file keyed by region code.
// An empty path returns the built-in table.
func LoadEvaluator(path string) (*Evaluator, error) {
	if path == "" {
		return NewEvaluator(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "region: read rules %s", path)
	}

	var rules map[string]RuleSet
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, eris.Wrapf(err, "region: parse rules %s", path)
	}
	if len(rules) == 0 {
		return nil, eris.Errorf("region: no rule sets in %s", path)
	}
	if _, ok := rules[DefaultRegion]; !ok {
		return nil, eris.Errorf("region: rules %s missing default region %s", path, DefaultRegion)
	}

	return &Evaluator{rules: rules}, nil
}

// Regions lists the region codes the evaluator knows about.
func (e *Evaluator) Regions() []string {
	codes := make([]string, 0, len(e.rules))
	for code := range e.rules {
		codes = append(codes, code)
	}
	return codes
}

// Evaluate flags every banned substance of the region's rule set that appears
// as a case-insensitive substring in any ingredient name. An unrecognized or
// empty region code is evaluated under the default region's rules, but the
// returned Flags carry the code the caller asked for.
func (e *Evaluator) Evaluate(ingredientNames []string, regionCode string) Flags {
	if regionCode == "" {
		regionCode = DefaultRegion
	}
	rules, ok := e.rules[regionCode]
	if !ok {
		rules = e.rules[DefaultRegion]
	}

	lowered := make([]string, len(ingredientNames))
	for i, name := range ingredientNames {
		lowered[i] = strings.ToLower(name)
	}

	flags := Flags{Region: regionCode, Violations: []model.Violation{}}
	for _, banned := range rules.BannedIngredients {
		bannedLower := strings.ToLower(banned)
		for _, name := range lowered {
			if strings.Contains(name, bannedLower) {
				flags.Violations = append(flags.Violations, model.Violation{
					Ingredient: banned,
					Reason:     fmt.Sprintf("Banned or restricted in %s by %s", regionCode, rules.Authority),
				})
				break
			}
		}
	}
	return flags
}
