// Package scanner resolves a barcode to an analyzed product record.
//
// The pipeline is: validate → cache lookup → catalog fetch → safety
// analysis → region flags → cache write. Only barcode validation is a
// terminal failure; every later stage degrades and the scan still
// returns whatever could be resolved.
package scanner

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/scansafe/internal/analyzer"
	"github.com/sells-group/scansafe/internal/barcode"
	"github.com/sells-group/scansafe/internal/model"
	"github.com/sells-group/scansafe/internal/region"
	"github.com/sells-group/scansafe/internal/store"
	"github.com/sells-group/scansafe/pkg/openfoodfacts"
)

// degradedSummary is returned when no analysis could be produced.
const degradedSummary = "AI analysis unavailable. Showing raw data only."

// ScanContext carries per-scan caller parameters.
type ScanContext struct {
	Region      string
	UserID      string
	UserContext map[string]any
}

// Result is the outcome of a scan. Product is nil when the barcode is
// valid but unknown to the catalog.
type Result struct {
	Product *model.ProductRecord
}

// NotFound reports whether the barcode resolved to no product.
func (r *Result) NotFound() bool {
	return r.Product == nil
}

// Scanner runs the scan pipeline.
type Scanner struct {
	store    store.Store
	catalog  openfoodfacts.Client
	analyzer analyzer.Analyzer // nil when analysis is disabled
	regions       *region.Evaluator
	defaultRegion string
	cacheTTL      time.Duration
	logger        *zap.Logger
}

// Config wires the pipeline's collaborators. A nil Analyzer disables
// analysis: scans return null-score records.
type Config struct {
	Store         store.Store
	Catalog       openfoodfacts.Client
	Analyzer      analyzer.Analyzer
	Regions       *region.Evaluator
	DefaultRegion string
	CacheTTL      time.Duration
}

// New builds a Scanner.
func New(cfg Config) *Scanner {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 7 * 24 * time.Hour
	}
	regions := cfg.Regions
	if regions == nil {
		regions = region.NewEvaluator()
	}
	if cfg.DefaultRegion == "" {
		cfg.DefaultRegion = region.DefaultRegion
	}
	return &Scanner{
		store:         cfg.Store,
		catalog:       cfg.Catalog,
		analyzer:      cfg.Analyzer,
		regions:       regions,
		defaultRegion: cfg.DefaultRegion,
		cacheTTL:      cfg.CacheTTL,
		logger:        zap.L().Named("scanner"),
	}
}

// Scan resolves rawBarcode to a product record. The only error it
// returns is an InvalidBarcodeError; catalog misses come back as a
// Result with a nil Product, and downstream failures degrade.
func (s *Scanner) Scan(ctx context.Context, rawBarcode string, sc ScanContext) (*Result, error) {
	code, err := barcode.Validate(rawBarcode)
	if err != nil {
		return nil, err
	}

	regionCode := sc.Region
	if regionCode == "" {
		regionCode = s.defaultRegion
	}

	if cached, err := s.store.GetCachedProduct(ctx, code); err != nil {
		// A broken cache read is a miss, not a failed scan.
		s.logger.Warn("cache read failed, treating as miss",
			zap.String("barcode", code), zap.Error(err))
	} else if cached != nil {
		s.logger.Debug("cache hit",
			zap.String("barcode", code),
			zap.Int("scan_count", cached.ScanCount))
		return &Result{Product: cached}, nil
	}

	product, err := s.catalog.Lookup(ctx, code)
	if err != nil {
		s.logger.Warn("catalog lookup failed",
			zap.String("barcode", code), zap.Error(err))
		return &Result{}, nil
	}
	if product == nil {
		s.logger.Debug("product not found", zap.String("barcode", code))
		return &Result{}, nil
	}

	s.applyVerdict(ctx, product, sc)

	flags := s.regions.Evaluate(product.IngredientNames(), regionCode)
	product.RegionFlags = map[string][]model.Violation{flags.Region: flags.Violations}

	stored, err := s.store.UpsertProduct(ctx, product, s.cacheTTL)
	if err != nil {
		// Best effort: serve the live record even if caching failed.
		s.logger.Warn("cache write failed",
			zap.String("barcode", code), zap.Error(err))
		product.Source = model.SourceLive
		product.ScanCount = 1
		product.LastScannedAt = time.Now().UTC()
		return &Result{Product: product}, nil
	}
	return &Result{Product: stored}, nil
}

// applyVerdict runs analysis and folds the verdict into the record.
// When the analyzer is disabled or errors, the record keeps a null
// score and a fixed degraded summary.
func (s *Scanner) applyVerdict(ctx context.Context, product *model.ProductRecord, sc ScanContext) {
	if s.analyzer == nil {
		s.degrade(product)
		return
	}

	verdict, err := s.analyzer.Analyze(ctx, product, sc.UserContext)
	if err != nil || verdict == nil {
		s.logger.Warn("analysis failed, returning raw product data",
			zap.String("barcode", product.Barcode), zap.Error(err))
		s.degrade(product)
		return
	}

	score := verdict.SafetyScore
	product.SafetyScore = &score
	product.Summary = verdict.Summary
	product.HealthWarnings = verdict.HealthWarnings
	product.HarmfulSubstances = verdict.HarmfulSubstances
	mergeRisks(product.Ingredients, verdict.IngredientRisks)
}

func (s *Scanner) degrade(product *model.ProductRecord) {
	product.SafetyScore = nil
	product.Summary = degradedSummary
	product.HealthWarnings = []string{}
	product.HarmfulSubstances = []string{}
}

// mergeRisks annotates ingredients with per-ingredient verdicts,
// matching on name case-insensitively. The first risk entry for a name
// wins; later duplicates are ignored.
func mergeRisks(ingredients []model.Ingredient, risks []model.IngredientRisk) {
	if len(risks) == 0 {
		return
	}

	byName := make(map[string]model.IngredientRisk, len(risks))
	for _, r := range risks {
		key := strings.ToLower(strings.TrimSpace(r.Name))
		if _, seen := byName[key]; !seen {
			byName[key] = r
		}
	}

	for i := range ingredients {
		r, ok := byName[strings.ToLower(strings.TrimSpace(ingredients[i].Name))]
		if !ok {
			continue
		}
		ingredients[i].IsHarmful = r.IsHarmful
		if r.RiskLevel != "" {
			ingredients[i].RiskLevel = r.RiskLevel
		}
		if r.Description != "" {
			ingredients[i].Description = r.Description
		}
	}
}
