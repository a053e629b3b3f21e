package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/scansafe/internal/analyzer"
	"github.com/sells-group/scansafe/internal/auth"
	"github.com/sells-group/scansafe/internal/region"
	"github.com/sells-group/scansafe/internal/scanner"
	"github.com/sells-group/scansafe/internal/store"
	anthropicpkg "github.com/sells-group/scansafe/pkg/anthropic"
	"github.com/sells-group/scansafe/pkg/openfoodfacts"
)

// scanEnv holds the initialized store, scanner, and verifier used by
// the scan/batch/serve commands.
type scanEnv struct {
	Store    store.Store
	Scanner  *scanner.Scanner
	Verifier auth.Verifier
}

// Close releases resources held by the environment.
func (e *scanEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initScanEnv validates config for the given mode, opens the store, and
// wires the scan pipeline. Callers should defer env.Close().
func initScanEnv(ctx context.Context, mode string) (*scanEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, store.Config{
		Driver:      cfg.Store.Driver,
		DatabaseURL: cfg.Store.DatabaseURL,
	})
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	catalog := openfoodfacts.NewClient(
		openfoodfacts.WithBaseURL(cfg.Catalog.BaseURL),
		openfoodfacts.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Catalog.TimeoutSecs) * time.Second,
		}),
	)

	var an analyzer.Analyzer
	switch {
	case !cfg.Analysis.Enabled:
		zap.L().Warn("analysis disabled, scans will return raw product data")
	case cfg.Anthropic.Key != "":
		an = analyzer.NewClaudeAnalyzer(anthropicpkg.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model)
	default:
		zap.L().Info("no anthropic key configured, using rule-based analysis")
		an = analyzer.NewFallbackAnalyzer()
	}

	regions := region.NewEvaluator()
	if cfg.Region.RulesFile != "" {
		regions, err = region.LoadEvaluator(cfg.Region.RulesFile)
		if err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "load region rules")
		}
	}

	verifier, err := auth.NewVerifier(ctx, auth.Config{
		JWKSURL:  cfg.Auth.JWKSURL,
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
	})
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "init verifier")
	}

	sc := scanner.New(scanner.Config{
		Store:         st,
		Catalog:       catalog,
		Analyzer:      an,
		Regions:       regions,
		DefaultRegion: cfg.Region.Default,
		CacheTTL:      time.Duration(cfg.Cache.TTLDays) * 24 * time.Hour,
	})

	return &scanEnv{Store: st, Scanner: sc, Verifier: verifier}, nil
}
