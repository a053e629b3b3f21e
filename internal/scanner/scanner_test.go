package scanner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/scansafe/internal/barcode"
	"github.com/sells-group/scansafe/internal/model"
)

func liveProduct(code string) *model.ProductRecord {
	return &model.ProductRecord{
		Barcode:     code,
		ProductName: "Fizzy Cola",
		Nutriments:  map[string]float64{"sugars_100g": 27},
		Ingredients: []model.Ingredient{
			{Name: "Water", RiskLevel: model.RiskLow},
			{Name: "Aspartame", RiskLevel: model.RiskLow},
		},
	}
}

func sampleVerdict() *model.SafetyVerdict {
	return &model.SafetyVerdict{
		SafetyScore:       4.5,
		HarmfulSubstances: []string{"Aspartame"},
		HealthWarnings:    []string{"High sugar content (>15g per 100g)"},
		IngredientRisks: []model.IngredientRisk{
			{Name: "aspartame", RiskLevel: model.RiskHigh, IsHarmful: true, Description: "Artificial sweetener"},
		},
		Summary: "Sugary soda with an artificial sweetener.",
	}
}

func newTestScanner(st *mockStore, cat *mockCatalog, an *mockAnalyzer) *Scanner {
	cfg := Config{Store: st, Catalog: cat, CacheTTL: time.Hour}
	if an != nil {
		cfg.Analyzer = an
	}
	return New(cfg)
}

func TestScan_InvalidBarcode(t *testing.T) {
	s := newTestScanner(&mockStore{}, &mockCatalog{}, &mockAnalyzer{})

	res, err := s.Scan(context.Background(), "12ab34", ScanContext{})
	require.Error(t, err)
	assert.True(t, barcode.IsInvalid(err))
	assert.Nil(t, res)
}

func TestScan_CacheHitSkipsFetchAndAnalysis(t *testing.T) {
	st := &mockStore{}
	cat := &mockCatalog{}
	an := &mockAnalyzer{}
	s := newTestScanner(st, cat, an)

	cached := liveProduct("1234567890123")
	cached.Source = model.SourceCache
	cached.ScanCount = 5
	st.On("GetCachedProduct", mock.Anything, "1234567890123").Return(cached, nil)

	res, err := s.Scan(context.Background(), " 1234567890123 ", ScanContext{Region: "EU"})
	require.NoError(t, err)
	require.False(t, res.NotFound())

	assert.Equal(t, model.SourceCache, res.Product.Source)
	assert.Equal(t, 5, res.Product.ScanCount)
	cat.AssertNotCalled(t, "Lookup")
	an.AssertNotCalled(t, "Analyze")
}

func TestScan_MissFetchesAnalyzesAndCaches(t *testing.T) {
	st := &mockStore{}
	cat := &mockCatalog{}
	an := &mockAnalyzer{}
	s := newTestScanner(st, cat, an)

	st.On("GetCachedProduct", mock.Anything, "1234567890123").Return(nil, nil)
	cat.On("Lookup", mock.Anything, "1234567890123").Return(liveProduct("1234567890123"), nil)
	an.On("Analyze", mock.Anything, mock.Anything, mock.Anything).Return(sampleVerdict(), nil)
	st.On("UpsertProduct", mock.Anything, mock.Anything, time.Hour).
		Return(func(rec *model.ProductRecord) *model.ProductRecord {
			stored := *rec
			stored.Source = model.SourceLive
			stored.ScanCount = 1
			return &stored
		}, nil)

	res, err := s.Scan(context.Background(), "1234567890123", ScanContext{Region: "EU"})
	require.NoError(t, err)
	require.False(t, res.NotFound())

	p := res.Product
	assert.Equal(t, model.SourceLive, p.Source)
	require.NotNil(t, p.SafetyScore)
	assert.InDelta(t, 4.5, *p.SafetyScore, 0.001)
	assert.Equal(t, []string{"Aspartame"}, p.HarmfulSubstances)

	// The verdict's risk annotation lands on the matching ingredient.
	require.Len(t, p.Ingredients, 2)
	assert.False(t, p.Ingredients[0].IsHarmful)
	assert.True(t, p.Ingredients[1].IsHarmful)
	assert.Equal(t, model.RiskHigh, p.Ingredients[1].RiskLevel)
	assert.Equal(t, "Artificial sweetener", p.Ingredients[1].Description)

	require.Contains(t, p.RegionFlags, "EU")
	st.AssertExpectations(t)
}

func TestScan_NotFound(t *testing.T) {
	st := &mockStore{}
	cat := &mockCatalog{}
	s := newTestScanner(st, cat, &mockAnalyzer{})

	st.On("GetCachedProduct", mock.Anything, "99999999").Return(nil, nil)
	cat.On("Lookup", mock.Anything, "99999999").Return(nil, nil)

	res, err := s.Scan(context.Background(), "99999999", ScanContext{})
	require.NoError(t, err)
	assert.True(t, res.NotFound())
}

func TestScan_CatalogErrorDegradesToNotFound(t *testing.T) {
	st := &mockStore{}
	cat := &mockCatalog{}
	s := newTestScanner(st, cat, &mockAnalyzer{})

	st.On("GetCachedProduct", mock.Anything, "99999999").Return(nil, nil)
	cat.On("Lookup", mock.Anything, "99999999").Return(nil, errors.New("upstream timeout"))

	res, err := s.Scan(context.Background(), "99999999", ScanContext{})
	require.NoError(t, err)
	assert.True(t, res.NotFound())
}

func TestScan_CacheReadErrorIsAMiss(t *testing.T) {
	st := &mockStore{}
	cat := &mockCatalog{}
	an := &mockAnalyzer{}
	s := newTestScanner(st, cat, an)

	st.On("GetCachedProduct", mock.Anything, "12345678").Return(nil, errors.New("db locked"))
	cat.On("Lookup", mock.Anything, "12345678").Return(liveProduct("12345678"), nil)
	an.On("Analyze", mock.Anything, mock.Anything, mock.Anything).Return(sampleVerdict(), nil)
	st.On("UpsertProduct", mock.Anything, mock.Anything, mock.Anything).Return(liveProduct("12345678"), nil)

	res, err := s.Scan(context.Background(), "12345678", ScanContext{})
	require.NoError(t, err)
	assert.False(t, res.NotFound())
	cat.AssertExpectations(t)
}

func TestScan_CacheWriteErrorStillServesLive(t *testing.T) {
	st := &mockStore{}
	cat := &mockCatalog{}
	an := &mockAnalyzer{}
	s := newTestScanner(st, cat, an)

	st.On("GetCachedProduct", mock.Anything, "12345678").Return(nil, nil)
	cat.On("Lookup", mock.Anything, "12345678").Return(liveProduct("12345678"), nil)
	an.On("Analyze", mock.Anything, mock.Anything, mock.Anything).Return(sampleVerdict(), nil)
	st.On("UpsertProduct", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("disk full"))

	res, err := s.Scan(context.Background(), "12345678", ScanContext{})
	require.NoError(t, err)
	require.False(t, res.NotFound())
	assert.Equal(t, model.SourceLive, res.Product.Source)
	assert.Equal(t, 1, res.Product.ScanCount)
}

func TestScan_AnalyzerErrorProducesDegradedRecord(t *testing.T) {
	st := &mockStore{}
	cat := &mockCatalog{}
	an := &mockAnalyzer{}
	s := newTestScanner(st, cat, an)

	st.On("GetCachedProduct", mock.Anything, "12345678").Return(nil, nil)
	cat.On("Lookup", mock.Anything, "12345678").Return(liveProduct("12345678"), nil)
	an.On("Analyze", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("model overloaded"))
	st.On("UpsertProduct", mock.Anything, mock.Anything, mock.Anything).
		Return(func(rec *model.ProductRecord) *model.ProductRecord { return rec }, nil)

	res, err := s.Scan(context.Background(), "12345678", ScanContext{})
	require.NoError(t, err)
	require.False(t, res.NotFound())

	p := res.Product
	assert.Nil(t, p.SafetyScore)
	assert.Equal(t, "AI analysis unavailable. Showing raw data only.", p.Summary)
	assert.Empty(t, p.HealthWarnings)
	assert.Empty(t, p.HarmfulSubstances)
}

func TestScan_NilAnalyzerProducesDegradedRecord(t *testing.T) {
	st := &mockStore{}
	cat := &mockCatalog{}
	s := newTestScanner(st, cat, nil)

	st.On("GetCachedProduct", mock.Anything, "12345678").Return(nil, nil)
	cat.On("Lookup", mock.Anything, "12345678").Return(liveProduct("12345678"), nil)
	st.On("UpsertProduct", mock.Anything, mock.Anything, mock.Anything).
		Return(func(rec *model.ProductRecord) *model.ProductRecord { return rec }, nil)

	res, err := s.Scan(context.Background(), "12345678", ScanContext{})
	require.NoError(t, err)
	assert.Nil(t, res.Product.SafetyScore)
	assert.Equal(t, "AI analysis unavailable. Showing raw data only.", res.Product.Summary)
}

func TestScan_DefaultRegionIsUS(t *testing.T) {
	st := &mockStore{}
	cat := &mockCatalog{}
	an := &mockAnalyzer{}
	s := newTestScanner(st, cat, an)

	st.On("GetCachedProduct", mock.Anything, "12345678").Return(nil, nil)
	cat.On("Lookup", mock.Anything, "12345678").Return(liveProduct("12345678"), nil)
	an.On("Analyze", mock.Anything, mock.Anything, mock.Anything).Return(sampleVerdict(), nil)
	st.On("UpsertProduct", mock.Anything, mock.Anything, mock.Anything).
		Return(func(rec *model.ProductRecord) *model.ProductRecord { return rec }, nil)

	res, err := s.Scan(context.Background(), "12345678", ScanContext{})
	require.NoError(t, err)
	assert.Contains(t, res.Product.RegionFlags, "US")
}

func TestMergeRisks_FirstMatchWins(t *testing.T) {
	ingredients := []model.Ingredient{
		{Name: "Sugar", RiskLevel: model.RiskLow},
	}
	mergeRisks(ingredients, []model.IngredientRisk{
		{Name: "SUGAR", RiskLevel: model.RiskModerate, Description: "first"},
		{Name: "sugar", RiskLevel: model.RiskHigh, Description: "second"},
	})

	assert.Equal(t, model.RiskModerate, ingredients[0].RiskLevel)
	assert.Equal(t, "first", ingredients[0].Description)
}

func TestMergeRisks_UnknownNamesIgnored(t *testing.T) {
	ingredients := []model.Ingredient{
		{Name: "Water", RiskLevel: model.RiskLow},
	}
	mergeRisks(ingredients, []model.IngredientRisk{
		{Name: "Plutonium", RiskLevel: model.RiskHigh, IsHarmful: true},
	})

	assert.False(t, ingredients[0].IsHarmful)
	assert.Equal(t, model.RiskLow, ingredients[0].RiskLevel)
}
