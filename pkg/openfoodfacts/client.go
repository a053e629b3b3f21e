// Package openfoodfacts provides a read-only client for the public
// Open Food Facts product catalog.
package openfoodfacts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/scansafe/internal/model"
	"github.com/sells-group/scansafe/internal/resilience"
)

// DefaultBaseURL is the public Open Food Facts API endpoint. No API key is
// required.
const DefaultBaseURL = "https://world.openfoodfacts.org"

// DefaultTimeout bounds a single catalog lookup.
const DefaultTimeout = 12 * time.Second

// Client defines the catalog operations used by the scan pipeline.
type Client interface {
	// Lookup fetches a product by barcode. A barcode the catalog does not
	// know returns (nil, nil); errors indicate transport or decoding
	// failures.
	Lookup(ctx context.Context, barcode string) (*model.ProductRecord, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetry overrides the retry policy for transient upstream failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	baseURL   string
	userAgent string
	http      *http.Client
	retry     resilience.RetryConfig
}

// NewClient creates a new Open Food Facts client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL:   DefaultBaseURL,
		userAgent: "scansafe/1.0 (+https://github.com/sells-group/scansafe)",
		http: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// offResponse is the v2 product endpoint envelope. status is 1 when the
// barcode is known.
type offResponse struct {
	Status  int        `json:"status"`
	Product offProduct `json:"product"`
}

type offProduct struct {
	ProductName       string          `json:"product_name"`
	GenericName       string          `json:"generic_name"`
	Brands            string          `json:"brands"`
	BrandsTags        []string        `json:"brands_tags"`
	CategoriesTags    []string        `json:"categories_tags"`
	ImageFrontSmall   string          `json:"image_front_small_url"`
	ImageThumb        string          `json:"image_thumb_url"`
	ImageURL          string          `json:"image_url"`
	NutriscoreGrade   string          `json:"nutriscore_grade"`
	Nutriments        map[string]any  `json:"nutriments"`
	Ingredients       []offIngredient `json:"ingredients"`
}

type offIngredient struct {
	Text            string   `json:"text"`
	PercentEstimate *float64 `json:"percent_estimate"`
	Percent         *float64 `json:"percent"`
}

func (c *httpClient) Lookup(ctx context.Context, barcode string) (*model.ProductRecord, error) {
	cfg := c.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("openfoodfacts", "lookup")
	}
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (*model.ProductRecord, error) {
		return c.lookup(ctx, barcode)
	})
}

func (c *httpClient) lookup(ctx context.Context, barcode string) (*model.ProductRecord, error) {
	reqURL := fmt.Sprintf("%s/api/v2/product/%s.json", c.baseURL, barcode)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "openfoodfacts: create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "openfoodfacts: request failed")
	}
	defer resp.Body.Close()

	// The v2 endpoint answers 404 with a status-0 JSON body for unknown
	// barcodes; accept both shapes.
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("openfoodfacts: unexpected status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "openfoodfacts: read response body")
	}

	var parsed offResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "openfoodfacts: unmarshal response")
	}
	if parsed.Status != 1 {
		return nil, nil
	}

	return mapProduct(barcode, parsed.Product), nil
}

// mapProduct converts the external schema into a ProductRecord. Ingredients
// start with safe defaults; the analyzer refines them later.
func mapProduct(barcode string, p offProduct) *model.ProductRecord {
	name := p.ProductName
	if name == "" {
		name = p.GenericName
	}
	if name == "" {
		name = "Unknown product"
	}

	brand := p.Brands
	if len(p.BrandsTags) > 0 {
		brand = p.BrandsTags[0]
	}

	category := ""
	if len(p.CategoriesTags) > 0 {
		category = p.CategoriesTags[0]
	}

	image := p.ImageFrontSmall
	if image == "" {
		image = p.ImageThumb
	}
	if image == "" {
		image = p.ImageURL
	}

	ingredients := make([]model.Ingredient, 0, len(p.Ingredients))
	for _, ing := range p.Ingredients {
		name := ing.Text
		if name == "" {
			name = "Unknown ingredient"
		}
		pct := ing.PercentEstimate
		if pct == nil {
			pct = ing.Percent
		}
		ingredients = append(ingredients, model.Ingredient{
			Name:       name,
			Percentage: pct,
			IsHarmful:  false,
			RiskLevel:  model.RiskLow,
		})
	}

	return &model.ProductRecord{
		Barcode:     barcode,
		ProductName: name,
		Brand:       brand,
		Category:    category,
		ImageURL:    image,
		NutriScore:  p.NutriscoreGrade,
		Nutriments:  numericNutriments(p.Nutriments),
		Ingredients: ingredients,
	}
}

// numericNutriments keeps only the numeric fields of the open-ended
// nutriments map; unit and label strings are dropped.
func numericNutriments(raw map[string]any) map[string]float64 {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		if f, ok := v.(float64); ok {
			out[k] = f
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
