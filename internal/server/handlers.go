package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/scansafe/internal/auth"
	"github.com/sells-group/scansafe/internal/barcode"
	"github.com/sells-group/scansafe/internal/model"
	"github.com/sells-group/scansafe/internal/scanner"
)

const defaultRecentScans = 10

type scanRequest struct {
	Barcode     string         `json:"barcode"`
	UserRegion  string         `json:"userRegion,omitempty"`
	UserContext map[string]any `json:"userContext,omitempty"`
	IDToken     string         `json:"idToken,omitempty"`
}

type scanResponse struct {
	*model.ProductRecord
	HarmfulSummary model.HarmfulSummary `json:"harmfulSummary"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Barcode) == "" {
		writeError(w, http.StatusBadRequest, "Barcode is required")
		return
	}

	token := req.IDToken
	if token == "" {
		token = auth.BearerToken(r.Header.Get("Authorization"))
	}
	identity := s.verifier.Verify(r.Context(), token)

	result, err := s.scanner.Scan(r.Context(), req.Barcode, scanner.ScanContext{
		Region:      req.UserRegion,
		UserID:      identity.UserID,
		UserContext: req.UserContext,
	})
	if err != nil {
		if barcode.IsInvalid(err) {
			scanOutcomes.WithLabelValues("invalid").Inc()
			writeError(w, http.StatusBadRequest, "Invalid barcode format. Expected 8, 12, or 13 digits.")
			return
		}
		s.logger.Error("scan failed", zap.String("barcode", req.Barcode), zap.Error(err))
		scanOutcomes.WithLabelValues("error").Inc()
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if result.NotFound() {
		scanOutcomes.WithLabelValues("not_found").Inc()
		writeError(w, http.StatusNotFound, "Product not found")
		return
	}

	product := result.Product
	scanOutcomes.WithLabelValues(string(product.Source)).Inc()
	s.logScanAsync(product, req.UserRegion, identity)

	writeJSON(w, http.StatusOK, scanResponse{
		ProductRecord:  product,
		HarmfulSummary: model.BuildHarmfulSummary(product),
	})
}

// logScanAsync appends a scan log entry without blocking the response.
// The write uses its own context so a closed request doesn't cancel it.
func (s *Server) logScanAsync(product *model.ProductRecord, region string, identity auth.Identity) {
	entry := model.ScanLogEntry{
		Barcode:     product.Barcode,
		ProductName: product.ProductName,
		SafetyScore: product.SafetyScore,
		Region:      region,
		UserID:      identity.UserID,
		LoggedAt:    time.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.AppendScanLog(ctx, entry); err != nil {
			s.logger.Warn("scan log write failed",
				zap.String("barcode", entry.Barcode), zap.Error(err))
		}
	}()
}

func (s *Server) handleRecentScans(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentScans
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 100 {
			writeError(w, http.StatusBadRequest, "limit must be an integer between 1 and 100")
			return
		}
		limit = parsed
	}

	entries, err := s.store.RecentScans(r.Context(), limit)
	if err != nil {
		s.logger.Error("recent scans query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if entries == nil {
		entries = []model.ScanLogEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"scans": entries})
}
