package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang-redflag-service/internal/metrics"
	"golang-redflag-service/internal/models"
	"golang-redflag-service/internal/normalize"
	"golang-redflag-service/pkg/errors"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cast"
)

// GET /health
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// POST /api/cases/{caseID}/ingest
func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}

	batch, err := req.Batch(chi.URLParam(r, "caseID"))
	if err != nil {
		writeFailure(w, err)
		return
	}

	report, err := h.analyzer.Ingest(r.Context(), batch)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// POST /api/cases/{caseID}/analysis
func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) {
	report, err := h.analyzer.Analyze(r.Context(), chi.URLParam(r, "caseID"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GET /api/cases/{caseID}/alerts
func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	set, err := h.analyzer.Alerts(r.Context(), chi.URLParam(r, "caseID"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

// GET /api/cases/{caseID}/transactions
func (h *Handler) transactions(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseID")
	txs, err := h.analyzer.Transactions(r.Context(), caseID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"caseId":       caseID,
		"count":        len(txs),
		"transactions": txs,
	})
}

// GET /api/cases/{caseID}/metrics?from&to&minAmount&method&top
func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		writeFailure(w, err)
		return
	}
	summary, err := h.analyzer.Metrics(r.Context(), chi.URLParam(r, "caseID"), filter)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type rulesBody struct {
	CaseID string        `json:"caseId,omitempty"`
	Rules  []models.Rule `json:"rules"`
}

// GET /api/cases/{caseID}/rules
func (h *Handler) getRules(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseID")
	ruleSet, err := h.analyzer.Rules(r.Context(), caseID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rulesBody{CaseID: caseID, Rules: ruleSet})
}

// PUT /api/cases/{caseID}/rules
func (h *Handler) putRules(w http.ResponseWriter, r *http.Request) {
	var body rulesBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if body.Rules == nil {
		writeFailure(w, errors.ValidationError(errors.CodeMissingField, "rules", nil, nil))
		return
	}

	caseID := chi.URLParam(r, "caseID")
	stored, err := h.analyzer.UpdateRules(r.Context(), caseID, body.Rules)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rulesBody{CaseID: caseID, Rules: stored})
}

// parseFilter reads the metrics query. A date-only "to" covers the whole day.
func parseFilter(q url.Values) (metrics.Filter, error) {
	var filter metrics.Filter

	if raw := q.Get("from"); raw != "" {
		from, err := normalize.ParseDate(raw, time.UTC)
		if err != nil {
			return filter, errors.ValidationError(errors.CodeInvalidValue, "from", raw, err)
		}
		filter.From = &from
	}
	if raw := q.Get("to"); raw != "" {
		to, err := normalize.ParseDate(raw, time.UTC)
		if err != nil {
			return filter, errors.ValidationError(errors.CodeInvalidValue, "to", raw, err)
		}
		if to.Equal(to.Truncate(24*time.Hour)) && !strings.Contains(raw, ":") {
			to = to.Add(24*time.Hour - time.Nanosecond)
		}
		filter.To = &to
	}
	if raw := q.Get("minAmount"); raw != "" {
		amount, _, err := normalize.ParseAmount(raw)
		if err != nil {
			return filter, errors.ValidationError(errors.CodeInvalidValue, "minAmount", raw, err)
		}
		filter.MinAmount = &amount
	}
	if raw := q.Get("method"); raw != "" {
		method, ok := normalize.ParseMethod(raw)
		if !ok {
			return filter, errors.ValidationError(errors.CodeInvalidValue, "method", raw,
				fmt.Errorf("unknown payment method"))
		}
		filter.Method = method
	}
	if raw := q.Get("top"); raw != "" {
		top, err := cast.ToIntE(raw)
		if err != nil || top < 0 {
			return filter, errors.ValidationError(errors.CodeInvalidValue, "top", raw,
				fmt.Errorf("top must be a non-negative integer"))
		}
		filter.TopN = top
	}

	return filter, nil
}
