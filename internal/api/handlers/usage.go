package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/tutorstack/tutorstack/engine/internal/api/middleware"
)

// UsageReader is implemented by sinks that can aggregate what they
// recorded. The nop sink does not, so the summary endpoint reports
// usage recording as disabled.
type UsageReader interface {
	TenantTotals(tenant string, since time.Time) (int64, error)
}

// UsageSummary handles GET /api/v1/usage/summary, reporting the
// tenant's token total over the requested window (days query parameter,
// default 1).
func (h *Handlers) UsageSummary(w http.ResponseWriter, r *http.Request) {
	reader, ok := h.Usage.(UsageReader)
	if !ok {
		respondError(w, http.StatusNotImplemented, "usage recording is disabled")
		return
	}

	days := 1
	if q := r.URL.Query().Get("days"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = n
	}

	tenant := middleware.GetTenant(r.Context())
	since := time.Now().UTC().AddDate(0, 0, -days)
	total, err := reader.TenantTotals(tenant, since)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"tenant":       tenant,
		"days":         days,
		"total_tokens": total,
	})
}
