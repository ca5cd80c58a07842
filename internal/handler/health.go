package handler

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/age-assertion-service/internal/store"
)

type HealthHandler struct {
	merchants store.MerchantStore
	keys      store.APIKeyStore
	startTime time.Time
}

func NewHealthHandler(merchants store.MerchantStore, keys store.APIKeyStore) *HealthHandler {
	return &HealthHandler{
		merchants: merchants,
		keys:      keys,
		startTime: time.Now(),
	}
}

type HealthResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	TotalMerchants int    `json:"total_merchants"`
	TotalAPIKeys   int    `json:"total_api_keys"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	merchants, err := h.merchants.CountMerchants(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to count merchants")
		status = "degraded"
	}

	keys, err := h.keys.CountAPIKeys(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to count API keys")
		status = "degraded"
	}

	RespondJSON(w, http.StatusOK, HealthResponse{
		Status:         status,
		Version:        "1.0.0",
		TotalMerchants: merchants,
		TotalAPIKeys:   keys,
		UptimeSeconds:  int64(time.Since(h.startTime).Seconds()),
	})
}
