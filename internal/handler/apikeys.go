package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/age-assertion-service/internal/httputil"
	"github.com/age-assertion-service/internal/middleware"
	"github.com/age-assertion-service/internal/model"
	"github.com/age-assertion-service/internal/service"
)

// --- Issue API key ---

type IssueAPIKeyHandler struct {
	svc *service.APIKeyService
}

func NewIssueAPIKeyHandler(svc *service.APIKeyService) *IssueAPIKeyHandler {
	return &IssueAPIKeyHandler{svc: svc}
}

type issueAPIKeyRequest struct {
	Label string `json:"label"`
}

type issueAPIKeyResponse struct {
	ID         uuid.UUID `json:"id"`
	APIKey     string    `json:"api_key"`
	KeyPreview string    `json:"key_preview"`
	Label      string    `json:"label"`
	CreatedAt  string    `json:"created_at"`
}

func (h *IssueAPIKeyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mc := middleware.GetMerchant(r.Context())
	if mc == nil {
		RespondError(w, http.StatusUnauthorized, "MISSING_API_KEY", "Missing API key")
		return
	}

	var req issueAPIKeyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		RespondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	result, err := h.svc.Issue(r.Context(), mc.MerchantID, req.Label)
	if err != nil {
		service.RespondError(w, err)
		return
	}

	// The plaintext key appears in this response only.
	RespondJSON(w, http.StatusCreated, issueAPIKeyResponse{
		ID:         result.APIKey.ID,
		APIKey:     result.RawKey,
		KeyPreview: result.APIKey.KeyPreview,
		Label:      result.APIKey.Label,
		CreatedAt:  result.APIKey.CreatedAt.Format(time.RFC3339),
	})
}

// --- List API keys ---

type ListAPIKeysHandler struct {
	svc *service.APIKeyService
}

func NewListAPIKeysHandler(svc *service.APIKeyService) *ListAPIKeysHandler {
	return &ListAPIKeysHandler{svc: svc}
}

type listAPIKeysResponse struct {
	APIKeys []apiKeyListItem `json:"api_keys"`
	Total   int              `json:"total"`
	Page    int              `json:"page"`
	PerPage int              `json:"per_page"`
}

type apiKeyListItem struct {
	ID         uuid.UUID `json:"id"`
	KeyPreview string    `json:"key_preview"`
	Label      string    `json:"label"`
	Active     bool      `json:"active"`
	CreatedAt  string    `json:"created_at"`
	LastUsedAt string    `json:"last_used_at,omitempty"`
	RevokedAt  string    `json:"revoked_at,omitempty"`
}

func (h *ListAPIKeysHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mc := middleware.GetMerchant(r.Context())
	if mc == nil {
		RespondError(w, http.StatusUnauthorized, "MISSING_API_KEY", "Missing API key")
		return
	}

	page, perPage, err := httputil.ParsePagination(r.URL.Query().Get("page"), r.URL.Query().Get("per_page"))
	if err != nil {
		RespondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	includeRevoked := r.URL.Query().Get("include_revoked") == "true"

	keys, total, err := h.svc.List(r.Context(), mc.MerchantID, includeRevoked, page, perPage)
	if err != nil {
		log.Error().Err(err).Msg("failed to list API keys")
		service.RespondError(w, err)
		return
	}

	items := make([]apiKeyListItem, 0, len(keys))
	for _, key := range keys {
		items = append(items, toAPIKeyListItem(key))
	}

	RespondJSON(w, http.StatusOK, listAPIKeysResponse{
		APIKeys: items,
		Total:   total,
		Page:    page,
		PerPage: perPage,
	})
}

// --- Revoke API key ---

type RevokeAPIKeyHandler struct {
	svc *service.APIKeyService
}

func NewRevokeAPIKeyHandler(svc *service.APIKeyService) *RevokeAPIKeyHandler {
	return &RevokeAPIKeyHandler{svc: svc}
}

func (h *RevokeAPIKeyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mc := middleware.GetMerchant(r.Context())
	if mc == nil {
		RespondError(w, http.StatusUnauthorized, "MISSING_API_KEY", "Missing API key")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid API key ID")
		return
	}

	if err := h.svc.Revoke(r.Context(), mc, id); err != nil {
		service.RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"id":     id,
		"status": "revoked",
	})
}

// --- Helpers ---

func toAPIKeyListItem(key *model.APIKey) apiKeyListItem {
	item := apiKeyListItem{
		ID:         key.ID,
		KeyPreview: key.KeyPreview,
		Label:      key.Label,
		Active:     key.Active(),
		CreatedAt:  key.CreatedAt.Format(time.RFC3339),
	}
	if key.LastUsedAt != nil {
		item.LastUsedAt = key.LastUsedAt.Format(time.RFC3339)
	}
	if key.RevokedAt != nil {
		item.RevokedAt = key.RevokedAt.Format(time.RFC3339)
	}
	return item
}
