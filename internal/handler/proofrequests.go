package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/age-assertion-service/internal/middleware"
	"github.com/age-assertion-service/internal/model"
	"github.com/age-assertion-service/internal/service"
)

// --- Create proof request ---

type CreateProofRequestHandler struct {
	svc *service.ProofService
}

func NewCreateProofRequestHandler(svc *service.ProofService) *CreateProofRequestHandler {
	return &CreateProofRequestHandler{svc: svc}
}

type createProofRequestRequest struct {
	SubjectRef string `json:"subject_ref"`
	MinAge     int    `json:"min_age"`
}

type proofRequestResponse struct {
	ID          string `json:"id"`
	SubjectRef  string `json:"subject_ref"`
	MinAge      int    `json:"min_age"`
	Status      string `json:"status"`
	VerifierRef string `json:"verifier_ref,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func (h *CreateProofRequestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mc := middleware.GetMerchant(r.Context())
	if mc == nil {
		RespondError(w, http.StatusUnauthorized, "MISSING_API_KEY", "Missing API key")
		return
	}

	var req createProofRequestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		RespondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	pr, err := h.svc.Create(r.Context(), mc.MerchantID, req.SubjectRef, req.MinAge)
	if err != nil {
		service.RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusCreated, toProofRequestResponse(pr))
}

// --- Get proof request status ---

type GetProofRequestHandler struct {
	svc *service.ProofService
}

func NewGetProofRequestHandler(svc *service.ProofService) *GetProofRequestHandler {
	return &GetProofRequestHandler{svc: svc}
}

func (h *GetProofRequestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mc := middleware.GetMerchant(r.Context())
	if mc == nil {
		RespondError(w, http.StatusUnauthorized, "MISSING_API_KEY", "Missing API key")
		return
	}

	pr, err := h.svc.GetStatus(r.Context(), mc.MerchantID, chi.URLParam(r, "id"))
	if err != nil {
		service.RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, toProofRequestResponse(pr))
}

// --- Helpers ---

func toProofRequestResponse(pr *model.ProofRequest) proofRequestResponse {
	resp := proofRequestResponse{
		ID:         pr.ID,
		SubjectRef: pr.SubjectRef,
		MinAge:     pr.MinAge,
		Status:     string(pr.Status),
		CreatedAt:  pr.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  pr.UpdatedAt.Format(time.RFC3339),
	}
	if pr.VerifierRef != nil {
		resp.VerifierRef = *pr.VerifierRef
	}
	return resp
}
