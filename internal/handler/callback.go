package handler

import (
	"encoding/json"
	"net/http"

	"github.com/age-assertion-service/internal/service"
)

// VerifierCallbackHandler receives the external verifier's result for a
// proof request. It runs behind the shared-secret middleware, not merchant
// authentication.
type VerifierCallbackHandler struct {
	svc *service.ProofService
}

func NewVerifierCallbackHandler(svc *service.ProofService) *VerifierCallbackHandler {
	return &VerifierCallbackHandler{svc: svc}
}

type verifierCallbackRequest struct {
	ProofRequestID string `json:"proof_request_id"`
	Result         string `json:"result"`
	VerifierRef    string `json:"verifier_ref"`
}

type verifierCallbackResponse struct {
	ProofRequestID string `json:"proof_request_id"`
	Status         string `json:"status"`
}

func (h *VerifierCallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req verifierCallbackRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		RespondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	if req.ProofRequestID == "" {
		RespondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "proof_request_id is required")
		return
	}

	pr, err := h.svc.ApplyCallback(r.Context(), req.ProofRequestID, req.Result, req.VerifierRef)
	if err != nil {
		service.RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, verifierCallbackResponse{
		ProofRequestID: pr.ID,
		Status:         string(pr.Status),
	})
}
