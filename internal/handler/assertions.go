package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/age-assertion-service/internal/middleware"
	"github.com/age-assertion-service/internal/service"
)

// --- Issue assertion ---

type IssueAssertionHandler struct {
	svc *service.AssertionService
}

func NewIssueAssertionHandler(svc *service.AssertionService) *IssueAssertionHandler {
	return &IssueAssertionHandler{svc: svc}
}

type issueAssertionRequest struct {
	ProofRequestID string `json:"proof_request_id"`
	Nonce          string `json:"nonce,omitempty"`
}

type issueAssertionResponse struct {
	Assertion string `json:"assertion"`
	TokenID   string `json:"token_id"`
	Nonce     string `json:"nonce"`
	AgeOver   int    `json:"age_over"`
	IssuedAt  string `json:"issued_at"`
	ExpiresAt string `json:"expires_at"`
}

func (h *IssueAssertionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mc := middleware.GetMerchant(r.Context())
	if mc == nil {
		RespondError(w, http.StatusUnauthorized, "MISSING_API_KEY", "Missing API key")
		return
	}

	var req issueAssertionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		RespondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	if req.ProofRequestID == "" {
		RespondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "proof_request_id is required")
		return
	}

	result, err := h.svc.Issue(r.Context(), mc, req.ProofRequestID, req.Nonce)
	if err != nil {
		service.RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusCreated, issueAssertionResponse{
		Assertion: result.Token,
		TokenID:   result.TokenID,
		Nonce:     result.Nonce,
		AgeOver:   result.AgeOver,
		IssuedAt:  result.IssuedAt.Format(time.RFC3339),
		ExpiresAt: result.ExpiresAt.Format(time.RFC3339),
	})
}

// --- Verify assertion ---

type VerifyAssertionHandler struct {
	svc *service.AssertionService
}

func NewVerifyAssertionHandler(svc *service.AssertionService) *VerifyAssertionHandler {
	return &VerifyAssertionHandler{svc: svc}
}

type verifyAssertionRequest struct {
	Assertion          string `json:"assertion"`
	RequiredMinAge     int    `json:"required_min_age"`
	ExpectedNonce      string `json:"expected_nonce"`
	ExpectedSubjectRef string `json:"expected_subject_ref,omitempty"`
}

func (h *VerifyAssertionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mc := middleware.GetMerchant(r.Context())
	if mc == nil {
		RespondError(w, http.StatusUnauthorized, "MISSING_API_KEY", "Missing API key")
		return
	}

	var req verifyAssertionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		RespondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	result, err := h.svc.Verify(r.Context(), mc, req.Assertion, req.RequiredMinAge, req.ExpectedNonce, req.ExpectedSubjectRef)
	if err != nil {
		service.RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, result)
}
