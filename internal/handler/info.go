package handler

import (
	"net/http"

	"github.com/age-assertion-service/internal/token"
	"github.com/age-assertion-service/internal/validation"
)

type InfoHandler struct {
	assertionTTLSeconds int
}

func NewInfoHandler(assertionTTLSeconds int) *InfoHandler {
	return &InfoHandler{assertionTTLSeconds: assertionTTLSeconds}
}

type InfoResponse struct {
	Issuer              string `json:"issuer"`
	MinAgeFloor         int    `json:"min_age_floor"`
	MinAgeCeil          int    `json:"min_age_ceil"`
	AssertionTTLSeconds int    `json:"assertion_ttl_seconds"`
}

func (h *InfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, InfoResponse{
		Issuer:              token.Issuer,
		MinAgeFloor:         validation.MinAgeFloor,
		MinAgeCeil:          validation.MinAgeCeil,
		AssertionTTLSeconds: h.assertionTTLSeconds,
	})
}
