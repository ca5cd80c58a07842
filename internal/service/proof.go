package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/age-assertion-service/internal/metrics"
	"github.com/age-assertion-service/internal/model"
	"github.com/age-assertion-service/internal/store"
	"github.com/age-assertion-service/internal/validation"
)

const proofRequestIDPrefix = "pr_"

// ProofService manages the proof request lifecycle: creation by merchants,
// resolution by the external verifier, status reads.
type ProofService struct {
	store   store.ProofRequestStore
	metrics *metrics.Metrics
}

// NewProofService creates a new proof lifecycle service.
func NewProofService(s store.ProofRequestStore, m *metrics.Metrics) *ProofService {
	return &ProofService{store: s, metrics: m}
}

// Create validates input and persists a new pending proof request.
func (s *ProofService) Create(ctx context.Context, merchantID uuid.UUID, subjectRef string, minAge int) (*model.ProofRequest, error) {
	var details []string
	if err := validation.SubjectRef(subjectRef); err != nil {
		details = append(details, err.Error())
	}
	if err := validation.MinAge(minAge); err != nil {
		details = append(details, err.Error())
	}
	if len(details) > 0 {
		return nil, NewValidation(details...)
	}

	id, err := generateProofRequestID()
	if err != nil {
		log.Error().Err(err).Msg("failed to generate proof request id")
		return nil, NewInternal("INTERNAL_ERROR", "Failed to create proof request")
	}

	pr := &model.ProofRequest{
		ID:         id,
		MerchantID: merchantID,
		SubjectRef: subjectRef,
		MinAge:     minAge,
		Status:     model.ProofStatusPending,
	}
	if err := s.store.CreateProofRequest(ctx, pr); err != nil {
		log.Error().Err(err).Msg("failed to create proof request")
		return nil, NewInternal("INTERNAL_ERROR", "Failed to create proof request")
	}

	s.metrics.IncProofRequestCreated()
	return pr, nil
}

// ApplyCallback records the verifier's result. The lookup is by id alone:
// verifiers know nothing about merchant scoping. A callback for an
// already-terminal request is accepted only when it repeats the recorded
// outcome exactly; a contradictory callback is a conflict.
func (s *ProofService) ApplyCallback(ctx context.Context, proofRequestID, result, verifierRef string) (*model.ProofRequest, error) {
	status := model.ProofStatus(result)
	if status != model.ProofStatusPassed && status != model.ProofStatusFailed {
		return nil, NewValidation(fmt.Sprintf("result must be %q or %q", model.ProofStatusPassed, model.ProofStatusFailed))
	}
	if verifierRef == "" {
		return nil, NewValidation("verifier_ref cannot be empty")
	}

	applied, err := s.store.ApplyProofResult(ctx, proofRequestID, status, verifierRef)
	if err != nil {
		log.Error().Err(err).Str("proof_request_id", proofRequestID).Msg("failed to apply proof result")
		return nil, NewInternal("INTERNAL_ERROR", "Failed to apply verification result")
	}
	if !applied {
		// Either the request does not exist or it is terminal with a
		// different outcome. Distinguish for the caller.
		pr, err := s.store.GetProofRequest(ctx, proofRequestID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, NewNotFound("NOT_FOUND", "Proof request not found")
			}
			log.Error().Err(err).Str("proof_request_id", proofRequestID).Msg("failed to load proof request")
			return nil, NewInternal("INTERNAL_ERROR", "Failed to apply verification result")
		}
		log.Warn().
			Str("proof_request_id", proofRequestID).
			Str("recorded_status", string(pr.Status)).
			Str("callback_result", result).
			Msg("rejected contradictory callback for terminal proof request")
		return nil, NewConflict("PROOF_ALREADY_DECIDED", "Proof request already has a different result")
	}

	pr, err := s.store.GetProofRequest(ctx, proofRequestID)
	if err != nil {
		log.Error().Err(err).Str("proof_request_id", proofRequestID).Msg("failed to reload proof request")
		return nil, NewInternal("INTERNAL_ERROR", "Failed to apply verification result")
	}

	s.metrics.IncCallbackApplied(result)
	return pr, nil
}

// GetStatus returns a proof request scoped to the requesting merchant. A
// request owned by another merchant is indistinguishable from a nonexistent
// one.
func (s *ProofService) GetStatus(ctx context.Context, merchantID uuid.UUID, proofRequestID string) (*model.ProofRequest, error) {
	pr, err := s.store.GetMerchantProofRequest(ctx, merchantID, proofRequestID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, NewNotFound("NOT_FOUND", "Proof request not found")
		}
		log.Error().Err(err).Str("proof_request_id", proofRequestID).Msg("failed to load proof request")
		return nil, NewInternal("INTERNAL_ERROR", "Failed to load proof request")
	}
	return pr, nil
}

func generateProofRequestID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("crypto/rand failed: %w", err)
	}
	return proofRequestIDPrefix + hex.EncodeToString(b), nil
}
