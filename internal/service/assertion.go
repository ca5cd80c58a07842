package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/age-assertion-service/internal/metrics"
	"github.com/age-assertion-service/internal/middleware"
	"github.com/age-assertion-service/internal/model"
	"github.com/age-assertion-service/internal/store"
	"github.com/age-assertion-service/internal/token"
	"github.com/age-assertion-service/internal/validation"
)

// minTokenIDLength guards against degenerate jti claims in presented tokens.
const minTokenIDLength = 8

// AssertionService issues and verifies assertion tokens. Issuance has no
// persistent side effect; the replay-ledger row is created at verification.
type AssertionService struct {
	proofs  store.ProofRequestStore
	uses    store.AssertionUseStore
	minter  *token.Minter
	metrics *metrics.Metrics
}

// NewAssertionService creates a new assertion service.
func NewAssertionService(proofs store.ProofRequestStore, uses store.AssertionUseStore, minter *token.Minter, m *metrics.Metrics) *AssertionService {
	return &AssertionService{proofs: proofs, uses: uses, minter: minter, metrics: m}
}

// IssueAssertionResult contains the output of a successful issuance.
type IssueAssertionResult struct {
	Token     string
	TokenID   string
	Nonce     string
	AgeOver   int
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Issue mints a signed assertion for a passed proof request owned by the
// requesting merchant. A merchant may mint the same proof's assertion
// multiple times with different nonces; each is independently single-use.
func (s *AssertionService) Issue(ctx context.Context, mc *middleware.MerchantContext, proofRequestID, nonce string) (*IssueAssertionResult, error) {
	pr, err := s.proofs.GetMerchantProofRequest(ctx, mc.MerchantID, proofRequestID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, NewNotFound("NOT_FOUND", "Proof request not found")
		}
		log.Error().Err(err).Str("proof_request_id", proofRequestID).Msg("failed to load proof request")
		return nil, NewInternal("INTERNAL_ERROR", "Failed to issue assertion")
	}

	if pr.Status != model.ProofStatusPassed {
		return nil, NewConflict("PROOF_NOT_PASSED", "Proof request has not passed verification")
	}

	if nonce == "" {
		nonce, err = token.RandomNonce()
		if err != nil {
			log.Error().Err(err).Msg("failed to generate nonce")
			return nil, NewInternal("INTERNAL_ERROR", "Failed to issue assertion")
		}
	} else if err := validation.Nonce(nonce); err != nil {
		return nil, NewValidation(err.Error())
	}

	verifierRef := ""
	if pr.VerifierRef != nil {
		verifierRef = *pr.VerifierRef
	}

	signed, claims, err := s.minter.Mint(token.MintInput{
		AgeOver:        pr.MinAge,
		Nonce:          nonce,
		ProofRequestID: pr.ID,
		VerifierRef:    verifierRef,
		Audience:       mc.ExternalRef,
		Subject:        pr.SubjectRef,
	})
	if err != nil {
		log.Error().Err(err).Str("proof_request_id", proofRequestID).Msg("failed to mint assertion")
		return nil, NewInternal("INTERNAL_ERROR", "Failed to issue assertion")
	}

	s.metrics.IncAssertionIssued()
	return &IssueAssertionResult{
		Token:     signed,
		TokenID:   claims.ID,
		Nonce:     nonce,
		AgeOver:   claims.AgeOver,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// VerificationResult carries the informational fields of an accepted
// assertion. MeetsMinAge compares the asserted threshold against the
// verifier's requirement; an insufficient threshold is a result, not an error.
type VerificationResult struct {
	Valid          bool      `json:"valid"`
	MeetsMinAge    bool      `json:"meets_min_age"`
	RequiredMinAge int       `json:"required_min_age"`
	AgeOver        int       `json:"age_over"`
	Nonce          string    `json:"nonce"`
	SubjectRef     string    `json:"subject_ref,omitempty"`
	ProofRequestID string    `json:"proof_request_id,omitempty"`
	VerifierRef    string    `json:"verifier_ref,omitempty"`
	Issuer         string    `json:"issuer"`
	Audience       string    `json:"audience"`
	IssuedAt       time.Time `json:"issued_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Verify validates a presented assertion for the calling merchant, in order,
// short-circuiting on the first failure. The final step atomically claims the
// token identifier in the replay ledger; that insert is the sole replay
// prevention mechanism.
func (s *AssertionService) Verify(ctx context.Context, mc *middleware.MerchantContext, rawToken string, requiredMinAge int, expectedNonce, expectedSubjectRef string) (*VerificationResult, error) {
	if rawToken == "" {
		return nil, NewValidation("assertion cannot be empty")
	}
	if requiredMinAge < 1 {
		return nil, NewValidation("required_min_age must be positive")
	}
	if expectedNonce == "" {
		return nil, NewValidation("expected_nonce cannot be empty")
	}

	// 1. Signature, issuer, audience, expiry. One opaque error for all of
	// them: the caller must not learn which sub-check failed.
	claims, err := s.minter.Parse(rawToken, mc.ExternalRef)
	if err != nil {
		s.metrics.IncVerification("invalid")
		return nil, NewUnauthorized("INVALID_ASSERTION", "Assertion is not valid for this merchant")
	}

	// 2. Claim shape.
	if err := validation.MinAge(claims.AgeOver); err != nil {
		s.metrics.IncVerification("malformed")
		return nil, NewBadRequest("INVALID_ASSERTION_CLAIMS", "Assertion claims are malformed")
	}
	if claims.Nonce == "" {
		s.metrics.IncVerification("malformed")
		return nil, NewBadRequest("INVALID_ASSERTION_CLAIMS", "Assertion claims are malformed")
	}

	// 3. Nonce binding to the relying party's challenge.
	if claims.Nonce != expectedNonce {
		s.metrics.IncVerification("nonce_mismatch")
		return nil, NewConflict("NONCE_MISMATCH", "Assertion nonce does not match the expected challenge")
	}

	// 4. Optional subject binding.
	if expectedSubjectRef != "" && claims.Subject != expectedSubjectRef {
		s.metrics.IncVerification("subject_mismatch")
		return nil, NewConflict("SUBJECT_MISMATCH", "Assertion subject does not match the expected reference")
	}

	// 5. Token identifier shape.
	if len(claims.ID) < minTokenIDLength {
		s.metrics.IncVerification("malformed")
		return nil, NewBadRequest("INVALID_ASSERTION_CLAIMS", "Assertion claims are malformed")
	}

	// 6. Atomic claim of the token identifier.
	use := &model.AssertionUse{
		TokenID:    claims.ID,
		Nonce:      claims.Nonce,
		MerchantID: mc.MerchantID,
		ExpiresAt:  claims.ExpiresAt.Time,
	}
	if claims.Subject != "" {
		subject := claims.Subject
		use.SubjectRef = &subject
	}
	if claims.ProofRequestID != "" {
		prID := claims.ProofRequestID
		use.ProofRequestID = &prID
	}
	if err := s.uses.InsertAssertionUse(ctx, use); err != nil {
		if errors.Is(err, store.ErrDuplicateTokenID) {
			s.metrics.IncVerification("replayed")
			return nil, NewConflict("ASSERTION_REPLAYED", "Assertion has already been consumed")
		}
		log.Error().Err(err).Str("token_id", claims.ID).Msg("failed to record assertion use")
		return nil, NewInternal("INTERNAL_ERROR", "Failed to verify assertion")
	}

	s.metrics.IncVerification("accepted")
	return &VerificationResult{
		Valid:          true,
		MeetsMinAge:    claims.AgeOver >= requiredMinAge,
		RequiredMinAge: requiredMinAge,
		AgeOver:        claims.AgeOver,
		Nonce:          claims.Nonce,
		SubjectRef:     claims.Subject,
		ProofRequestID: claims.ProofRequestID,
		VerifierRef:    claims.VerifierRef,
		Issuer:         claims.Issuer,
		Audience:       mc.ExternalRef,
		IssuedAt:       claims.IssuedAt.Time,
		ExpiresAt:      claims.ExpiresAt.Time,
	}, nil
}
