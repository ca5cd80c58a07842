package model

import (
	"time"

	"github.com/google/uuid"
)

type ProofStatus string

const (
	ProofStatusPending ProofStatus = "pending"
	ProofStatusPassed  ProofStatus = "passed"
	ProofStatusFailed  ProofStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s ProofStatus) Terminal() bool {
	return s == ProofStatusPassed || s == ProofStatusFailed
}

// ProofRequest is one age-verification attempt. SubjectRef and MinAge are
// immutable after creation; status moves pending -> passed|failed exactly
// once, driven by the external verifier callback.
type ProofRequest struct {
	ID          string      `json:"id"`
	MerchantID  uuid.UUID   `json:"merchant_id"`
	SubjectRef  string      `json:"subject_ref"`
	MinAge      int         `json:"min_age"`
	Status      ProofStatus `json:"status"`
	VerifierRef *string     `json:"verifier_ref,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}
