package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// MinAgeFloor and MinAgeCeil bound the age-over thresholds the service
	// will attest to. Requests outside the band are rejected.
	MinAgeFloor = 13
	MinAgeCeil  = 25

	// MinNonceLength is the shortest accepted caller-supplied nonce.
	MinNonceLength = 8

	maxSubjectRefLength = 255
	maxNonceLength      = 255
	maxLabelLength      = 100
)

// SubjectRef validates an opaque subject reference. The value is never
// interpreted; only sanity limits apply.
func SubjectRef(ref string) error {
	if strings.TrimSpace(ref) == "" {
		return fmt.Errorf("subject_ref cannot be empty")
	}
	if utf8.RuneCountInString(ref) > maxSubjectRefLength {
		return fmt.Errorf("subject_ref must be at most %d characters", maxSubjectRefLength)
	}
	return nil
}

// MinAge validates an age-over threshold against the allowed band.
func MinAge(age int) error {
	if age < MinAgeFloor || age > MinAgeCeil {
		return fmt.Errorf("min_age must be between %d and %d", MinAgeFloor, MinAgeCeil)
	}
	return nil
}

// Nonce validates a caller-supplied nonce. Nonces are opaque; the minimum
// length resists guessing a challenge value.
func Nonce(nonce string) error {
	if len(nonce) < MinNonceLength {
		return fmt.Errorf("nonce must be at least %d characters", MinNonceLength)
	}
	if len(nonce) > maxNonceLength {
		return fmt.Errorf("nonce must be at most %d characters", maxNonceLength)
	}
	return nil
}

// KeyLabel validates a human-readable API key label.
func KeyLabel(label string) error {
	if strings.TrimSpace(label) == "" {
		return fmt.Errorf("label cannot be empty")
	}
	if utf8.RuneCountInString(label) > maxLabelLength {
		return fmt.Errorf("label must be at most %d characters", maxLabelLength)
	}
	return nil
}
