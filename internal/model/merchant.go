package model

import (
	"time"

	"github.com/google/uuid"
)

// Merchant is an API consumer. The ExternalRef is the stable public-facing
// identifier used as the audience of issued assertion tokens.
type Merchant struct {
	ID          uuid.UUID `json:"id"`
	ExternalRef string    `json:"external_ref"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"created_at"`
}
