package id

import (
	"fmt"

	"github.com/google/uuid"
)

func Generate() string {
	return uuid.New().String()
}

// NewDepositReference builds the caller-generated idempotency reference for a
// deposit attempt. Alphanumeric plus hyphens only, per gateway requirements.
func NewDepositReference() string {
	return fmt.Sprintf("dep-%s", uuid.New().String())
}

func IsValidUUID(id string) (uuid.UUID, error) {
	return uuid.Parse(id)
}
