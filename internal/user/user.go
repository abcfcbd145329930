package user

import (
	"time"

	"github.com/google/uuid"
)

// User rows are provisioned by the storefront platform; this service only
// reads them to resolve authenticated callers.
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primary_key" json:"id"`
	Name      string    `json:"name"`
	Email     string    `gorm:"uniqueIndex" json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
