package entity

import (
	"time"

	"github.com/google/uuid"
)

// User represents a registered account for data transfer between layers.
// PasswordHash never crosses the API boundary.
type User struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	CPF          string    `json:"cpf"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
