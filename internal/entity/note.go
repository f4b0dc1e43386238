package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Note represents a persisted receipt for data transfer between layers.
// Notes are immutable after creation; AccessKeyHash is the identity hash
// that deduplicates ingestion attempts per user.
type Note struct {
	ID                   uuid.UUID       `json:"id"`
	UserID               uuid.UUID       `json:"user_id"`
	AccessKeyHash        string          `json:"access_key_hash"`
	EstablishmentName    string          `json:"establishment_name"`
	EstablishmentTaxID   string          `json:"establishment_tax_id,omitempty"`
	EstablishmentAddress string          `json:"establishment_address,omitempty"`
	IssuedAt             time.Time       `json:"issued_at"`
	TotalValue           decimal.Decimal `json:"total_value"`
	TotalTax             decimal.Decimal `json:"total_tax"`
	CreatedAt            time.Time       `json:"created_at"`
	Products             []*Product      `json:"products,omitempty"`
}
