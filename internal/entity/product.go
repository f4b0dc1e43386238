package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is one line item of a Note. Position preserves the receipt print
// order; products are only ever created together with their owning note.
type Product struct {
	ID          uuid.UUID       `json:"id"`
	NoteID      uuid.UUID       `json:"note_id"`
	Position    int             `json:"position"`
	Code        string          `json:"code,omitempty"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
	CreatedAt   time.Time       `json:"created_at"`
}
