// Package scraper fetches the public NFC-e consultation page and extracts
// the receipt into a structured document. It is the only component in the
// pipeline that talks to the outside world, and it is read-only against it.
package scraper

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Receipt is the transient document produced by a scrape. It is never
// persisted directly; the ingest service translates it into a note plus
// products.
type Receipt struct {
	Establishment Establishment
	IssuedAt      time.Time
	TotalValue    decimal.Decimal
	TotalTax      decimal.Decimal
	Items         []LineItem
}

// Establishment identifies the issuing store as printed on the receipt.
type Establishment struct {
	Name    string
	CNPJ    string
	Address string
}

// LineItem is one product row in receipt print order.
type LineItem struct {
	Code        string
	Description string
	Quantity    decimal.Decimal
	Unit        string
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
}

// ErrPageStructure means the fetched page did not carry the anchors the
// extractor relies on: either the key is invalid/expired or the viewer
// layout changed. Permanent for this attempt; callers must not retry.
var ErrPageStructure = errors.New("consultation page structure not recognized")

// FetchError is a transient transport failure: timeout, refused connection
// or a non-2xx status after the client exhausted its retries.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetching %s: unexpected status %d", e.URL, e.StatusCode)
}

func (e *FetchError) Unwrap() error { return e.Err }
