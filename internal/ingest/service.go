// Package ingest orchestrates the receipt pipeline: take a QR-code payload,
// validate the access key, deduplicate against what the user already has,
// scrape the public viewer and persist the note with its products.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/vamojunto/nfce-tracker/internal/common"
	"github.com/vamojunto/nfce-tracker/internal/entity"
	"github.com/vamojunto/nfce-tracker/internal/nfce"
	"github.com/vamojunto/nfce-tracker/internal/repository"
	"github.com/vamojunto/nfce-tracker/internal/scraper"
)

// Scraper is the slice of scraper.Scraper the pipeline needs.
type Scraper interface {
	Scrape(ctx context.Context, key nfce.AccessKey) (*scraper.Receipt, error)
}

// Request is one ingestion attempt. QRCode accepts the full QR-code URL or
// a bare 44-digit access key as printed on the receipt footer.
type Request struct {
	UserID uuid.UUID
	QRCode string
}

// Result reports the outcome of an ingestion. Created is false when the
// note already existed; the call still succeeds and returns the stored note.
type Result struct {
	Note    *entity.Note
	Created bool
}

// Service runs the ingestion pipeline. All network and database work flows
// through the injected collaborators; the service itself holds no state.
type Service struct {
	notes   repository.NoteRepository
	scraper Scraper
	logger  *slog.Logger
}

func NewService(notes repository.NoteRepository, sc Scraper, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{notes: notes, scraper: sc, logger: logger}
}

// Ingest processes one QR-code payload for a user.
//
// The access key is validated before any network call, so malformed input
// never reaches the viewer. A hash match in storage short-circuits the
// scrape entirely. When two concurrent attempts race past the pre-check,
// the unique constraint decides the winner and the loser returns the
// winner's note with Created=false.
func (s *Service) Ingest(ctx context.Context, req Request) (*Result, error) {
	code, err := nfce.ExtractCodeLoose(req.QRCode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}

	key, err := nfce.ParseAccessKey(code)
	if err != nil {
		return nil, fmt.Errorf("%w: access key: %v", common.ErrValidation, err)
	}

	hash := nfce.HashKey(key)
	log := s.logger.With("user_id", req.UserID, "state", key.StateCode())

	if existing, err := s.notes.FindByHash(ctx, req.UserID, string(hash)); err == nil {
		log.Info("ingestion skipped, note already stored", "note_id", existing.ID)
		return s.duplicateResult(ctx, req.UserID, existing.ID)
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	rec, err := s.scraper.Scrape(ctx, key)
	if err != nil {
		return nil, err
	}

	note, products := buildNote(req.UserID, hash, rec)
	created, err := s.notes.CreateWithProducts(ctx, note, products)
	if errors.Is(err, repository.ErrDuplicateNote) {
		// lost a race with a concurrent attempt for the same receipt
		winner, ferr := s.notes.FindByHash(ctx, req.UserID, string(hash))
		if ferr != nil {
			return nil, ferr
		}
		log.Info("ingestion raced, returning existing note", "note_id", winner.ID)
		return s.duplicateResult(ctx, req.UserID, winner.ID)
	}
	if err != nil {
		return nil, err
	}

	log.Info("note ingested",
		"note_id", created.ID,
		"establishment", created.EstablishmentName,
		"products", len(products),
		"total", created.TotalValue.String())
	return &Result{Note: created, Created: true}, nil
}

func (s *Service) duplicateResult(ctx context.Context, userID, noteID uuid.UUID) (*Result, error) {
	note, err := s.notes.GetByID(ctx, userID, noteID)
	if err != nil {
		return nil, err
	}
	return &Result{Note: note, Created: false}, nil
}

// buildNote translates a scraped receipt into the persistence shape. Line
// items keep their print order as the position column.
func buildNote(userID uuid.UUID, hash nfce.IdentityHash, rec *scraper.Receipt) (*entity.Note, []*entity.Product) {
	note := &entity.Note{
		UserID:               userID,
		AccessKeyHash:        string(hash),
		EstablishmentName:    rec.Establishment.Name,
		EstablishmentTaxID:   rec.Establishment.CNPJ,
		EstablishmentAddress: rec.Establishment.Address,
		IssuedAt:             rec.IssuedAt,
		TotalValue:           rec.TotalValue,
		TotalTax:             rec.TotalTax,
	}

	products := make([]*entity.Product, len(rec.Items))
	for i, it := range rec.Items {
		products[i] = &entity.Product{
			Position:    i,
			Code:        it.Code,
			Description: it.Description,
			Quantity:    it.Quantity,
			Unit:        it.Unit,
			UnitPrice:   it.UnitPrice,
			LineTotal:   it.LineTotal,
		}
	}
	return note, products
}
