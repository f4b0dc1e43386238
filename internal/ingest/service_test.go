package ingest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/vamojunto/nfce-tracker/internal/common"
	"github.com/vamojunto/nfce-tracker/internal/entity"
	"github.com/vamojunto/nfce-tracker/internal/nfce"
	"github.com/vamojunto/nfce-tracker/internal/repository"
	"github.com/vamojunto/nfce-tracker/internal/scraper"
)

const (
	validKey = "35200114200166000187550010000000046550000042"
	validURL = "https://www.nfce.fazenda.sp.gov.br/NFCeConsultaPublica/Paginas/ConsultaQRCode.aspx?p=" +
		validKey + "%7C2%7C1%7C1%7Cabcdef"
)

// fakeScraper returns a canned receipt and counts how often the pipeline
// actually goes to the network.
type fakeScraper struct {
	calls   int
	receipt *scraper.Receipt
	err     error
}

func (f *fakeScraper) Scrape(_ context.Context, _ nfce.AccessKey) (*scraper.Receipt, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.receipt, nil
}

func sampleReceipt() *scraper.Receipt {
	return &scraper.Receipt{
		Establishment: scraper.Establishment{
			Name:    "MERCADO TESTE LTDA",
			CNPJ:    "14.200.166/0001-87",
			Address: "RUA DAS FLORES, 123, SAO PAULO, SP",
		},
		IssuedAt:   time.Date(2020, 1, 11, 14, 30, 25, 0, time.UTC),
		TotalValue: decimal.RequireFromString("45.90"),
		TotalTax:   decimal.RequireFromString("3.17"),
		Items: []scraper.LineItem{
			{Code: "00012345", Description: "ARROZ BRANCO 5KG",
				Quantity: decimal.NewFromInt(1), Unit: "UN",
				UnitPrice: decimal.RequireFromString("22.50"), LineTotal: decimal.RequireFromString("22.50")},
			{Description: "BANANA PRATA",
				Quantity: decimal.RequireFromString("0.325"), Unit: "KG",
				UnitPrice: decimal.RequireFromString("8.00"), LineTotal: decimal.RequireFromString("2.60")},
		},
	}
}

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	schema := []string{
		`CREATE TABLE users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			cpf TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE notes (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			access_key_hash TEXT NOT NULL,
			establishment_name TEXT NOT NULL,
			establishment_tax_id TEXT NOT NULL DEFAULT '',
			establishment_address TEXT NOT NULL DEFAULT '',
			issued_at TIMESTAMP NOT NULL,
			total_value TEXT NOT NULL,
			total_tax TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			UNIQUE (user_id, access_key_hash)
		)`,
		`CREATE TABLE products (
			id TEXT PRIMARY KEY,
			note_id TEXT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			code TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL,
			quantity TEXT NOT NULL,
			unit TEXT NOT NULL,
			unit_price TEXT NOT NULL,
			line_total TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			UNIQUE (note_id, position)
		)`,
	}
	for _, stmt := range schema {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return db
}

func newFixture(t *testing.T) (*Service, *fakeScraper, uuid.UUID) {
	t.Helper()
	db := newTestDB(t)
	users := repository.NewUserRepository(db, nil)
	notes := repository.NewNoteRepository(db, nil)

	u, err := users.Create(context.Background(), &entity.User{
		Name: "Maria Silva", Email: "maria@example.com", CPF: "111.444.777-35", PasswordHash: "x",
	})
	require.NoError(t, err)

	sc := &fakeScraper{receipt: sampleReceipt()}
	return NewService(notes, sc, nil), sc, u.ID
}

func TestIngestCreatesNote(t *testing.T) {
	svc, sc, userID := newFixture(t)

	res, err := svc.Ingest(context.Background(), Request{UserID: userID, QRCode: validURL})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, 1, sc.calls)

	assert.Equal(t, "MERCADO TESTE LTDA", res.Note.EstablishmentName)
	assert.Equal(t, string(nfce.HashKey(mustKey(t))), res.Note.AccessKeyHash)
	assert.True(t, res.Note.TotalValue.Equal(decimal.RequireFromString("45.90")))
	require.Len(t, res.Note.Products, 2)
	assert.Equal(t, 0, res.Note.Products[0].Position)
	assert.Equal(t, "BANANA PRATA", res.Note.Products[1].Description)
}

func TestIngestAcceptsBareKey(t *testing.T) {
	svc, _, userID := newFixture(t)

	res, err := svc.Ingest(context.Background(), Request{UserID: userID, QRCode: validKey})
	require.NoError(t, err)
	assert.True(t, res.Created)
}

func TestIngestIsIdempotent(t *testing.T) {
	svc, sc, userID := newFixture(t)
	ctx := context.Background()

	first, err := svc.Ingest(ctx, Request{UserID: userID, QRCode: validURL})
	require.NoError(t, err)
	require.True(t, first.Created)

	// same receipt again, this time as a bare key: same note, no scrape
	second, err := svc.Ingest(ctx, Request{UserID: userID, QRCode: validKey})
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Note.ID, second.Note.ID)
	assert.Len(t, second.Note.Products, 2)
	assert.Equal(t, 1, sc.calls)
}

func TestIngestRejectsBadInputBeforeNetwork(t *testing.T) {
	svc, sc, userID := newFixture(t)
	ctx := context.Background()

	cases := map[string]string{
		"not a url":        "completely broken",
		"no key parameter": "https://www.nfce.fazenda.sp.gov.br/qr?x=1",
		"short key":        validKey[:43],
		"bad checksum":     validKey[:43] + "9",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Ingest(ctx, Request{UserID: userID, QRCode: input})
			assert.ErrorIs(t, err, common.ErrValidation)
		})
	}
	assert.Zero(t, sc.calls)
}

func TestIngestPropagatesScrapeFailure(t *testing.T) {
	svc, sc, userID := newFixture(t)
	sc.err = &scraper.FetchError{URL: "x", StatusCode: 503}

	_, err := svc.Ingest(context.Background(), Request{UserID: userID, QRCode: validURL})
	var fe *scraper.FetchError
	require.ErrorAs(t, err, &fe)

	// nothing was persisted, so a later retry still creates the note
	sc.err = nil
	res, err := svc.Ingest(context.Background(), Request{UserID: userID, QRCode: validURL})
	require.NoError(t, err)
	assert.True(t, res.Created)
}

func TestIngestRaceFallsBackToWinner(t *testing.T) {
	db := newTestDB(t)
	users := repository.NewUserRepository(db, nil)
	notes := repository.NewNoteRepository(db, nil)
	ctx := context.Background()

	u, err := users.Create(ctx, &entity.User{
		Name: "Maria Silva", Email: "maria@example.com", CPF: "111.444.777-35", PasswordHash: "x",
	})
	require.NoError(t, err)

	sc := &fakeScraper{receipt: sampleReceipt()}
	svc := NewService(&racingRepo{NoteRepository: notes}, sc, nil)

	res, err := svc.Ingest(ctx, Request{UserID: u.ID, QRCode: validURL})
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, "MERCADO TESTE LTDA", res.Note.EstablishmentName)
	assert.Equal(t, 1, sc.calls)
}

// racingRepo simulates a concurrent attempt that wins between the dedup
// pre-check and the insert: the first FindByHash misses, then a competing
// insert lands before ours.
type racingRepo struct {
	repository.NoteRepository
	checked bool
}

func (r *racingRepo) FindByHash(ctx context.Context, userID uuid.UUID, hash string) (*entity.Note, error) {
	if !r.checked {
		r.checked = true
		return nil, common.ErrNotFound
	}
	return r.NoteRepository.FindByHash(ctx, userID, hash)
}

func (r *racingRepo) CreateWithProducts(ctx context.Context, note *entity.Note, products []*entity.Product) (*entity.Note, error) {
	// the competing request commits first
	competing, cp := cloneNoteAndProducts(note, products)
	if _, err := r.NoteRepository.CreateWithProducts(ctx, competing, cp); err != nil {
		return nil, err
	}
	return r.NoteRepository.CreateWithProducts(ctx, note, products)
}

func cloneNoteAndProducts(note *entity.Note, products []*entity.Product) (*entity.Note, []*entity.Product) {
	n := *note
	cp := make([]*entity.Product, len(products))
	for i, p := range products {
		c := *p
		cp[i] = &c
	}
	return &n, cp
}

func mustKey(t *testing.T) nfce.AccessKey {
	t.Helper()
	key, err := nfce.ParseAccessKey(validKey)
	require.NoError(t, err)
	return key
}
