package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/vamojunto/nfce-tracker/internal/common"
	"github.com/vamojunto/nfce-tracker/internal/nfce"
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0"

// Scraper fetches and extracts NFC-e consultation pages. Transient network
// failures are retried with backoff inside the HTTP client; structural
// failures never are.
type Scraper struct {
	baseURL string
	client  *retryablehttp.Client
	extract Extractor
	logger  *slog.Logger
}

// New builds a Scraper with bounded timeouts and retries from config.
// A nil extractor selects the SEFAZ-SP layout.
func New(cfg common.ScraperConfig, extractor Extractor, logger *slog.Logger) *Scraper {
	if logger == nil {
		logger = slog.Default()
	}
	if extractor == nil {
		extractor = NewPaulistaExtractor(logger)
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = cfg.RetryWaitMin
	rc.RetryWaitMax = cfg.RetryWaitMax
	rc.Logger = nil
	rc.HTTPClient = &http.Client{
		Timeout: cfg.ReadTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: cfg.ConnectTimeout,
			}).DialContext,
			TLSHandshakeTimeout: cfg.ConnectTimeout,
		},
	}

	return &Scraper{
		baseURL: cfg.BaseURL,
		client:  rc,
		extract: extractor,
		logger:  logger,
	}
}

// ConsultURL builds the public consultation URL for an access key, in the
// same "key|version|env|digest" query format the printed QR code carries.
func (s *Scraper) ConsultURL(key nfce.AccessKey) string {
	return s.baseURL + "/NFCeConsultaPublica/Paginas/ConsultaQRCode.aspx?p=" +
		url.QueryEscape(key.String()+"|2|1|1|")
}

// Scrape fetches the consultation page for key and extracts the receipt.
// Returns *FetchError for transport failures and ErrPageStructure when the
// page does not carry the expected anchors.
func (s *Scraper) Scrape(ctx context.Context, key nfce.AccessKey) (*Receipt, error) {
	target := s.ConsultURL(key)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("consultation fetch failed", "state", key.StateCode(), "error", err)
		return nil, &FetchError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		s.logger.Warn("consultation returned unexpected status", "status", resp.StatusCode)
		return nil, &FetchError{URL: target, StatusCode: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageStructure, err)
	}

	rec, err := s.extract.Extract(doc)
	if err != nil {
		return nil, err
	}

	s.logger.Info("receipt scraped",
		"establishment", rec.Establishment.Name,
		"items", len(rec.Items),
		"total", rec.TotalValue.String(),
		"elapsed", time.Since(start))
	return rec, nil
}
