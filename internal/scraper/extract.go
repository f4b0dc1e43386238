package scraper

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
)

// Extractor turns a fetched consultation page into a Receipt. The viewer's
// HTML layout is not contractually stable, so every structural assumption
// lives behind this interface; a layout change means swapping or fixing one
// extractor, not the pipeline.
type Extractor interface {
	Extract(doc *goquery.Document) (*Receipt, error)
}

// paulistaExtractor reads the layout served by the SEFAZ-SP public viewer
// (ConsultaQRCode.aspx). Anchors are the labeled establishment block, the
// labeled totals block and the repeating item rows of table#tabResult.
type paulistaExtractor struct {
	logger *slog.Logger
}

// NewPaulistaExtractor returns the extractor for the SEFAZ-SP page layout.
func NewPaulistaExtractor(logger *slog.Logger) Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &paulistaExtractor{logger: logger}
}

var (
	reCNPJ     = regexp.MustCompile(`CNPJ:\s*([\d./-]+)`)
	reDateTime = regexp.MustCompile(`(\d{2}/\d{2}/\d{4})\s+(\d{2}:\d{2}:\d{2})`)
	reDigits   = regexp.MustCompile(`\d+`)
)

func (x *paulistaExtractor) Extract(doc *goquery.Document) (*Receipt, error) {
	// the viewer renders lookup failures inside div#erro instead of a
	// non-2xx status
	if msg := text(doc.Find("div#erro").First()); msg != "" {
		return nil, fmt.Errorf("%w: viewer reported %q", ErrPageStructure, msg)
	}

	rec := &Receipt{}
	rec.Establishment = x.establishment(doc)
	if rec.Establishment.Name == "" {
		return nil, fmt.Errorf("%w: establishment block not found", ErrPageStructure)
	}

	rec.IssuedAt = x.issuedAt(doc)

	items, err := x.items(doc)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		// a receipt with no line items is a broken page, not an empty sale
		return nil, fmt.Errorf("%w: no line items found", ErrPageStructure)
	}
	rec.Items = items

	rec.TotalValue = x.totalValue(doc, items)
	rec.TotalTax = x.totalTax(doc)
	return rec, nil
}

func (x *paulistaExtractor) establishment(doc *goquery.Document) Establishment {
	est := Establishment{
		Name: text(doc.Find("div.txtTopo").First()),
	}

	var addressParts []string
	doc.Find("div.text").Each(func(_ int, s *goquery.Selection) {
		t := text(s)
		if m := reCNPJ.FindStringSubmatch(t); m != nil {
			est.CNPJ = m[1]
			return
		}
		if len(t) > 10 {
			addressParts = append(addressParts, collapseSpaces(t))
		}
	})
	est.Address = strings.Join(addressParts, ", ")
	return est
}

func (x *paulistaExtractor) issuedAt(doc *goquery.Document) time.Time {
	issued := time.Time{}
	doc.Find("li, div, strong").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		t := s.Text()
		if !strings.Contains(t, "Emiss") {
			return true
		}
		if m := reDateTime.FindStringSubmatch(t); m != nil {
			if ts, err := time.Parse("02/01/2006 15:04:05", m[1]+" "+m[2]); err == nil {
				issued = ts
				return false
			}
		}
		return true
	})
	if issued.IsZero() {
		// tolerated: a handful of receipts omit the emission line
		x.logger.Warn("emission timestamp not found on page, using current time")
		issued = time.Now().UTC()
	}
	return issued
}

func (x *paulistaExtractor) items(doc *goquery.Document) ([]LineItem, error) {
	table := doc.Find("table#tabResult")
	if table.Length() == 0 {
		table = doc.Find("table[data-filter='true']")
	}
	if table.Length() == 0 {
		return nil, fmt.Errorf("%w: item table not found", ErrPageStructure)
	}

	var items []LineItem
	var rowErr error
	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		id, _ := row.Attr("id")
		if !strings.Contains(id, "Item") {
			return
		}
		item, err := x.item(row)
		if err != nil {
			if rowErr == nil {
				rowErr = fmt.Errorf("%w: item row %d: %v", ErrPageStructure, i, err)
			}
			return
		}
		items = append(items, item)
	})
	if rowErr != nil {
		return nil, rowErr
	}
	return items, nil
}

func (x *paulistaExtractor) item(row *goquery.Selection) (LineItem, error) {
	item := LineItem{
		Description: text(row.Find("span.txtTit").First()),
	}
	if item.Description == "" {
		return LineItem{}, fmt.Errorf("missing description")
	}

	if cod := text(row.Find("span.RCod").First()); cod != "" {
		item.Code = reDigits.FindString(cod)
	}

	if q, ok := findDecimalBR(stripLabel(text(row.Find("span.Rqtd").First()))); ok {
		item.Quantity = q
	} else {
		return LineItem{}, fmt.Errorf("missing quantity")
	}

	item.Unit = "UN"
	if un := text(row.Find("span.RUN").First()); un != "" {
		fields := strings.Fields(stripLabel(un))
		if len(fields) > 0 {
			item.Unit = fields[len(fields)-1]
		}
	}

	if p, ok := findDecimalBR(stripLabel(text(row.Find("span.RvlUnit").First()))); ok {
		item.UnitPrice = p
	} else {
		return LineItem{}, fmt.Errorf("missing unit price")
	}

	if tot, ok := findDecimalBR(text(row.Find("span.valor").First())); ok {
		item.LineTotal = tot
	} else {
		item.LineTotal = item.UnitPrice.Mul(item.Quantity)
	}
	return item, nil
}

func (x *paulistaExtractor) totalValue(doc *goquery.Document, items []LineItem) decimal.Decimal {
	if v, ok := x.labeledTotal(doc, "Valor a pagar"); ok {
		return v
	}
	if v, ok := x.labeledTotal(doc, "Valor total"); ok {
		return v
	}
	// totals line missing but items parsed: reconstruct from the lines
	x.logger.Warn("totals block not found on page, summing line items")
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.LineTotal)
	}
	return sum
}

func (x *paulistaExtractor) totalTax(doc *goquery.Document) decimal.Decimal {
	if v, ok := x.labeledTotal(doc, "Tributos Totais"); ok {
		return v
	}
	return decimal.Zero
}

// labeledTotal finds a totals line whose label contains needle and parses the
// numeric span next to it.
func (x *paulistaExtractor) labeledTotal(doc *goquery.Document, needle string) (v decimal.Decimal, ok bool) {
	doc.Find("#linhaTotal, div.linhaShade, div#totalNota div").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.Contains(s.Text(), needle) {
			return true
		}
		num := s.Find("span.totalNumb, span.txtMax").First()
		if num.Length() == 0 {
			return true
		}
		if d, found := findDecimalBR(text(num)); found {
			v, ok = d, true
			return false
		}
		return true
	})
	return v, ok
}

// stripLabel drops the "Qtde.:"/"UN:"/"Vl. Unit.:" prefix of an item field.
func stripLabel(s string) string {
	if i := strings.LastIndex(s, ":"); i >= 0 {
		return s[i+1:]
	}
	return s
}

func text(s *goquery.Selection) string {
	return strings.TrimSpace(s.Text())
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
