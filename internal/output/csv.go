// Package output persists finalized datasets as delimited text. Every field
// is quoted so downstream consumers can split rows without guessing.
package output

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"dealscout/internal/scrape"
	"dealscout/logger"
	apperrors "dealscout/pkg/errors"
)

// Columns is the canonical header row, in output order
var Columns = []string{
	"merchant", "name", "brand", "url", "image", "currency",
	"list_price", "sale_price", "discount_pct", "availability", "source",
}

const (
	// DealsFile holds rows at or above the discount threshold
	DealsFile = "deals.csv"
	// AllProductsFile holds every row with a name and URL
	AllProductsFile = "all_products.csv"
)

// CSVWriter writes result tables into a directory
type CSVWriter struct {
	dir string
	log *logger.Logger
}

// NewCSVWriter creates a writer rooted at dir
func NewCSVWriter(dir string) *CSVWriter {
	return &CSVWriter{dir: dir, log: logger.ForComponent("output")}
}

// WriteResult writes both output tables
func (w *CSVWriter) WriteResult(res scrape.Result) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return apperrors.NewOutput("failed to create output directory", err)
	}

	if err := w.writeTable(DealsFile, res.Deals); err != nil {
		return err
	}
	if err := w.writeTable(AllProductsFile, res.AllProducts); err != nil {
		return err
	}

	w.log.Info().
		Str("dir", w.dir).
		Int("deals", len(res.Deals)).
		Int("all_products", len(res.AllProducts)).
		Msg("results written")
	return nil
}

func (w *CSVWriter) writeTable(name string, rows []scrape.CanonicalDeal) error {
	var b strings.Builder
	writeRecord(&b, Columns)
	for _, row := range rows {
		writeRecord(&b, []string{
			row.Merchant,
			row.Name,
			row.Brand,
			row.URL,
			row.Image,
			row.Currency,
			formatPrice(row.ListPrice),
			formatPrice(row.SalePrice),
			strconv.FormatFloat(row.DiscountPct, 'f', -1, 64),
			row.Availability,
			row.Source,
		})
	}

	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return apperrors.NewOutput("failed to write "+name, err)
	}
	return nil
}

// writeRecord appends one CSV row with every field quoted
func writeRecord(b *strings.Builder, fields []string) {
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(f, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteByte('\n')
}

// formatPrice renders a price, leaving the field empty when unknown
func formatPrice(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}
