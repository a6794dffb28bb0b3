package output

import (
	"encoding/csv"
	"os"
	"strconv"

	"dealscout/internal/scrape"
	apperrors "dealscout/pkg/errors"
)

// ReadTable loads a previously written output table. Rows with an unexpected
// field count are skipped.
func ReadTable(path string) ([]scrape.CanonicalDeal, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewOutput("failed to open "+path, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, apperrors.NewOutput("failed to parse "+path, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	var rows []scrape.CanonicalDeal
	for _, rec := range records[1:] {
		if len(rec) != len(Columns) {
			continue
		}
		discount, _ := strconv.ParseFloat(rec[8], 64)
		rows = append(rows, scrape.CanonicalDeal{
			Merchant:     rec[0],
			Name:         rec[1],
			Brand:        rec[2],
			URL:          rec[3],
			Image:        rec[4],
			Currency:     rec[5],
			ListPrice:    parsePrice(rec[6]),
			SalePrice:    parsePrice(rec[7]),
			DiscountPct:  discount,
			Availability: rec[9],
			Source:       rec[10],
		})
	}
	return rows, nil
}

// parsePrice reads an optional price field; empty means unknown
func parsePrice(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return scrape.Float(v)
}
