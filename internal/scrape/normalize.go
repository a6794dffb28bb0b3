package scrape

import (
	"math"
	"net/url"
	"strings"
)

// CanonicalDeal is one normalized output row
type CanonicalDeal struct {
	Merchant     string   `json:"merchant"`
	Name         string   `json:"name"`
	Brand        string   `json:"brand"`
	URL          string   `json:"url"`
	Image        string   `json:"image"`
	Currency     string   `json:"currency"`
	ListPrice    *float64 `json:"list_price"`
	SalePrice    *float64 `json:"sale_price"`
	DiscountPct  float64  `json:"discount_pct"`
	Availability string   `json:"availability"`
	Source       string   `json:"source"`
}

// Result is the finalized dataset of one run
type Result struct {
	// Deals holds rows at or above the minimum discount
	Deals []CanonicalDeal
	// AllProducts holds every row with a name and URL, discounted or not
	AllProducts []CanonicalDeal
}

// Finalize maps raw records to canonical rows, deduplicates them and splits
// them into the deals and all-products sets. It never fails: a malformed
// record becomes a low-information row rather than a dropped one.
func Finalize(raw []RawProduct, minDiscount float64) Result {
	deduped := dedupe(normalize(raw))

	var res Result
	for _, row := range deduped {
		if row.Name == "" || row.URL == "" {
			continue
		}
		res.AllProducts = append(res.AllProducts, row)
		if row.DiscountPct >= minDiscount {
			res.Deals = append(res.Deals, row)
		}
	}
	return res
}

func normalize(raw []RawProduct) []CanonicalDeal {
	rows := make([]CanonicalDeal, 0, len(raw))
	for _, p := range raw {
		rows = append(rows, CanonicalDeal{
			Merchant:     merchantOf(p.URL),
			Name:         strings.TrimSpace(p.Name),
			Brand:        strings.TrimSpace(p.Brand),
			URL:          p.URL,
			Image:        p.Image,
			Currency:     p.Currency,
			ListPrice:    p.ListPrice,
			SalePrice:    p.SalePrice,
			DiscountPct:  DiscountPct(p.ListPrice, p.SalePrice),
			Availability: p.Availability,
			Source:       string(p.Source),
		})
	}
	return rows
}

// dedupe keeps the first occurrence of each (merchant, name, url) key
func dedupe(rows []CanonicalDeal) []CanonicalDeal {
	seen := make(map[string]struct{}, len(rows))
	out := make([]CanonicalDeal, 0, len(rows))
	for _, row := range rows {
		key := row.Merchant + "|" + row.Name + "|" + row.URL
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, row)
	}
	return out
}

// DiscountPct computes 1 - sale/list rounded to 4 decimals, and 0 whenever
// either price is missing, non-positive, non-finite, or sale exceeds list.
func DiscountPct(list, sale *float64) float64 {
	if list == nil || sale == nil {
		return 0
	}
	l, s := *list, *sale
	if math.IsNaN(l) || math.IsNaN(s) || math.IsInf(l, 0) || math.IsInf(s, 0) {
		return 0
	}
	if l <= 0 || s <= 0 || s > l {
		return 0
	}
	return math.Round((1-s/l)*10000) / 10000
}

// merchantOf extracts the host of a product URL with any leading "www."
// stripped; a malformed URL leaves the merchant empty
func merchantOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
