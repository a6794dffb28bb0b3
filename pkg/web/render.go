// Package web renders the static deals dashboard from a finalized dataset.
package web

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"time"

	"dealscout/internal/scrape"
)

//go:embed templates
var templatesFS embed.FS

// DashboardContext carries everything the dashboard template needs
type DashboardContext struct {
	Title       string
	GeneratedAt time.Time
	Deals       []scrape.CanonicalDeal
}

func (c DashboardContext) FormattedGeneratedAt() string {
	return c.GeneratedAt.UTC().Format("2006-01-02T15:04:05 MST")
}

// AverageDiscount returns the mean discount across all deals
func (c DashboardContext) AverageDiscount() float64 {
	if len(c.Deals) == 0 {
		return 0
	}
	var sum float64
	for _, d := range c.Deals {
		sum += d.DiscountPct
	}
	return sum / float64(len(c.Deals))
}

// MerchantCount returns the number of distinct merchants
func (c DashboardContext) MerchantCount() int {
	merchants := make(map[string]struct{})
	for _, d := range c.Deals {
		merchants[d.Merchant] = struct{}{}
	}
	return len(merchants)
}

// DealsJSON exposes the deal rows to the in-page chart scripts
func (c DashboardContext) DealsJSON() (template.JS, error) {
	deals := c.Deals
	if deals == nil {
		deals = []scrape.CanonicalDeal{}
	}
	data, err := json.Marshal(deals)
	if err != nil {
		return "", err
	}
	return template.JS(data), nil
}

var templateFuncs = template.FuncMap{
	"pct": func(v float64) string {
		return fmt.Sprintf("%.1f%%", v*100)
	},
	"price": func(p *float64) string {
		if p == nil {
			return "-"
		}
		return fmt.Sprintf("$%.2f", *p)
	},
}

// RenderDashboard writes the dashboard HTML for the given context
func RenderDashboard(w io.Writer, c DashboardContext) error {
	t, err := template.New("dashboard.html.tpl").Funcs(templateFuncs).ParseFS(templatesFS, "templates/dashboard.html.tpl")
	if err != nil {
		return err
	}
	return t.Execute(w, c)
}
