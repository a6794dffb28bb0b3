package scrape

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"dealscout/helpers"
	"dealscout/logger"
)

// maxCandidates bounds per-page work for the heuristic pass
const maxCandidates = 400

var (
	// Common product-container conventions, tried before any text scanning
	containerSelectors = []string{
		".product", ".product-item", ".product-card", ".item", ".product-tile",
		"[data-product]", "[data-item]", ".grid-item", ".product-grid-item",
	}

	// Vocabulary that marks an element as sale-related
	saleVocabulary = []string{"% off", "sale", "clearance", "was", "reg.", "compare at"}

	// Title-like selectors in priority order
	titleSelectors = []string{
		"h3", "h2", ".product-title", ".title", ".product-name", "[data-title]", ".card-title",
		".product-item__title", ".product-card__title", "a[href*='/products/']",
	}

	groupedPriceSelector = ".price, .product-price, .money, [class*='price']"

	currentPriceSelectors = []string{".price", ".sale", ".discount", ".now", ".current-price", "[data-price]", ".money"}
	wasPriceSelectors     = []string{".was", ".compare-at", ".list-price", ".original-price", ".compare-price"}

	priceTokenRe  = regexp.MustCompile(`\$[\d,]+\.?\d*`)
	loosePriceRe  = regexp.MustCompile(`\$?[\d,]+\.?\d*`)
	saleMarkupSel = ".product-label--on-sale, [class*='sale']"
)

// HeuristicExtractor mines the DOM for product records using common
// e-commerce markup conventions. It runs when structured data is absent or
// sparse.
type HeuristicExtractor struct {
	log *logger.Logger
}

// NewHeuristicExtractor creates a new heuristic extractor
func NewHeuristicExtractor() *HeuristicExtractor {
	return &HeuristicExtractor{log: logger.ForComponent("heuristic")}
}

// Name returns the strategy name
func (e *HeuristicExtractor) Name() string {
	return string(SourceHeuristic)
}

// Extract scans html for product-like containers and recovers name, URL,
// image and a list/sale price pair from each.
func (e *HeuristicExtractor) Extract(htmlText, baseURL string) []RawProduct {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlText))
	if err != nil {
		e.log.Debug().Str("url", baseURL).Err(err).Msg("HTML parse failed")
		return nil
	}

	base, baseErr := url.Parse(baseURL)

	candidates := e.selectCandidates(doc)
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}

	var products []RawProduct
	for _, candidate := range candidates {
		productURL := ""
		if base != nil && baseErr == nil {
			productURL = e.resolveURL(candidate, base)
		}

		name := e.resolveName(candidate, productURL)
		salePrice, listPrice := e.resolvePrices(candidate)

		if name == "" || productURL == "" || (salePrice == nil && listPrice == nil) {
			continue
		}

		products = append(products, RawProduct{
			Name:      name,
			URL:       productURL,
			Image:     e.resolveImage(candidate, base),
			Currency:  "USD",
			ListPrice: listPrice,
			SalePrice: salePrice,
			Source:    SourceHeuristic,
		})
	}
	return products
}

// selectCandidates unions matches of the known container selectors, falling
// back to scanning generic elements for sale vocabulary when none match
func (e *HeuristicExtractor) selectCandidates(doc *goquery.Document) []*goquery.Selection {
	seen := make(map[*html.Node]struct{})
	var candidates []*goquery.Selection

	add := func(s *goquery.Selection) {
		s.Each(func(_ int, el *goquery.Selection) {
			node := el.Get(0)
			if _, dup := seen[node]; dup {
				return
			}
			seen[node] = struct{}{}
			candidates = append(candidates, el)
		})
	}

	for _, selector := range containerSelectors {
		add(doc.Find(selector))
	}

	if len(candidates) == 0 {
		add(doc.Find("a,article,li,div").FilterFunction(func(_ int, el *goquery.Selection) bool {
			text := strings.ToLower(el.Text())
			for _, word := range saleVocabulary {
				if strings.Contains(text, word) {
					return true
				}
			}
			return false
		}))
	}
	return candidates
}

// resolveURL takes the first descendant or self anchor href, resolved against
// the page base. A candidate with no href at all yields ""; resolving an empty
// href would claim the listing page itself as the product URL.
func (e *HeuristicExtractor) resolveURL(candidate *goquery.Selection, base *url.URL) string {
	href, ok := candidate.Find("a").First().Attr("href")
	if !ok || href == "" {
		href, _ = candidate.Attr("href")
	}
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}

	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// resolveName tries the title-like selectors in order, then derives a name
// from the last URL path segment as a last resort
func (e *HeuristicExtractor) resolveName(candidate *goquery.Selection, productURL string) string {
	for _, selector := range titleSelectors {
		found := candidate.Find(selector).First()
		name := strings.TrimSpace(found.Text())
		if name == "" {
			name, _ = found.Attr("title")
		}
		if name == "" {
			name, _ = found.Attr("data-title")
		}
		if name != "" {
			return strings.TrimSpace(name)
		}
	}

	if productURL != "" {
		if u, err := url.Parse(productURL); err == nil {
			segments := strings.Split(strings.Trim(u.Path, "/"), "/")
			if last := segments[len(segments)-1]; last != "" {
				return helpers.TitleFromSlug(last)
			}
		}
	}
	return ""
}

// resolvePrices returns (sale, list). With two or more price tokens the
// minimum is the sale price and the maximum the list price: the markdown
// always appears lower, and showing two prices is itself evidence of a sale.
func (e *HeuristicExtractor) resolvePrices(candidate *goquery.Selection) (*float64, *float64) {
	priceText := candidate.Find(groupedPriceSelector).Text()
	tokens := priceTokenRe.FindAllString(priceText, -1)

	var salePrice, listPrice *float64
	switch {
	case len(tokens) >= 2:
		prices := make([]float64, 0, len(tokens))
		for _, tok := range tokens {
			if v, ok := parsePriceToken(tok); ok {
				prices = append(prices, v)
			}
		}
		if len(prices) >= 2 {
			lo, hi := prices[0], prices[0]
			for _, p := range prices[1:] {
				if p < lo {
					lo = p
				}
				if p > hi {
					hi = p
				}
			}
			salePrice, listPrice = Float(lo), Float(hi)
		} else if len(prices) == 1 {
			salePrice = Float(prices[0])
		}
	case len(tokens) == 1:
		if v, ok := parsePriceToken(tokens[0]); ok {
			if e.nearSaleMarkup(candidate, priceText) {
				salePrice = Float(v)
			} else {
				listPrice = Float(v)
			}
		}
	}

	if salePrice == nil && listPrice == nil {
		salePrice = firstSelectorPrice(candidate, currentPriceSelectors)
		listPrice = firstSelectorPrice(candidate, wasPriceSelectors)
	}
	return salePrice, listPrice
}

// nearSaleMarkup reports whether the grouped price text or the candidate's
// markup carries a sale indicator
func (e *HeuristicExtractor) nearSaleMarkup(candidate *goquery.Selection, priceText string) bool {
	if strings.Contains(strings.ToLower(priceText), "sale") {
		return true
	}
	return candidate.Find(saleMarkupSel).Length() > 0
}

func (e *HeuristicExtractor) resolveImage(candidate *goquery.Selection, base *url.URL) string {
	src, ok := candidate.Find("img").First().Attr("src")
	if !ok || src == "" || base == nil {
		return ""
	}
	ref, err := url.Parse(strings.TrimSpace(src))
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// firstSelectorPrice scans selectors individually and parses the first
// non-empty price text found
func firstSelectorPrice(candidate *goquery.Selection, selectors []string) *float64 {
	for _, selector := range selectors {
		text := strings.TrimSpace(candidate.Find(selector).First().Text())
		if text == "" {
			continue
		}
		if match := loosePriceRe.FindString(text); match != "" {
			if v, ok := parsePriceToken(match); ok {
				return Float(v)
			}
		}
		return nil
	}
	return nil
}

// parsePriceToken parses a dollar-amount token like "$1,299.99"
func parsePriceToken(token string) (float64, bool) {
	cleaned := strings.NewReplacer("$", "", ",", "").Replace(token)
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
