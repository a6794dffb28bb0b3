package scrape

import (
	"encoding/json"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"dealscout/logger"
)

// StructuredExtractor recovers products from embedded JSON-LD blocks typed
// Product, or ItemList entries whose items are typed Product.
type StructuredExtractor struct {
	log *logger.Logger
}

// NewStructuredExtractor creates a new structured-data extractor
func NewStructuredExtractor() *StructuredExtractor {
	return &StructuredExtractor{log: logger.ForComponent("structured")}
}

// Name returns the strategy name
func (e *StructuredExtractor) Name() string {
	return string(SourceStructured)
}

// Extract parses every JSON-LD script block in html. A block that fails to
// parse is skipped; the remaining blocks are still processed.
func (e *StructuredExtractor) Extract(html, baseURL string) []RawProduct {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		e.log.Debug().Str("url", baseURL).Err(err).Msg("HTML parse failed")
		return nil
	}

	var nodes []map[string]interface{}
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var data interface{}
		if err := json.Unmarshal([]byte(s.Text()), &data); err != nil {
			e.log.Debug().Str("url", baseURL).Err(err).Msg("skipping malformed JSON-LD block")
			return
		}

		blocks, ok := data.([]interface{})
		if !ok {
			blocks = []interface{}{data}
		}
		for _, b := range blocks {
			node, ok := b.(map[string]interface{})
			if !ok {
				continue
			}
			switch nodeType(node) {
			case "product":
				nodes = append(nodes, node)
			case "itemlist":
				elements, _ := node["itemListElement"].([]interface{})
				for _, el := range elements {
					entry, ok := el.(map[string]interface{})
					if !ok {
						continue
					}
					item, ok := entry["item"].(map[string]interface{})
					if !ok {
						item = entry
					}
					if nodeType(item) == "product" {
						nodes = append(nodes, item)
					}
				}
			}
		}
	})

	var products []RawProduct
	for _, node := range nodes {
		products = append(products, e.flatten(node, baseURL)...)
	}
	return products
}

// flatten maps one Product node into one RawProduct per offer. A product with
// no offers still yields a single record with unknown prices.
func (e *StructuredExtractor) flatten(node map[string]interface{}, baseURL string) []RawProduct {
	name := stringField(node, "name")
	if name == "" {
		name = stringField(node, "title")
	}

	brand := stringField(node, "brand")
	if brand == "" {
		if b, ok := node["brand"].(map[string]interface{}); ok {
			brand = stringField(b, "name")
		}
	}

	productURL := absoluteURL(stringField(node, "url"))
	if productURL == "" {
		productURL = absoluteURL(stringField(node, "@id"))
	}
	if productURL == "" {
		productURL = baseURL
	}

	image := stringField(node, "image")
	if imgs, ok := node["image"].([]interface{}); ok && len(imgs) > 0 {
		image, _ = imgs[0].(string)
	}

	offers := offerList(node["offers"])
	if len(offers) == 0 {
		return []RawProduct{{
			Name:   name,
			Brand:  brand,
			URL:    productURL,
			Image:  image,
			Source: SourceStructured,
		}}
	}

	products := make([]RawProduct, 0, len(offers))
	for _, offer := range offers {
		spec, _ := offer["priceSpecification"].(map[string]interface{})

		currency := stringField(offer, "priceCurrency")
		if currency == "" && spec != nil {
			currency = stringField(spec, "priceCurrency")
		}

		// A site exposing only a flat price populates both sides, which reads
		// as a 0% discount rather than a missing value.
		listPrice := firstPrice(fieldOf(spec, "price"), offer["highPrice"], offer["price"])
		salePrice := firstPrice(offer["lowPrice"], offer["salePrice"], offer["price"])

		products = append(products, RawProduct{
			Name:         name,
			Brand:        brand,
			URL:          productURL,
			Image:        image,
			Currency:     currency,
			ListPrice:    listPrice,
			SalePrice:    salePrice,
			Availability: stringField(offer, "availability"),
			Source:       SourceStructured,
		})
	}
	return products
}

// nodeType returns the node's declared @type, lowercased
func nodeType(node map[string]interface{}) string {
	t, _ := node["@type"].(string)
	return strings.ToLower(t)
}

func stringField(node map[string]interface{}, key string) string {
	s, _ := node[key].(string)
	return s
}

func fieldOf(node map[string]interface{}, key string) interface{} {
	if node == nil {
		return nil
	}
	return node[key]
}

// offerList expands the offers field, which may be a single object or a list
func offerList(v interface{}) []map[string]interface{} {
	switch offers := v.(type) {
	case map[string]interface{}:
		return []map[string]interface{}{offers}
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(offers))
		for _, o := range offers {
			if m, ok := o.(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

// firstPrice reads candidates in preference order: the first one present wins
// and its parse result stands, even when that result is unknown.
func firstPrice(candidates ...interface{}) *float64 {
	for _, c := range candidates {
		if c == nil {
			continue
		}
		if s, ok := c.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		return parsePrice(c)
	}
	return nil
}

// parsePrice accepts JSON numbers and numeric strings; anything else, or a
// negative or non-finite value, is unknown
func parsePrice(v interface{}) *float64 {
	var n float64
	switch val := v.(type) {
	case float64:
		n = val
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil
		}
		n = parsed
	default:
		return nil
	}
	if math.IsNaN(n) || math.IsInf(n, 0) || n < 0 {
		return nil
	}
	return &n
}

// absoluteURL returns the normalized URL when raw parses as absolute, else ""
func absoluteURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		return ""
	}
	return u.String()
}
