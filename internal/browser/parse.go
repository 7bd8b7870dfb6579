package browser

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/shehryarbajwa/rentharvest/internal/engine"
	"github.com/shehryarbajwa/rentharvest/pkg/models"
)

// cardIDAttr is stamped on each card by the page so it keeps its identity
// across scroll passes
const cardIDAttr = "data-rh-id"

var (
	payNowRe    = regexp.MustCompile(`(?i)pay\s*now`)
	payPickupRe = regexp.MustCompile(`(?i)pay\s*at\s*pick`)
)

// ParseCandidates reads the listing cards out of a results page snapshot.
// Relative detail links are resolved against base.
func ParseCandidates(html, base string, p SiteProfile) ([]engine.Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse results html: %w", err)
	}
	baseURL, _ := url.Parse(base)

	var out []engine.Candidate
	doc.Find(p.Card).Each(func(_ int, card *goquery.Selection) {
		c := engine.Candidate{
			FullName:  firstText(card, p.CardName),
			Company:   firstText(card, p.CardCompany),
			PriceText: firstText(card, p.CardPrice),
		}
		if c.FullName == "" {
			return
		}

		if ctl := card.Find(p.DetailControl).First(); ctl.Length() > 0 {
			c.HasDetail = true
			if href, ok := ctl.Attr("href"); ok {
				c.DetailURL = resolveURL(baseURL, href)
			}
		}

		if id, ok := card.Attr(cardIDAttr); ok && id != "" {
			c.ID = id
		} else {
			c.ID = strings.Join([]string{c.FullName, c.Company, c.PriceText, c.DetailURL}, "|")
		}
		out = append(out, c)
	})
	return out, nil
}

// ParsePayment reads the pay-now and pay-at-pickup amounts from a detail page
func ParsePayment(html string, p SiteProfile) (models.PaymentData, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return models.PaymentData{}, fmt.Errorf("failed to parse detail html: %w", err)
	}

	var data models.PaymentData
	doc.Find(p.PriceBreakdown).Find(p.BreakdownSection).Each(func(_ int, section *goquery.Selection) {
		label := engine.NormalizeText(section.Find(p.PriceText).First().Text())
		var dst *string
		switch {
		case payNowRe.MatchString(label):
			dst = &data.PayNow
		case payPickupRe.MatchString(label):
			dst = &data.PayAtPickup
		default:
			return
		}

		prices := section.Find(p.BreakdownExtra).Find(p.PriceText)
		if p.BreakdownTitle != "" {
			prices = prices.Not(p.BreakdownTitle)
		}
		if amount := engine.NormalizeText(prices.First().Text()); amount != "" {
			*dst = amount
		}
	})
	return data, nil
}

func firstText(s *goquery.Selection, selectors []string) string {
	for _, sel := range selectors {
		if text := engine.NormalizeText(s.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func resolveURL(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}
