package coordinator

import (
	"regexp"
	"strings"

	"github.com/shehryarbajwa/rentharvest/pkg/models"
)

// DefaultIdentifierPattern extracts the offer id from a detail-page URL
const DefaultIdentifierPattern = `/offer/([^/?#]+)`

// Tier names which resolution step satisfied a lookup
type Tier string

const (
	TierExact      Tier = "exact"
	TierIdentifier Tier = "identifier"
	TierFuzzy      Tier = "fuzzy"
	TierMiss       Tier = "miss"
)

// PaymentResolver stores payment data and resolves lookups for a detail URL.
// Callers only see the getPayment contract, so the matching strategy can change
// without touching the session engine.
type PaymentResolver interface {
	Store(url string, data models.PaymentData)
	Lookup(url string) (models.PaymentData, Tier)
	Clear()
	Len() int
}

// AliasResolver stores each entry under the full URL and under the short
// identifier parsed from it, and falls back to a substring scan of keys.
type AliasResolver struct {
	identifier *regexp.Regexp
	entries    map[string]models.PaymentData
	order      []string
}

// NewAliasResolver compiles pattern, which must contain one capture group.
// An invalid or empty pattern falls back to DefaultIdentifierPattern.
func NewAliasResolver(pattern string) *AliasResolver {
	re, err := regexp.Compile(pattern)
	if pattern == "" || err != nil || re.NumSubexp() < 1 {
		re = regexp.MustCompile(DefaultIdentifierPattern)
	}
	return &AliasResolver{
		identifier: re,
		entries:    make(map[string]models.PaymentData),
	}
}

// Identifier returns the short id embedded in url, or "" when none is present
func (r *AliasResolver) Identifier(url string) string {
	m := r.identifier.FindStringSubmatch(url)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func (r *AliasResolver) Store(url string, data models.PaymentData) {
	r.put(url, data)
	if id := r.Identifier(url); id != "" {
		r.put(id, data)
	}
}

func (r *AliasResolver) put(key string, data models.PaymentData) {
	if _, ok := r.entries[key]; !ok {
		r.order = append(r.order, key)
	}
	r.entries[key] = data
}

func (r *AliasResolver) Lookup(url string) (models.PaymentData, Tier) {
	if data, ok := r.entries[url]; ok {
		return data, TierExact
	}

	id := r.Identifier(url)
	if id == "" {
		return models.PaymentData{}, TierMiss
	}
	if data, ok := r.entries[id]; ok {
		return data, TierIdentifier
	}

	// insertion order keeps the fuzzy pick deterministic
	for _, key := range r.order {
		if strings.Contains(key, id) {
			return r.entries[key], TierFuzzy
		}
	}
	return models.PaymentData{}, TierMiss
}

func (r *AliasResolver) Clear() {
	r.entries = make(map[string]models.PaymentData)
	r.order = nil
}

func (r *AliasResolver) Len() int {
	return len(r.entries)
}
