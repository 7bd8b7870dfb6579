package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shehryarbajwa/rentharvest/pkg/models"
)

// CategoryRule assigns a rental category to names matching Pattern
type CategoryRule struct {
	Code    string `mapstructure:"code"`
	Group   string `mapstructure:"group"`
	Pattern string `mapstructure:"pattern"`
}

const (
	OtherCode  = "OTHER"
	OtherGroup = "Other"
)

// DefaultCategoryRules covers the common Australian rental fleet classes
var DefaultCategoryRules = []CategoryRule{
	{Code: "EDAR", Group: "Picanto, Rio & MG3", Pattern: `(picanto|rio|mg3|mirage|accent)`},
	{Code: "SEDAN", Group: "Cerato, Corolla & i30", Pattern: `(cerato|corolla|i30|civic|mazda3)`},
	{Code: "IDAR", Group: "Camry, Mazda6 & Accord", Pattern: `(camry|mazda6|accord|sonata)`},
	{Code: "IFAR", Group: "Seltos, Qashqai & CX-5", Pattern: `(seltos|qashqai|cx-5|tucson|rav4|sportage)`},
	{Code: "SFAR", Group: "Sorento, Santa Fe & CX-9", Pattern: `(sorento|santa\s*fe|cx-9|palisade|highlander)`},
}

type compiledRule struct {
	CategoryRule
	re *regexp.Regexp
}

// Classifier maps listing names to categories, first matching rule wins
type Classifier struct {
	rules []compiledRule
}

// NewClassifier compiles rules case-insensitively. Nil rules use DefaultCategoryRules.
func NewClassifier(rules []CategoryRule) (*Classifier, error) {
	if rules == nil {
		rules = DefaultCategoryRules
	}
	c := &Classifier{}
	for _, r := range rules {
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern for category %s: %w", r.Code, err)
		}
		c.rules = append(c.rules, compiledRule{CategoryRule: r, re: re})
	}
	return c, nil
}

// Classify returns the category code and group for a listing
func (c *Classifier) Classify(fullName, baseName string) (string, string) {
	text := fullName + " " + baseName
	for _, r := range c.rules {
		if r.re.MatchString(text) {
			return r.Code, r.Group
		}
	}
	return OtherCode, OtherGroup
}

// MatchTarget returns the first normalized target model contained in fullName,
// ignoring case and whitespace, or "" when none matches.
func MatchTarget(fullName string, targets []string) string {
	name := models.NormalizeModel(fullName)
	for _, t := range targets {
		if t != "" && strings.Contains(name, t) {
			return t
		}
	}
	return ""
}

// NormalizeText collapses runs of whitespace
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var (
	parenRe   = regexp.MustCompile(`\(.*?\)`)
	similarRe = regexp.MustCompile(`(?i)^(.+?)\s+similar`)
	excludeRe = regexp.MustCompile(`(?i)\b(automatic|manual|petrol|diesel|hybrid)\b`)
)

// BaseName reduces a listing title such as "Kia Rio or similar (Automatic)"
// to the model it names.
func BaseName(fullName string) string {
	full := NormalizeText(fullName)
	base, _, _ := strings.Cut(full, " or ")
	base = parenRe.ReplaceAllString(base, "")
	if m := similarRe.FindStringSubmatch(base); m != nil {
		base = m[1]
	}
	base = NormalizeText(excludeRe.ReplaceAllString(base, ""))
	if base == "" {
		return full
	}
	return base
}

var pricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$\s*(\d[\d,]*(?:\.\d+)?)`),
	regexp.MustCompile(`(?i)\bAUD\b\s*(\d[\d,]*(?:\.\d+)?)`),
	regexp.MustCompile(`(?i)\bA\$\s*(\d[\d,]*(?:\.\d+)?)`),
	regexp.MustCompile(`(\d[\d,]*(?:\.\d+)?)`),
}

// ParsePrice extracts the first amount from price text like "A$1,234.50 total"
func ParsePrice(text string) (float64, bool) {
	s := NormalizeText(text)
	if s == "" {
		return 0, false
	}
	for _, re := range pricePatterns {
		m := re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil {
			continue
		}
		return v, true
	}
	return 0, false
}
