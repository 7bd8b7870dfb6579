package models

import (
	"fmt"
	"strings"
	"time"
)

// DefaultMaxPerDate is the cap applied when a config leaves MaxPerDate unset
const DefaultMaxPerDate = 30

// Config holds the immutable parameters of one scraping run
type Config struct {
	Site         string   `json:"site,omitempty"`
	Location     string   `json:"location"`
	Durations    []int    `json:"durations"`
	TargetModels []string `json:"targetModels"`
	MaxPerDate   int      `json:"maxPerDate"`
}

// Normalize applies defaults and canonicalizes target model names
func (c Config) Normalize() Config {
	c.Location = strings.TrimSpace(c.Location)
	if c.MaxPerDate <= 0 {
		c.MaxPerDate = DefaultMaxPerDate
	}
	models := make([]string, 0, len(c.TargetModels))
	for _, m := range c.TargetModels {
		if m = NormalizeModel(m); m != "" {
			models = append(models, m)
		}
	}
	c.TargetModels = models
	return c
}

// Validate checks that the config describes at least one runnable round
func (c Config) Validate() error {
	if len(c.Durations) == 0 {
		return fmt.Errorf("at least one rental duration is required")
	}
	for _, d := range c.Durations {
		if d <= 0 {
			return fmt.Errorf("rental duration must be positive, got %d", d)
		}
	}
	return nil
}

// NormalizeModel lowercases a model name and strips all whitespace
func NormalizeModel(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), ""))
}

// Session is the authoritative record of one scraping run
type Session struct {
	RunID       string       `json:"runId"`
	Active      bool         `json:"active"`
	Config      Config       `json:"config"`
	Items       []ItemRecord `json:"items"`
	SeenKeys    []string     `json:"seenKeys"`
	CurrentItem *ItemRecord  `json:"currentItem,omitempty"`
	StartedAt   time.Time    `json:"startedAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`

	// Single-tab navigation flags. Persisted and reported so older page
	// scripts keep decoding the record, never set by the multi-tab flow.
	WaitingForOfferPage  bool `json:"waitingForOfferPage"`
	WaitingForSearchPage bool `json:"waitingForSearchPage"`
}

// Snapshot returns a copy of the session safe to hand to callers
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		Active:               s.Active,
		Config:               s.Config,
		Items:                append([]ItemRecord(nil), s.Items...),
		SeenKeys:             append([]string(nil), s.SeenKeys...),
		WaitingForOfferPage:  s.WaitingForOfferPage,
		WaitingForSearchPage: s.WaitingForSearchPage,
	}
}

// Snapshot is the read-only view returned by getState
type Snapshot struct {
	Active               bool         `json:"active"`
	Config               Config       `json:"config"`
	Items                []ItemRecord `json:"items"`
	SeenKeys             []string     `json:"seenKeys"`
	WaitingForOfferPage  bool         `json:"waitingForOfferPage"`
	WaitingForSearchPage bool         `json:"waitingForSearchPage"`
}
