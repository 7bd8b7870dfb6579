package models

import (
	"strings"
	"time"
)

// TabRecord points at the most recently created secondary tab
type TabRecord struct {
	TabID     string    `json:"tabId"`
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"`
}

// PaymentData is the breakdown scraped from a detail page
type PaymentData struct {
	PayNow      string `json:"payNow"`
	PayAtPickup string `json:"payAtPickup"`
}

// Empty reports whether neither field carries a value
func (p PaymentData) Empty() bool {
	return strings.TrimSpace(p.PayNow) == "" && strings.TrimSpace(p.PayAtPickup) == ""
}
