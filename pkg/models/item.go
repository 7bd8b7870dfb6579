package models

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire format of calendar dates
const DateLayout = "2006-01-02"

// Date is a calendar date without a time of day
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar day in t's location
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return Date{t}, nil
}

// AddDays returns the date n days later
func (d Date) AddDays(n int) Date {
	return Date{d.Time.AddDate(0, 0, n)}
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ItemRecord is one discovered listing
type ItemRecord struct {
	FullName      string  `json:"carNameFull"`
	BaseName      string  `json:"carNameBase"`
	Company       string  `json:"company"`
	Price         float64 `json:"priceValue"`
	AvgDailyPrice float64 `json:"avgDailyPrice"`
	PickupDate    Date    `json:"pickupDate"`
	DropoffDate   Date    `json:"dropoffDate"`
	RentalDays    int     `json:"rentalDays"`
	CategoryCode  string  `json:"categoryCode"`
	CategoryGroup string  `json:"categoryGroup"`
	DetailURL     string  `json:"offerUrl"`
	PayNow        string  `json:"payNow"`
	PayAtPickup   string  `json:"payAtPickup"`
	UniqueKey     string  `json:"uniqueKey"`
	MatchedModel  string  `json:"matchedModel,omitempty"`
}

// ComputeKey derives the dedup key from the identifying fields. Each field is
// length-prefixed before hashing so separators inside values cannot collide.
func (r ItemRecord) ComputeKey() string {
	h := sha1.New()
	for _, field := range []string{
		r.BaseName,
		r.Company,
		strconv.FormatFloat(r.Price, 'f', -1, 64),
		r.PickupDate.String(),
		r.DropoffDate.String(),
		r.CategoryCode,
	} {
		fmt.Fprintf(h, "%d:%s;", len(field), field)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// HasPayment reports whether either payment field was filled
func (r ItemRecord) HasPayment() bool {
	return strings.TrimSpace(r.PayNow) != "" || strings.TrimSpace(r.PayAtPickup) != ""
}

// Round2 rounds to two decimal places
func Round2(n float64) float64 {
	return math.Round(n*100) / 100
}
