package engine

import (
	"context"
	"math/rand"
	"time"
)

// Timing holds every pause, poll budget and step size the engine uses
type Timing struct {
	ScanInterval    time.Duration `mapstructure:"scan_interval"`
	ScrollStep      int           `mapstructure:"scroll_step"`
	MaxIdleRounds   int           `mapstructure:"max_idle_rounds"`
	FormSettle      time.Duration `mapstructure:"form_settle"`
	PaginateSettle  time.Duration `mapstructure:"paginate_settle"`
	ResultsTimeout  time.Duration `mapstructure:"results_timeout"`
	ResultsPoll     time.Duration `mapstructure:"results_poll_interval"`
	ResultExtraWait time.Duration `mapstructure:"result_extra_wait"`

	CloseSettle         time.Duration `mapstructure:"close_settle"`
	TabPollAttempts     int           `mapstructure:"tab_poll_attempts"`
	TabPollInterval     time.Duration `mapstructure:"tab_poll_interval"`
	OfferSettleMin      time.Duration `mapstructure:"offer_settle_min"`
	OfferSettleMax      time.Duration `mapstructure:"offer_settle_max"`
	PaymentPollInterval time.Duration `mapstructure:"payment_poll_interval"`
	PaymentPollAttempts int           `mapstructure:"payment_poll_attempts"`

	FinalExtractionWait time.Duration `mapstructure:"final_extraction_wait"`
}

// DefaultTiming returns pacing tuned for a live rental search site
func DefaultTiming() Timing {
	return Timing{
		ScanInterval:    800 * time.Millisecond,
		ScrollStep:      600,
		MaxIdleRounds:   5,
		FormSettle:      500 * time.Millisecond,
		PaginateSettle:  3 * time.Second,
		ResultsTimeout:  45 * time.Second,
		ResultsPoll:     400 * time.Millisecond,
		ResultExtraWait: 3 * time.Second,

		CloseSettle:         500 * time.Millisecond,
		TabPollAttempts:     10,
		TabPollInterval:     time.Second,
		OfferSettleMin:      5 * time.Second,
		OfferSettleMax:      7 * time.Second,
		PaymentPollInterval: 2 * time.Second,
		PaymentPollAttempts: 10,

		FinalExtractionWait: 15 * time.Second,
	}
}

// withDefaults fills zero counts so a partially configured Timing stays bounded
func (t Timing) withDefaults() Timing {
	d := DefaultTiming()
	if t.MaxIdleRounds <= 0 {
		t.MaxIdleRounds = d.MaxIdleRounds
	}
	if t.ScrollStep <= 0 {
		t.ScrollStep = d.ScrollStep
	}
	if t.ResultsTimeout <= 0 {
		t.ResultsTimeout = d.ResultsTimeout
	}
	if t.TabPollAttempts <= 0 {
		t.TabPollAttempts = d.TabPollAttempts
	}
	if t.PaymentPollAttempts <= 0 {
		t.PaymentPollAttempts = d.PaymentPollAttempts
	}
	if t.OfferSettleMax < t.OfferSettleMin {
		t.OfferSettleMax = t.OfferSettleMin
	}
	return t
}

func (t Timing) offerSettle() time.Duration {
	span := t.OfferSettleMax - t.OfferSettleMin
	if span <= 0 {
		return t.OfferSettleMin
	}
	return t.OfferSettleMin + time.Duration(rand.Int63n(int64(span)))
}

// sleep suspends for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
