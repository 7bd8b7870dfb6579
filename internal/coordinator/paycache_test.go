package coordinator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/rentharvest/pkg/models"
)

func TestAliasResolverOrder(t *testing.T) {
	r := NewAliasResolver("")
	exact := models.PaymentData{PayNow: "exact"}
	byID := models.PaymentData{PayNow: "id"}

	r.Store("https://site/offer/abc?ref=1", byID)
	r.Store("https://site/offer/abc", exact)

	data, tier := r.Lookup("https://site/offer/abc")
	require.Equal(t, TierExact, tier)
	require.Equal(t, exact, data)

	// identifier key was overwritten by the later store
	data, tier = r.Lookup("https://other/offer/abc#top")
	require.Equal(t, TierIdentifier, tier)
	require.Equal(t, exact, data)
}

func TestAliasResolverFuzzy(t *testing.T) {
	r := NewAliasResolver(`/offer/([^/?#]+)`)
	data := models.PaymentData{PayAtPickup: "$50"}
	r.Store("https://site/offer/abc123-long?x=1", data)

	got, tier := r.Lookup("https://site/offer/abc123-long")
	require.Equal(t, TierIdentifier, tier)
	require.Equal(t, data, got)

	got, tier = r.Lookup("https://site/offer/abc123")
	require.Equal(t, TierFuzzy, tier)
	require.Equal(t, data, got)

	got, tier = r.Lookup("https://site/search")
	require.Equal(t, TierMiss, tier)
	require.True(t, got.Empty())
}

func TestAliasResolverClear(t *testing.T) {
	r := NewAliasResolver("")
	r.Store("https://site/offer/a", models.PaymentData{PayNow: "$1"})
	require.Equal(t, 2, r.Len())

	r.Clear()
	require.Zero(t, r.Len())
	_, tier := r.Lookup("https://site/offer/a")
	require.Equal(t, TierMiss, tier)
}

func TestAliasResolverInvalidPatternFallsBack(t *testing.T) {
	r := NewAliasResolver("no-group")
	require.Equal(t, "xyz", r.Identifier("https://site/offer/xyz?q"))
}
