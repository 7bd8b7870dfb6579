package browser

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const resultsHTML = `<html><body>
<div data-test-id="virtuoso-list">
  <div class="SearchCar-Wrapper" data-rh-id="c1">
    <div class="SearchCar-CarName"><h4>Kia Rio  or similar</h4></div>
    <div class="SearchCar-SupplierName">Avis</div>
    <div class="SearchCar-Price">A$ 123.45</div>
    <a class="SearchCar-CtaBtn" href="/offer/abc123?sid=1">View deal</a>
  </div>
  <div class="SearchCar-Wrapper">
    <span class="CarTitle-Name">Toyota Corolla</span>
    <div class="Price-Value">$99</div>
    <button class="SearchCar-CtaBtn">View deal</button>
  </div>
  <div class="SearchCar-Wrapper"><div class="SearchCar-Price">$10</div></div>
</div>
</body></html>`

func TestParseCandidates(t *testing.T) {
	cands, err := ParseCandidates(resultsHTML, "https://www.discoverycars.com/search", DefaultProfile())
	require.NoError(t, err)
	require.Len(t, cands, 2)

	first := cands[0]
	require.Equal(t, "c1", first.ID)
	require.Equal(t, "Kia Rio or similar", first.FullName)
	require.Equal(t, "Avis", first.Company)
	require.Equal(t, "A$ 123.45", first.PriceText)
	require.True(t, first.HasDetail)
	require.Equal(t, "https://www.discoverycars.com/offer/abc123?sid=1", first.DetailURL)

	second := cands[1]
	require.Equal(t, "Toyota Corolla", second.FullName)
	require.Empty(t, second.Company)
	require.Equal(t, "$99", second.PriceText)
	require.True(t, second.HasDetail)
	require.Empty(t, second.DetailURL)
	require.NotEmpty(t, second.ID)
}

const offerHTML = `<html><body>
<div class="OfferPriceBreakdown">
  <div class="OfferPriceBreakdown-Main">
    <span class="Typography-size_2sm">Pay now</span>
    <div class="OfferPriceBreakdown-Extra">
      <span class="Typography-size_2sm OfferPriceBreakdown-ExtraTitle">Deposit</span>
      <span class="Typography-size_2sm">A$ 45.20</span>
    </div>
  </div>
  <div class="OfferPriceBreakdown-Main">
    <span class="Typography-size_2sm">Pay at pick-up</span>
    <div class="OfferPriceBreakdown-Extra">
      <span class="Typography-size_2sm">A$ 310.00</span>
    </div>
  </div>
  <div class="OfferPriceBreakdown-Main">
    <span class="Typography-size_2sm">Taxes</span>
  </div>
</div>
</body></html>`

func TestParsePayment(t *testing.T) {
	data, err := ParsePayment(offerHTML, DefaultProfile())
	require.NoError(t, err)
	require.Equal(t, "A$ 45.20", data.PayNow)
	require.Equal(t, "A$ 310.00", data.PayAtPickup)
}

func TestParsePaymentMissingBreakdown(t *testing.T) {
	data, err := ParsePayment("<html><body><p>loading</p></body></html>", DefaultProfile())
	require.NoError(t, err)
	require.True(t, data.Empty())
}
