package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/rentharvest/internal/bus"
	"github.com/shehryarbajwa/rentharvest/internal/config"
	"github.com/shehryarbajwa/rentharvest/internal/coordinator"
	"github.com/shehryarbajwa/rentharvest/pkg/models"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeHost stands in for the runner's Chrome
type fakeHost struct {
	mu        sync.Mutex
	urls      []string
	data      models.PaymentData
	err       error
	extracted []string
}

func (f *fakeHost) ExtractPayment(_ context.Context, _, url string) (models.PaymentData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extracted = append(f.extracted, url)
	return f.data, f.err
}

func (f *fakeHost) CloseTabs(_ context.Context, match func(string) bool) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.urls[:0]
	closed := 0
	for _, u := range f.urls {
		if match(u) {
			closed++
			continue
		}
		kept = append(kept, u)
	}
	f.urls = kept
	return closed, nil
}

func (f *fakeHost) extractions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.extracted...)
}

func relayConfig() config.CoordinatorConfig {
	return config.CoordinatorConfig{
		SecondaryPattern: coordinator.DefaultSecondaryPattern,
		ExtractDelay:     10 * time.Millisecond,
		MaxExtractions:   2,
	}
}

// remoteCoordinator serves a coordinator without browser hooks over the
// websocket bus, the way `harvest serve` does without a shared Chrome.
func remoteCoordinator(t *testing.T) (*coordinator.Coordinator, *bus.Client) {
	t.Helper()
	coord := coordinator.New(coordinator.Options{Logger: quietLogger()})
	t.Cleanup(coord.Close)

	srv := httptest.NewServer(bus.NewServer(coord, quietLogger()))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tr, err := bus.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), quietLogger())
	require.NoError(t, err)
	client := bus.NewClient(tr)
	t.Cleanup(func() { client.Close() })
	return coord, client
}

func TestTabRelayStoresPaymentOnRemoteCoordinator(t *testing.T) {
	ctx := context.Background()
	coord, client := remoteCoordinator(t)
	require.NoError(t, client.Start(ctx, models.Config{Location: "Perth", Durations: []int{3}}))

	host := &fakeHost{data: models.PaymentData{PayNow: "$20", PayAtPickup: "$100"}}
	relay := NewTabRelay(host, client, relayConfig(), quietLogger())

	relay.TabLoaded(ctx, "T1", "https://site/offer/abc?ref=list")
	relay.Wait()

	tab, err := client.MostRecentTab(ctx)
	require.NoError(t, err)
	require.NotNil(t, tab)
	require.Equal(t, "T1", tab.TabID)
	require.Equal(t, []string{"https://site/offer/abc?ref=list"}, host.extractions())

	data, err := client.GetPayment(ctx, "https://site/offer/abc")
	require.NoError(t, err)
	require.Equal(t, "https://site/offer/abc?ref=list", coord.MostRecentTab().URL)
	require.Equal(t, "$20", data.PayNow)
	require.Equal(t, "$100", data.PayAtPickup)
}

func TestTabRelayOnlyExtractsDetailPages(t *testing.T) {
	ctx := context.Background()
	_, client := remoteCoordinator(t)

	host := &fakeHost{data: models.PaymentData{PayNow: "$20"}}
	relay := NewTabRelay(host, client, relayConfig(), quietLogger())

	relay.TabLoaded(ctx, "T2", "https://site/search?page=2")
	relay.Wait()

	// requests are handled in arrival order, so the reply follows the event
	tab, err := client.MostRecentTab(ctx)
	require.NoError(t, err)
	require.Equal(t, "https://site/search?page=2", tab.URL)
	require.Empty(t, host.extractions())
}

func TestTabRelaySkipsEmptyAndFailedExtractions(t *testing.T) {
	ctx := context.Background()
	_, client := remoteCoordinator(t)

	empty := NewTabRelay(&fakeHost{}, client, relayConfig(), quietLogger())
	empty.TabLoaded(ctx, "T3", "https://site/offer/empty")
	empty.Wait()

	failing := NewTabRelay(&fakeHost{err: errors.New("target closed")}, client, relayConfig(), quietLogger())
	failing.TabLoaded(ctx, "T4", "https://site/offer/gone")
	failing.Wait()

	for _, url := range []string{"https://site/offer/empty", "https://site/offer/gone"} {
		data, err := client.GetPayment(ctx, url)
		require.NoError(t, err)
		require.True(t, data.Empty(), url)
	}
}

func TestTabRelayIgnoresCancelledRuns(t *testing.T) {
	coord, client := remoteCoordinator(t)
	host := &fakeHost{data: models.PaymentData{PayNow: "$20"}}
	relay := NewTabRelay(host, client, relayConfig(), quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	relay.TabLoaded(ctx, "T5", "https://site/offer/late")
	relay.Wait()

	require.Nil(t, coord.MostRecentTab())
	require.Empty(t, host.extractions())
}

func TestRelayedClientClosesLocalTabs(t *testing.T) {
	ctx := context.Background()
	_, client := remoteCoordinator(t)
	require.NoError(t, client.StorePayment(ctx, "https://site/offer/a", models.PaymentData{PayNow: "$5"}))

	host := &fakeHost{urls: []string{"https://site/offer/a", "https://site/offer/b", "https://site/search"}}
	rc := relayedClient{Client: client, relay: NewTabRelay(host, client, relayConfig(), quietLogger())}

	closed, err := rc.CloseTabs(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 2, closed)
	require.Equal(t, []string{"https://site/search"}, host.urls)

	data, err := rc.GetPayment(ctx, "https://site/offer/a")
	require.NoError(t, err)
	require.True(t, data.Empty())

	closed, err = rc.CloseTabs(ctx, "([")
	require.NoError(t, err)
	require.Zero(t, closed)
	require.Len(t, host.urls, 1)
}
