package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/rentharvest/pkg/models"
)

func TestClientAgainstServer(t *testing.T) {
	s := newTestServer(t, nil)
	c := NewClient(s.URL+"/", "cli-test")
	ctx := context.Background()

	require.NoError(t, c.Start(ctx, models.Config{Site: "dc", Location: "Perth", Durations: []int{1}}))

	s.coord.Update(ctx, models.UpdateRequest{
		Items:    []models.ItemRecord{{FullName: "Toyota Camry", BaseName: "Toyota Camry", Company: "Budget", Price: 210}},
		SeenKeys: []string{"k"},
	})
	s.coord.StorePayment("https://site/offer/x", models.PaymentData{PayAtPickup: "$210"})

	snap, err := c.Status(ctx)
	require.NoError(t, err)
	require.True(t, snap.Active)
	require.Len(t, snap.Items, 1)

	data, err := c.Payment(ctx, "https://site/offer/x")
	require.NoError(t, err)
	require.Equal(t, "$210", data.PayAtPickup)

	raw, err := c.ExportCSV(ctx)
	require.NoError(t, err)
	rows, err := csv.NewReader(bytes.NewReader(raw)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)

	closed, err := c.CloseTabs(ctx, "")
	require.NoError(t, err)
	require.Zero(t, closed)

	items, err := c.Stop(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestClientSurfacesHTTPErrors(t *testing.T) {
	s := newTestServer(t, nil)
	err := NewClient(s.URL, "").Start(context.Background(), models.Config{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "400")
}
