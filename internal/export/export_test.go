package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/rentharvest/pkg/models"
)

func sampleItems() []models.ItemRecord {
	pickup := models.NewDate(time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC))
	return []models.ItemRecord{
		{
			FullName: "Kia Rio or similar", BaseName: "Kia Rio", Company: "Avis",
			Price: 120.5, AvgDailyPrice: 60.25, PickupDate: pickup, DropoffDate: pickup.AddDays(2),
			RentalDays: 2, CategoryCode: "EDAR", CategoryGroup: "Picanto, Rio & MG3",
			PayNow: "$20", PayAtPickup: "$100.50", DetailURL: "https://site/offer/a",
		},
		{
			FullName: "Ford Ranger, dual cab", BaseName: "Ford Ranger", Company: "Unknown",
			Price: 99, AvgDailyPrice: 99, PickupDate: pickup, DropoffDate: pickup.AddDays(1),
			RentalDays: 1, CategoryCode: "OTHER", CategoryGroup: "Other",
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleItems()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	require.Len(t, records[0], len(Header))
	require.Equal(t, "car_name_full", strings.ToLower(records[0][0]))
	require.Equal(t, "offer_url", strings.ToLower(records[0][12]))

	first := records[1]
	require.Equal(t, "Kia Rio or similar", first[0])
	require.Equal(t, "120.5", first[3])
	require.Equal(t, "2026-10-20", first[5])
	require.Equal(t, "2026-10-22", first[6])
	require.Equal(t, "Picanto, Rio & MG3", first[9])
	require.Equal(t, "$100.50", first[11])

	second := records[2]
	require.Equal(t, "Ford Ranger, dual cab", second[0])
	require.Empty(t, second[10])
	require.Empty(t, second[12])
}

func TestWriteCSVQuotesCommasAndQuotes(t *testing.T) {
	pickup := models.NewDate(time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC))
	items := []models.ItemRecord{{
		FullName: `Kia "Rio", or similar`, BaseName: "Kia Rio", Company: "Hertz",
		Price: 1234, AvgDailyPrice: 617, PickupDate: pickup, DropoffDate: pickup.AddDays(2),
		RentalDays: 2, CategoryCode: "EDAR", CategoryGroup: "Picanto, Rio & MG3",
		PayNow: "$1,234.00", PayAtPickup: `$0 "due"`, DetailURL: "https://site/offer/a?x=1,2",
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, items))
	require.Contains(t, buf.String(), `"Kia ""Rio"", or similar"`)
	require.NotContains(t, buf.String(), `\,`)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)

	got := records[1]
	require.Equal(t, `Kia "Rio", or similar`, got[0])
	require.Equal(t, "1234", got[3])
	require.Equal(t, "Picanto, Rio & MG3", got[9])
	require.Equal(t, "$1,234.00", got[10])
	require.Equal(t, `$0 "due"`, got[11])
	require.Equal(t, "https://site/offer/a?x=1,2", got[12])
}

func TestFileExporter(t *testing.T) {
	dir := t.TempDir()
	e := NewFileExporter(dir, "discoverycars", nil)
	stamp := time.UnixMilli(1_700_000_000_000)
	e.now = func() time.Time { return stamp }

	require.NoError(t, e.Export(context.Background(), sampleItems()))

	raw, err := os.ReadFile(e.Path(stamp))
	require.NoError(t, err)
	require.Contains(t, string(raw), "Kia Rio")
	require.True(t, strings.HasSuffix(e.Path(stamp), "cars_discoverycars_1700000000000.csv"))
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	WriteTable(&buf, sampleItems())
	require.Contains(t, buf.String(), "Kia Rio")
	require.Contains(t, buf.String(), "╭")
}
