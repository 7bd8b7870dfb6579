// Package export renders collected items as CSV files and console tables.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/shehryarbajwa/rentharvest/pkg/models"
)

// Header is the fixed column set of every export
var Header = []string{
	"car_name_full",
	"car_name_base",
	"company",
	"price_value",
	"avg_daily_price",
	"pickup_date",
	"dropoff_date",
	"rental_days",
	"category_code",
	"category_group",
	"pay_now",
	"pay_at_pickup",
	"offer_url",
}

func row(it models.ItemRecord) table.Row {
	return table.Row{
		it.FullName,
		it.BaseName,
		it.Company,
		it.Price,
		it.AvgDailyPrice,
		it.PickupDate.String(),
		it.DropoffDate.String(),
		it.RentalDays,
		it.CategoryCode,
		it.CategoryGroup,
		it.PayNow,
		it.PayAtPickup,
		it.DetailURL,
	}
}

func record(it models.ItemRecord) []string {
	return []string{
		it.FullName,
		it.BaseName,
		it.Company,
		formatAmount(it.Price),
		formatAmount(it.AvgDailyPrice),
		it.PickupDate.String(),
		it.DropoffDate.String(),
		strconv.Itoa(it.RentalDays),
		it.CategoryCode,
		it.CategoryGroup,
		it.PayNow,
		it.PayAtPickup,
		it.DetailURL,
	}
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func newWriter(items []models.ItemRecord) table.Writer {
	header := make(table.Row, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	t := table.NewWriter()
	t.AppendHeader(header)
	for _, it := range items {
		t.AppendRow(row(it))
	}
	return t
}

// WriteCSV writes items as RFC 4180 CSV with a header row
func WriteCSV(w io.Writer, items []models.ItemRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, it := range items {
		if err := cw.Write(record(it)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTable renders items as a console table
func WriteTable(w io.Writer, items []models.ItemRecord) {
	t := newWriter(items)
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendFooter(table.Row{"", "", "", "", "", "", "", "", "", "", "", "rows", len(items)})
	t.Render()
}

// FileExporter writes one CSV per finished session into Dir
type FileExporter struct {
	Dir    string
	Site   string
	Logger *slog.Logger
	now    func() time.Time
}

func NewFileExporter(dir, site string, logger *slog.Logger) *FileExporter {
	if logger == nil {
		logger = slog.Default()
	}
	if site == "" {
		site = "site"
	}
	return &FileExporter{Dir: dir, Site: site, Logger: logger, now: time.Now}
}

// Path returns the file name used for an export at t
func (e *FileExporter) Path(t time.Time) string {
	return filepath.Join(e.Dir, fmt.Sprintf("cars_%s_%d.csv", e.Site, t.UnixMilli()))
}

func (e *FileExporter) Export(_ context.Context, items []models.ItemRecord) error {
	if err := os.MkdirAll(e.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	path := e.Path(e.now())

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	if err := WriteCSV(f, items); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	e.Logger.Info("export written", "path", path, "rows", len(items))
	return f.Close()
}
