package kpi

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/noah-isme/toko-sales/internal/pricing"
	"github.com/noah-isme/toko-sales/internal/user"
)

var exportHeader = []any{
	"Sale ID", "Sale Name", "Tier", "Orders", "Revenue",
	"Base Commission", "Bonus Commission", "Total Commission", "Calculated At",
}

// ExportCommissions renders the month's commissions as an XLSX workbook and
// returns its file name and bytes. The last row carries the column totals.
func (s *Service) ExportCommissions(ctx context.Context, year, month int) (string, []byte, error) {
	commissions, err := s.ListCommissions(ctx, year, month)
	if err != nil {
		return "", nil, err
	}
	sales, err := (user.Directory{Q: s.Store}).ListSales(ctx)
	if err != nil {
		return "", nil, err
	}
	names := make(map[int64]string, len(sales))
	for _, u := range sales {
		names[u.ID] = u.FullName
	}
	tiers, err := s.loadTiers(ctx, s.Store)
	if err != nil {
		return "", nil, err
	}
	tierNames := make(map[int64]string, len(tiers))
	for _, t := range tiers {
		tierNames[t.ID] = t.Name
	}

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()
	sheet := ExportSheetName(year, month)
	if err := xl.SetSheetName("Sheet1", sheet); err != nil {
		return "", nil, fmt.Errorf("name sheet: %w", err)
	}
	if err := xl.SetSheetRow(sheet, "A1", &exportHeader); err != nil {
		return "", nil, fmt.Errorf("write header: %w", err)
	}
	bold, err := xl.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return "", nil, fmt.Errorf("create style: %w", err)
	}
	if err := xl.SetCellStyle(sheet, "A1", "I1", bold); err != nil {
		return "", nil, fmt.Errorf("style header: %w", err)
	}

	var orders int
	var revenue, base, bonus, total pricing.Money
	for i, c := range commissions {
		tier := ""
		if c.TierID != nil {
			tier = tierNames[*c.TierID]
		}
		record := []any{
			c.SaleUserID, names[c.SaleUserID], tier, c.TotalOrders, c.TotalRevenue,
			c.BaseCommission, c.BonusCommission, c.TotalCommission, c.CalculatedAt.Format(time.RFC3339),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return "", nil, err
		}
		if err := xl.SetSheetRow(sheet, cell, &record); err != nil {
			return "", nil, fmt.Errorf("write row: %w", err)
		}
		orders += c.TotalOrders
		revenue = pricing.SafeAdd(revenue, c.TotalRevenue)
		base = pricing.SafeAdd(base, c.BaseCommission)
		bonus = pricing.SafeAdd(bonus, c.BonusCommission)
		total = pricing.SafeAdd(total, c.TotalCommission)
	}

	totalsRow := len(commissions) + 2
	cell, err := excelize.CoordinatesToCellName(1, totalsRow)
	if err != nil {
		return "", nil, err
	}
	totals := []any{"Total", "", "", orders, revenue, base, bonus, total, ""}
	if err := xl.SetSheetRow(sheet, cell, &totals); err != nil {
		return "", nil, fmt.Errorf("write totals: %w", err)
	}
	end, _ := excelize.CoordinatesToCellName(9, totalsRow)
	if err := xl.SetCellStyle(sheet, cell, end, bold); err != nil {
		return "", nil, fmt.Errorf("style totals: %w", err)
	}
	if err := xl.SetColWidth(sheet, "A", "I", 18); err != nil {
		return "", nil, fmt.Errorf("column width: %w", err)
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return "", nil, fmt.Errorf("write workbook: %w", err)
	}
	s.Logger.Info().Int("year", year).Int("month", month).Int("rows", len(commissions)).Msg("commissions exported")
	return fmt.Sprintf("commissions_%04d-%02d.xlsx", year, month), buf.Bytes(), nil
}

// ExportSheetName is the worksheet holding a month's commissions.
func ExportSheetName(year, month int) string {
	return fmt.Sprintf("Commissions %04d-%02d", year, month)
}
