package reports

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"bitbucket.org/padaukbloom/flowershop_backend/config"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

type StockMovementRow struct {
	CreatedAt     time.Time       `json:"created_at"`
	Type          string          `json:"type"`
	MaterialName  string          `json:"material_name"`
	Unit          string          `json:"unit"`
	LotId         *int            `json:"lot_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	Reason        string          `json:"reason"`
	ReferenceType string          `json:"reference_type"`
	ReferenceId   int             `json:"reference_id"`
}

func getStockMovementReport(ctx context.Context, from *time.Time, to *time.Time) ([]*StockMovementRow, error) {

	sql := `
SELECT
	m.created_at,
	m.type,
	materials.name AS material_name,
	materials.unit,
	m.lot_id,
	m.quantity,
	m.reason,
	m.reference_type,
	m.reference_id
FROM
	inventory_movements m
	LEFT JOIN materials ON materials.id = m.material_id
WHERE
	(? IS NULL OR m.created_at >= ?)
	AND (? IS NULL OR m.created_at < ?)
ORDER BY
	m.created_at DESC
`

	var records []*StockMovementRow
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, from, from, to, to).Scan(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// ExportStockMovementExcel streams the movement audit log as an xlsx download.
func ExportStockMovementExcel(ctx context.Context, w http.ResponseWriter, from *time.Time, to *time.Time) error {

	data, err := getStockMovementReport(ctx, from, to)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	sheet := "Sheet1"

	// Add headers
	f.SetCellValue(sheet, "A1", "Date")
	f.SetCellValue(sheet, "B1", "Type")
	f.SetCellValue(sheet, "C1", "Material")
	f.SetCellValue(sheet, "D1", "Unit")
	f.SetCellValue(sheet, "E1", "Lot")
	f.SetCellValue(sheet, "F1", "Quantity")
	f.SetCellValue(sheet, "G1", "Reason")
	f.SetCellValue(sheet, "H1", "Reference")

	// Add data
	for i, d := range data {
		row := fmt.Sprint(i + 2)
		f.SetCellValue(sheet, "A"+row, d.CreatedAt.Format("2006-01-02 15:04:05"))
		f.SetCellValue(sheet, "B"+row, d.Type)
		f.SetCellValue(sheet, "C"+row, d.MaterialName)
		f.SetCellValue(sheet, "D"+row, d.Unit)
		if d.LotId != nil {
			f.SetCellValue(sheet, "E"+row, *d.LotId)
		}
		f.SetCellValue(sheet, "F"+row, d.Quantity.String())
		f.SetCellValue(sheet, "G"+row, d.Reason)
		f.SetCellValue(sheet, "H"+row, fmt.Sprintf("%s#%d", d.ReferenceType, d.ReferenceId))
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=stock-movements.xlsx")
	return f.Write(w)
}
