package media

import (
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

const inventorySheet = "Inventory"

var inventoryColumns = []string{
	"ID", "Filename", "Category", "MIME Type", "Size (bytes)", "Width", "Height",
	"Duration (s)", "Visibility", "Featured", "Uploaded By", "Caption", "URL", "Created At",
}

// WriteInventory renders assets as an xlsx workbook with one row per asset.
func WriteInventory(w io.Writer, rows []AssetResponse) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", inventorySheet); err != nil {
		return err
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})

	for i, col := range inventoryColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(inventorySheet, cell, col)
		f.SetCellStyle(inventorySheet, cell, cell, headerStyle)
	}

	for r, a := range rows {
		values := []any{
			a.ID,
			a.OriginalFilename,
			string(a.Category),
			a.MimeType,
			a.FileSizeBytes,
			intCell(a.Width),
			intCell(a.Height),
			intCell(a.DurationSeconds),
			string(a.Visibility),
			a.IsFeatured,
			stringCell(a.UploadedBy),
			a.Caption,
			a.URL,
			a.CreatedAt.Format(time.RFC3339),
		}
		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			f.SetCellValue(inventorySheet, cell, v)
		}
	}

	for i := range inventoryColumns {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(inventorySheet, col, col, 18)
	}

	return f.Write(w)
}

func intCell(v *int) any {
	if v == nil {
		return ""
	}
	return *v
}

func stringCell(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
