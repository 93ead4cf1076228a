// Package report renders occupancy data into spreadsheets for front-desk
// planning.
package report

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/iliyamo/hostel-bed-holds/internal/model"
)

// MaxNights bounds an export to about three months.
const MaxNights = 93

// SheetName is the name of the only sheet in the workbook.
const SheetName = "Occupancy"

// ErrRangeTooLong is returned for ranges longer than MaxNights.
var ErrRangeTooLong = errors.New("export range too long")

// OccupancyWorkbook renders one row per room and one column per night, with
// occupied beds in each cell.  nightly comes from the availability
// calculator and holds one entry per night of dates.
func OccupancyWorkbook(inv *model.Inventory, dates model.DateRange, nightly map[string][]int) ([]byte, error) {
	nights := dates.Nights()
	if nights > MaxNights {
		return nil, fmt.Errorf("%w: %d nights, max %d", ErrRangeTooLong, nights, MaxNights)
	}

	f := excelize.NewFile()
	index, err := f.NewSheet(SheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}
	fullStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#F8D7DA"}, Pattern: 1},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create full style: %w", err)
	}

	headers := []any{"Room", "Category", "Capacity"}
	for d := dates.CheckIn; d.Before(dates.CheckOut); d = d.AddDate(0, 0, 1) {
		headers = append(headers, d.Format(model.DateLayout))
	}
	if err := f.SetSheetRow(SheetName, "A1", &headers); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := f.SetCellStyle(SheetName, "A1", last, headerStyle); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set header style: %w", err)
	}
	if err := f.SetColWidth(SheetName, "A", "A", 16); err != nil {
		f.Close()
		return nil, err
	}

	for i, room := range inv.Rooms() {
		row := i + 2
		values := []any{room.ID, string(room.Category), room.Capacity}
		counts := nightly[room.ID]
		for n := 0; n < nights; n++ {
			v := 0
			if n < len(counts) {
				v = counts[n]
			}
			values = append(values, v)
		}
		start, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetSheetRow(SheetName, start, &values); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write row %d: %w", row, err)
		}
		for n, v := range counts {
			if n >= nights || v < room.Capacity {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(n+4, row)
			if err != nil {
				f.Close()
				return nil, err
			}
			if err := f.SetCellStyle(SheetName, cell, cell, fullStyle); err != nil {
				f.Close()
				return nil, err
			}
		}
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		XSplit:      3,
		YSplit:      1,
		TopLeftCell: "D2",
		ActivePane:  "bottomRight",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}
