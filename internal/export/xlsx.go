// Package export writes schedule data to spreadsheet and calendar formats.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"siteplan/internal/gantt"
)

const (
	SheetName    = "Schedule"
	firstDayCol  = 4
	headerRows   = 2
	weekendColor = "#D9D9D9"
	holidayColor = "#F4B183"
)

// WriteXLSX renders chart as a workbook with one "Schedule" sheet: a two-row
// date header followed by one row per bar, with the bar's days filled in the
// project colour and holding hours per day.
func WriteXLSX(w io.Writer, chart gantt.Chart) error {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(SheetName)
	if err != nil {
		return fmt.Errorf("new sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("delete default sheet: %w", err)
	}

	lastCol, _ := excelize.ColumnNumberToName(firstDayCol + len(chart.Days) - 1)
	dayCol, _ := excelize.ColumnNumberToName(firstDayCol)
	_ = f.SetColWidth(SheetName, "A", "A", 24)
	_ = f.SetColWidth(SheetName, "B", "C", 18)
	if len(chart.Days) > 0 {
		_ = f.SetColWidth(SheetName, dayCol, lastCol, 4)
	}

	header, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return err
	}
	weekend, err := fillStyle(f, weekendColor, true)
	if err != nil {
		return err
	}
	holiday, err := fillStyle(f, holidayColor, true)
	if err != nil {
		return err
	}

	for i, label := range []string{"Project", "Team", "Artisan"} {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(SheetName, cell, label)
		_ = f.SetCellStyle(SheetName, cell, cell, header)
	}
	for i, d := range chart.Days {
		dateCell, _ := excelize.CoordinatesToCellName(firstDayCol+i, 1)
		dayCell, _ := excelize.CoordinatesToCellName(firstDayCol+i, 2)
		_ = f.SetCellValue(SheetName, dateCell, d.Date[8:])
		_ = f.SetCellValue(SheetName, dayCell, d.Weekday)
		style := header
		switch {
		case d.Holiday:
			style = holiday
		case d.Weekend:
			style = weekend
		}
		_ = f.SetCellStyle(SheetName, dateCell, dayCell, style)
	}

	styles := map[string]int{}
	row := headerRows + 1
	for _, r := range chart.Rows {
		fill, ok := styles[r.Color]
		if !ok {
			if fill, err = fillStyle(f, r.Color, false); err != nil {
				return err
			}
			styles[r.Color] = fill
		}
		for _, b := range r.Bars {
			values := []any{projectLabel(r), r.Team, b.ArtisanName}
			for i, v := range values {
				cell, _ := excelize.CoordinatesToCellName(i+1, row)
				_ = f.SetCellValue(SheetName, cell, v)
			}
			for d := b.Offset; d < b.Offset+b.Span; d++ {
				cell, _ := excelize.CoordinatesToCellName(firstDayCol+d, row)
				_ = f.SetCellValue(SheetName, cell, b.HoursPerDay)
				_ = f.SetCellStyle(SheetName, cell, cell, fill)
			}
			row++
		}
	}

	if len(chart.Days) > 0 {
		_ = f.SetPanes(SheetName, &excelize.Panes{
			Freeze:      true,
			XSplit:      firstDayCol - 1,
			YSplit:      headerRows,
			TopLeftCell: fmt.Sprintf("%s%d", dayCol, headerRows+1),
			ActivePane:  "bottomRight",
		})
	}
	return f.Write(w)
}

func projectLabel(r gantt.Row) string {
	if r.JobNumber == "" {
		return r.ProjectName
	}
	return r.ProjectName + " (" + r.JobNumber + ")"
}

func fillStyle(f *excelize.File, color string, bold bool) (int, error) {
	return f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: bold},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{strings.ToUpper(color)}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
}
