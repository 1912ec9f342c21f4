// Package report renders per-area building lists as spreadsheets.
package report

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/denisok6893-rgb/estatebot/internal/domain"
)

type Kind string

const (
	Ready   Kind = "ready"
	OffPlan Kind = "off_plan"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case Ready:
		return Ready, nil
	case OffPlan, "offplan", "off-plan":
		return OffPlan, nil
	}
	return "", fmt.Errorf("unknown report kind %q: want ready or off_plan", s)
}

const (
	sheetName   = "Buildings"
	headerColor = "92D050"
	dateLayout  = "02-01-2006"
)

var header = []string{"Building name", "Construction end date", "Completion %", "How old is the building (years)"}

// File is one rendered workbook ready to be sent or served.
type File struct {
	Name string
	Kind Kind
	Data []byte
}

// SplitReady separates finished buildings from the ones still under construction.
func SplitReady(bs []domain.Building) (ready, offPlan []domain.Building) {
	for _, b := range bs {
		if b.PercentCompleted == 100 {
			ready = append(ready, b)
		} else {
			offPlan = append(offPlan, b)
		}
	}
	return ready, offPlan
}

// SortByEndDate orders buildings newest end date first; buildings without one go last.
func SortByEndDate(bs []domain.Building) {
	sort.SliceStable(bs, func(i, j int) bool {
		a, b := bs[i].EndDate, bs[j].EndDate
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}

func FileName(area string, kind Kind) string {
	return fmt.Sprintf("%s_buildings_%s.xlsx", strings.TrimSpace(area), kind)
}

// AreaWorkbooks renders the ready and off-plan workbooks for an area, in that order.
func AreaWorkbooks(area string, bs []domain.Building) ([]File, error) {
	ready, offPlan := SplitReady(bs)
	out := make([]File, 0, 2)
	for _, part := range []struct {
		kind Kind
		bs   []domain.Building
	}{{Ready, ready}, {OffPlan, offPlan}} {
		var buf bytes.Buffer
		if err := WriteAreaWorkbook(&buf, area, part.bs); err != nil {
			return nil, fmt.Errorf("%s workbook: %w", part.kind, err)
		}
		out = append(out, File{Name: FileName(area, part.kind), Kind: part.kind, Data: buf.Bytes()})
	}
	return out, nil
}

// WriteAreaWorkbook writes one sheet with a green header row, centred cells and columns
// sized to their longest value. bs is sorted in place.
func WriteAreaWorkbook(w io.Writer, area string, bs []domain.Building) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}
	// area goes into the document properties; the sheet itself is just the table
	if err := f.SetDocProps(&excelize.DocProperties{Title: strings.TrimSpace(area) + " buildings"}); err != nil {
		return err
	}

	SortByEndDate(bs)
	widths := make([]int, len(header))
	set := func(col, row int, v any, text string) error {
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return err
		}
		if n := utf8.RuneCountInString(text); n > widths[col-1] {
			widths[col-1] = n
		}
		return f.SetCellValue(sheetName, cell, v)
	}

	for i, h := range header {
		if err := set(i+1, 1, h, h); err != nil {
			return err
		}
	}
	for i, b := range bs {
		row := i + 2
		end := ""
		if b.EndDate != nil {
			end = b.EndDate.Format(dateLayout)
		}
		var age any = b.Age
		if n, err := strconv.Atoi(b.Age); err == nil {
			age = n
		}
		cells := []struct {
			v    any
			text string
		}{
			{b.Name, b.Name},
			{end, end},
			{b.PercentCompleted, strconv.Itoa(b.PercentCompleted)},
			{age, b.Age},
		}
		for c, cell := range cells {
			if err := set(c+1, row, cell.v, cell.text); err != nil {
				return err
			}
		}
	}

	center := &excelize.Alignment{Horizontal: "center", Vertical: "center"}
	bodyStyle, err := f.NewStyle(&excelize.Style{Alignment: center})
	if err != nil {
		return err
	}
	headStyle, err := f.NewStyle(&excelize.Style{
		Alignment: center,
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{headerColor}},
	})
	if err != nil {
		return err
	}

	lastCol, _ := excelize.ColumnNumberToName(len(header))
	if err := f.SetCellStyle(sheetName, "A1", lastCol+"1", headStyle); err != nil {
		return err
	}
	if len(bs) > 0 {
		if err := f.SetCellStyle(sheetName, "A2", fmt.Sprintf("%s%d", lastCol, len(bs)+1), bodyStyle); err != nil {
			return err
		}
	}
	for i, wdt := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheetName, col, col, float64(wdt+2)); err != nil {
			return err
		}
	}

	return f.Write(w)
}
