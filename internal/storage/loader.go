package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/denisok6893-rgb/estatebot/internal/domain"
)

// LoadProjectsFromFile reads projects from a .json array or the first sheet of an .xlsx
// export. Column names are the projects table column names.
func LoadProjectsFromFile(path string) ([]domain.Project, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read projects file: %w", err)
	}
	defer f.Close()
	return LoadProjects(path, f)
}

// LoadProjects reads projects from r. The extension of name picks the format.
func LoadProjects(name string, r io.Reader) ([]domain.Project, error) {
	var rows []map[string]string
	var err error
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		rows, err = readJSONRows(r)
	case ".xlsx":
		rows, err = readXLSXRows(r)
	default:
		return nil, fmt.Errorf("unsupported projects file %q: want .json or .xlsx", name)
	}
	if err != nil {
		return nil, err
	}

	out := make([]domain.Project, 0, len(rows))
	for i, r := range rows {
		p, err := projectFromRow(r)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func readJSONRows(r io.Reader) ([]map[string]string, error) {
	var raw []map[string]any
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("unmarshal projects: %w", err)
	}
	rows := make([]map[string]string, 0, len(raw))
	for _, r := range raw {
		row := make(map[string]string, len(r))
		for k, v := range r {
			switch x := v.(type) {
			case nil:
			case string:
				row[k] = x
			case float64:
				row[k] = strconv.FormatFloat(x, 'f', -1, 64)
			case bool:
				row[k] = strconv.FormatBool(x)
			default:
				row[k] = fmt.Sprint(x)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func readXLSXRows(r io.Reader) ([]map[string]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	grid, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(grid) == 0 {
		return nil, nil
	}
	header := grid[0]
	rows := make([]map[string]string, 0, len(grid)-1)
	for _, cells := range grid[1:] {
		row := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(cells) {
				row[strings.TrimSpace(name)] = cells[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

var missingValues = map[string]bool{
	"": true, "#n/a": true, "na": true, "n/a": true, "nan": true, "nat": true, "null": true,
}

type rowReader struct {
	row map[string]string
	err error
}

func (r *rowReader) str(col string) string {
	v := strings.TrimSpace(r.row[col])
	if missingValues[strings.ToLower(v)] {
		return ""
	}
	return v
}

func (r *rowReader) intPtr(col string) *int {
	v := r.str(col)
	if v == "" || r.err != nil {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.err = fmt.Errorf("column %s: %q is not a number", col, v)
		return nil
	}
	n := int(f)
	return &n
}

func (r *rowReader) integer(col string) int {
	if p := r.intPtr(col); p != nil {
		return *p
	}
	return 0
}

var dateLayouts = []string{
	dateLayout,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02.01.2006",
	"02-01-2006",
	"1/2/2006",
	"1/2/06",
	"01-02-06",
}

func (r *rowReader) date(col string) *time.Time {
	v := r.str(col)
	if v == "" || r.err != nil {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &d
		}
	}
	// Spreadsheet cells without a date format come through as serial numbers.
	if serial, err := strconv.ParseFloat(v, 64); err == nil {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &d
		}
	}
	r.err = fmt.Errorf("column %s: unrecognised date %q", col, v)
	return nil
}

func projectFromRow(row map[string]string) (domain.Project, error) {
	r := &rowReader{row: row}
	p := domain.Project{
		ProjectID:             r.integer("project_id"),
		ProjectName:           r.str("project_name"),
		NameIDBuildings:       r.str("project_name_id_buildings"),
		DeveloperID:           r.intPtr("developer_id"),
		DeveloperName:         r.str("developer_name"),
		DeveloperNameEN:       r.str("developer_name_en"),
		RegistrationDate:      r.date("registration_date"),
		LicenseSourceEN:       r.str("license_source_en"),
		LicenseNumber:         r.str("license_number"),
		LicenseIssueDate:      r.date("license_issue_date"),
		LicenseExpiryDate:     r.date("license_expiry_date"),
		ChamberOfCommerceNo:   r.str("chamber_of_commerce_no"),
		Webpage:               r.str("webpage"),
		MasterDeveloperName:   r.str("master_developer_name"),
		MasterDeveloperNameEN: r.str("master_developer_name_en"),
		ProjectStartDate:      r.date("project_start_date"),
		ProjectEndDate:        r.date("project_end_date"),
		ProjectStatus:         r.str("project_status"),
		PercentCompleted:      r.integer("percent_completed"),
		CompletionDate:        r.date("completion_date"),
		CancellationDate:      r.date("cancellation_date"),
		ProjectDescriptionEN:  r.str("project_description_en"),
		AreaNameEN:            r.str("area_name_en"),
		MasterProjectEN:       r.str("master_project_en"),
		ZoningAuthorityEN:     r.str("zoning_authority_en"),
		NoOfBuildings:         r.intPtr("no_of_buildings"),
		NoOfVillas:            r.intPtr("no_of_villas"),
		NoOfUnits:             r.intPtr("no_of_units"),
		IsFreeHold:            r.str("is_free_hold"),
		IsLeaseHold:           r.str("is_lease_hold"),
		IsRegistered:          r.str("is_registered"),
		PropertyTypeEN:        r.str("property_type_en"),
		PropertySubTypeEN:     r.str("property_sub_type_en"),
		LandTypeEN:            r.str("land_type_en"),
		Floors:                r.intPtr("floors"),
	}
	if r.err != nil {
		return domain.Project{}, r.err
	}
	if p.ProjectID == 0 {
		return domain.Project{}, fmt.Errorf("missing project_id")
	}
	if p.NameIDBuildings == "" {
		return domain.Project{}, fmt.Errorf("project %d: missing project_name_id_buildings", p.ProjectID)
	}
	if p.PercentCompleted < 0 || p.PercentCompleted > 100 {
		return domain.Project{}, fmt.Errorf("project %d: percent_completed %d out of range 0-100", p.ProjectID, p.PercentCompleted)
	}
	return p, nil
}
