// Package compose renders a project record into the text block sent back to a user.
//
// Two values are derived rather than stored: the construction duration (start to end) and
// the age of a finished project (end to now). Everything else is passed through with
// "N/A" standing in for absent values.
package compose

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/denisok6893-rgb/estatebot/internal/domain"
)

// ErrMalformedRecord means a record reached the composer without its display key.
var ErrMalformedRecord = errors.New("malformed project record")

const (
	NotAvailable      = "N/A"
	UnderConstruction = "Under construction"

	dateLayout   = "02.01.2006"
	daysPerYear  = 365.25
	hoursPerDay  = 24
	fieldDivider = ": "
)

// Field is one labelled line of the rendered record.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Response struct {
	ProjectID            int     `json:"project_id"`
	Fields               []Field `json:"fields"`
	ConstructionDuration string  `json:"construction_duration"`
	ProjectAge           string  `json:"project_age"`
	Text                 string  `json:"text"`
}

type Options struct {
	// Now is the clock used for the project age. Defaults to time.Now.
	Now func() time.Time
}

type Composer struct {
	now func() time.Time
}

func New(opts Options) *Composer {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Composer{now: now}
}

// Compose renders p. The only failure is a record without a display key.
func (c *Composer) Compose(p domain.Project) (Response, error) {
	if strings.TrimSpace(p.NameIDBuildings) == "" {
		return Response{}, fmt.Errorf("%w: project %d has no project_name_id_buildings", ErrMalformedRecord, p.ProjectID)
	}

	duration := ConstructionDuration(p)
	age := ProjectAge(p, c.now())

	fields := []Field{
		{"Project", p.NameIDBuildings},
		{"Project ID", strconv.Itoa(p.ProjectID)},
		{"Status", text(p.ProjectStatus)},
		{"Completion", strconv.Itoa(p.PercentCompleted) + "%"},
		{"Age", age},
		{"Construction duration", duration},
		{"Developer", text(first(p.DeveloperNameEN, p.DeveloperName))},
		{"Master developer", text(first(p.MasterDeveloperNameEN, p.MasterDeveloperName))},
		{"Area", text(p.AreaNameEN)},
		{"Master project", text(p.MasterProjectEN)},
		{"Registration date", FormatDate(p.RegistrationDate)},
		{"Start date", FormatDate(p.ProjectStartDate)},
		{"End date", FormatDate(p.ProjectEndDate)},
		{"License number", text(p.LicenseNumber)},
		{"License source", text(p.LicenseSourceEN)},
		{"License issue date", FormatDate(p.LicenseIssueDate)},
		{"License expiry date", FormatDate(p.LicenseExpiryDate)},
		{"Buildings", count(p.NoOfBuildings)},
		{"Villas", count(p.NoOfVillas)},
		{"Units", count(p.NoOfUnits)},
		{"Floors", count(p.Floors)},
		{"Freehold", text(p.IsFreeHold)},
		{"Leasehold", text(p.IsLeaseHold)},
		{"Property type", text(p.PropertyTypeEN)},
		{"Description", text(p.ProjectDescriptionEN)},
		{"Webpage", text(p.Webpage)},
	}

	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(f.Name)
		b.WriteString(fieldDivider)
		b.WriteString(f.Value)
	}

	return Response{
		ProjectID:            p.ProjectID,
		Fields:               fields,
		ConstructionDuration: duration,
		ProjectAge:           age,
		Text:                 b.String(),
	}, nil
}

// ConstructionDuration is start to end in years, or N/A unless both dates are known.
func ConstructionDuration(p domain.Project) string {
	if p.ProjectStartDate == nil || p.ProjectEndDate == nil {
		return NotAvailable
	}
	return years(wholeDays(p.ProjectEndDate.Sub(*p.ProjectStartDate)))
}

// ProjectAge is end to now in years for finished projects. Unfinished ones are always
// "Under construction" whatever their dates say.
func ProjectAge(p domain.Project, now time.Time) string {
	if !p.Completed() {
		return UnderConstruction
	}
	if p.ProjectEndDate == nil || !p.ProjectEndDate.Before(now) {
		return NotAvailable
	}
	return years(wholeDays(now.Sub(*p.ProjectEndDate)))
}

func FormatDate(t *time.Time) string {
	if t == nil {
		return NotAvailable
	}
	return t.Format(dateLayout)
}

// wholeDays floors d to days, negative durations included.
func wholeDays(d time.Duration) int {
	return int(math.Floor(d.Hours() / hoursPerDay))
}

func years(days int) string {
	y := math.Round(float64(days)/daysPerYear*10) / 10
	return strconv.FormatFloat(y, 'f', 1, 64) + " years"
}

func text(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return NotAvailable
	}
	return s
}

func first(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func count(n *int) string {
	if n == nil {
		return NotAvailable
	}
	return strconv.Itoa(*n)
}
