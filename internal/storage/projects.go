package storage

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/denisok6893-rgb/estatebot/internal/domain"
	"github.com/denisok6893-rgb/estatebot/internal/trgm"
)

const projectColumns = `project_id, project_name, project_name_id_buildings, developer_id,
developer_name, developer_name_en, registration_date, license_source_en, license_number,
license_issue_date, license_expiry_date, chamber_of_commerce_no, webpage,
master_developer_name, master_developer_name_en, project_start_date, project_end_date,
project_status, percent_completed, completion_date, cancellation_date,
project_description_en, area_name_en, master_project_en, zoning_authority_en,
no_of_buildings, no_of_villas, no_of_units, is_free_hold, is_lease_hold, is_registered,
property_type_en, property_sub_type_en, land_type_en, floors`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (domain.Project, error) {
	var p domain.Project
	var developerID, buildings, villas, units, floors sql.NullInt64
	var registration, issue, expiry, start, end, completion, cancellation sql.NullString

	if err := row.Scan(
		&p.ProjectID, &p.ProjectName, &p.NameIDBuildings, &developerID,
		&p.DeveloperName, &p.DeveloperNameEN, &registration, &p.LicenseSourceEN, &p.LicenseNumber,
		&issue, &expiry, &p.ChamberOfCommerceNo, &p.Webpage,
		&p.MasterDeveloperName, &p.MasterDeveloperNameEN, &start, &end,
		&p.ProjectStatus, &p.PercentCompleted, &completion, &cancellation,
		&p.ProjectDescriptionEN, &p.AreaNameEN, &p.MasterProjectEN, &p.ZoningAuthorityEN,
		&buildings, &villas, &units, &p.IsFreeHold, &p.IsLeaseHold, &p.IsRegistered,
		&p.PropertyTypeEN, &p.PropertySubTypeEN, &p.LandTypeEN, &floors,
	); err != nil {
		return domain.Project{}, err
	}

	p.DeveloperID = nullInt(developerID)
	p.NoOfBuildings = nullInt(buildings)
	p.NoOfVillas = nullInt(villas)
	p.NoOfUnits = nullInt(units)
	p.Floors = nullInt(floors)

	var err error
	if p.RegistrationDate, err = parseDate(registration); err != nil {
		return domain.Project{}, err
	}
	if p.LicenseIssueDate, err = parseDate(issue); err != nil {
		return domain.Project{}, err
	}
	if p.LicenseExpiryDate, err = parseDate(expiry); err != nil {
		return domain.Project{}, err
	}
	if p.ProjectStartDate, err = parseDate(start); err != nil {
		return domain.Project{}, err
	}
	if p.ProjectEndDate, err = parseDate(end); err != nil {
		return domain.Project{}, err
	}
	if p.CompletionDate, err = parseDate(completion); err != nil {
		return domain.Project{}, err
	}
	if p.CancellationDate, err = parseDate(cancellation); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (s *SQLiteStore) queryProjects(ctx context.Context, query string, args ...any) ([]domain.Project, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetProject(ctx context.Context, id int) (domain.Project, bool, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE project_id = ?`, id))
	if err == sql.ErrNoRows {
		return domain.Project{}, false, nil
	}
	if err != nil {
		return domain.Project{}, false, err
	}
	return p, true, nil
}

// FindBySubstring returns projects whose display key contains q, case-insensitively,
// in store order (project_id is the rowid).
func (s *SQLiteStore) FindBySubstring(ctx context.Context, q string) ([]domain.Project, error) {
	return s.queryProjects(ctx, `
SELECT `+projectColumns+`
FROM projects
WHERE ulower(project_name_id_buildings) LIKE ? ESCAPE '\'
ORDER BY project_id`, likeContains(q))
}

// FindByName returns projects whose display key equals name exactly.
func (s *SQLiteStore) FindByName(ctx context.Context, name string) ([]domain.Project, error) {
	return s.queryProjects(ctx, `
SELECT `+projectColumns+`
FROM projects
WHERE project_name_id_buildings = ?
ORDER BY project_id`, name)
}

// FindBySimilarity scores every display key against q with trigram similarity, keeps those
// at or above threshold and returns them best first. limit <= 0 means no cap.
func (s *SQLiteStore) FindBySimilarity(ctx context.Context, q string, threshold float64, limit int) ([]domain.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT project_id, project_name_id_buildings FROM projects`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type scored struct {
		id    int
		score float64
	}
	query := trgm.Trigrams(q)
	var hits []scored
	for rows.Next() {
		var id int
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		score := trgm.SimilaritySets(query, trgm.Trigrams(name))
		if score >= threshold {
			hits = append(hits, scored{id: id, score: score})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].id < hits[j].id
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]domain.Candidate, 0, len(hits))
	for _, h := range hits {
		p, ok, err := s.GetProject(ctx, h.id)
		if err != nil {
			return nil, err
		}
		if !ok {
			// deleted between the scan and the fetch
			continue
		}
		out = append(out, domain.Candidate{Project: p, Score: h.score})
	}
	return out, nil
}

// UpsertProjects inserts new projects and updates changed ones in a single transaction.
func (s *SQLiteStore) UpsertProjects(ctx context.Context, items []domain.Project) (domain.ImportSummary, error) {
	var sum domain.ImportSummary

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return sum, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO projects (`+projectColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(project_id) DO UPDATE SET
  project_name = excluded.project_name,
  project_name_id_buildings = excluded.project_name_id_buildings,
  developer_id = excluded.developer_id,
  developer_name = excluded.developer_name,
  developer_name_en = excluded.developer_name_en,
  registration_date = excluded.registration_date,
  license_source_en = excluded.license_source_en,
  license_number = excluded.license_number,
  license_issue_date = excluded.license_issue_date,
  license_expiry_date = excluded.license_expiry_date,
  chamber_of_commerce_no = excluded.chamber_of_commerce_no,
  webpage = excluded.webpage,
  master_developer_name = excluded.master_developer_name,
  master_developer_name_en = excluded.master_developer_name_en,
  project_start_date = excluded.project_start_date,
  project_end_date = excluded.project_end_date,
  project_status = excluded.project_status,
  percent_completed = excluded.percent_completed,
  completion_date = excluded.completion_date,
  cancellation_date = excluded.cancellation_date,
  project_description_en = excluded.project_description_en,
  area_name_en = excluded.area_name_en,
  master_project_en = excluded.master_project_en,
  zoning_authority_en = excluded.zoning_authority_en,
  no_of_buildings = excluded.no_of_buildings,
  no_of_villas = excluded.no_of_villas,
  no_of_units = excluded.no_of_units,
  is_free_hold = excluded.is_free_hold,
  is_lease_hold = excluded.is_lease_hold,
  is_registered = excluded.is_registered,
  property_type_en = excluded.property_type_en,
  property_sub_type_en = excluded.property_sub_type_en,
  land_type_en = excluded.land_type_en,
  floors = excluded.floors
`)
	if err != nil {
		return sum, err
	}
	defer stmt.Close()

	for _, p := range items {
		if strings.TrimSpace(p.NameIDBuildings) == "" {
			return sum, fmt.Errorf("project %d: empty project_name_id_buildings", p.ProjectID)
		}

		existing, err := scanProject(tx.QueryRowContext(ctx,
			`SELECT `+projectColumns+` FROM projects WHERE project_id = ?`, p.ProjectID))
		switch {
		case err == sql.ErrNoRows:
			sum.Created++
		case err != nil:
			return sum, fmt.Errorf("read project %d: %w", p.ProjectID, err)
		case reflect.DeepEqual(existing, normalized(p)):
			sum.Unchanged++
			continue
		default:
			sum.Updated++
		}

		if _, err := stmt.ExecContext(ctx,
			p.ProjectID, p.ProjectName, p.NameIDBuildings, intArg(p.DeveloperID),
			p.DeveloperName, p.DeveloperNameEN, dateArg(p.RegistrationDate), p.LicenseSourceEN, p.LicenseNumber,
			dateArg(p.LicenseIssueDate), dateArg(p.LicenseExpiryDate), p.ChamberOfCommerceNo, p.Webpage,
			p.MasterDeveloperName, p.MasterDeveloperNameEN, dateArg(p.ProjectStartDate), dateArg(p.ProjectEndDate),
			p.ProjectStatus, p.PercentCompleted, dateArg(p.CompletionDate), dateArg(p.CancellationDate),
			p.ProjectDescriptionEN, p.AreaNameEN, p.MasterProjectEN, p.ZoningAuthorityEN,
			intArg(p.NoOfBuildings), intArg(p.NoOfVillas), intArg(p.NoOfUnits), p.IsFreeHold, p.IsLeaseHold, p.IsRegistered,
			p.PropertyTypeEN, p.PropertySubTypeEN, p.LandTypeEN, intArg(p.Floors),
		); err != nil {
			return sum, fmt.Errorf("upsert project %d: %w", p.ProjectID, err)
		}
	}
	return sum, tx.Commit()
}

// BuildingsByArea lists projects whose master project contains area, with their age in
// whole years, or the status text when the building is not finished yet.
func (s *SQLiteStore) BuildingsByArea(ctx context.Context, area string) ([]domain.Building, error) {
	projects, err := s.queryProjects(ctx, `
SELECT `+projectColumns+`
FROM projects
WHERE ulower(master_project_en) LIKE ? ESCAPE '\'
ORDER BY project_id`, likeContains(strings.TrimSpace(area)))
	if err != nil {
		return nil, err
	}

	year := s.now().Year()
	out := make([]domain.Building, 0, len(projects))
	for _, p := range projects {
		b := domain.Building{
			Name:             p.NameIDBuildings,
			PercentCompleted: p.PercentCompleted,
			Age:              p.ProjectStatus,
		}
		if p.ProjectEndDate != nil {
			b.EndDate = p.ProjectEndDate
			if age := year - p.ProjectEndDate.Year(); age > 0 {
				b.Age = strconv.Itoa(age)
			}
		}
		out = append(out, b)
	}
	return out, nil
}

// normalized returns p as it would read back from the table: dates truncated to the day.
func normalized(p domain.Project) domain.Project {
	for _, d := range []**time.Time{
		&p.RegistrationDate, &p.LicenseIssueDate, &p.LicenseExpiryDate,
		&p.ProjectStartDate, &p.ProjectEndDate, &p.CompletionDate, &p.CancellationDate,
	} {
		if *d != nil {
			t := time.Date((*d).Year(), (*d).Month(), (*d).Day(), 0, 0, 0, 0, time.UTC)
			*d = &t
		}
	}
	return p
}
