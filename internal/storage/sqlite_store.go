package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// driverName is go-sqlite3 plus ulower(), a Unicode LOWER. The built-in LOWER folds ASCII
// only.
const driverName = "sqlite3_estatebot"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(c *sqlite3.SQLiteConn) error {
			return c.RegisterFunc("ulower", strings.ToLower, true)
		},
	})
}

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, err
	}
	// базовые настройки
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// Ping is used by the health endpoint.
func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

const schema = `
CREATE TABLE IF NOT EXISTS projects (
  project_id INTEGER PRIMARY KEY,
  project_name TEXT NOT NULL DEFAULT '',
  project_name_id_buildings TEXT NOT NULL,
  developer_id INTEGER,
  developer_name TEXT NOT NULL DEFAULT '',
  developer_name_en TEXT NOT NULL DEFAULT '',
  registration_date TEXT,
  license_source_en TEXT NOT NULL DEFAULT '',
  license_number TEXT NOT NULL DEFAULT '',
  license_issue_date TEXT,
  license_expiry_date TEXT,
  chamber_of_commerce_no TEXT NOT NULL DEFAULT '',
  webpage TEXT NOT NULL DEFAULT '',
  master_developer_name TEXT NOT NULL DEFAULT '',
  master_developer_name_en TEXT NOT NULL DEFAULT '',
  project_start_date TEXT,
  project_end_date TEXT,
  project_status TEXT NOT NULL DEFAULT '',
  percent_completed INTEGER NOT NULL DEFAULT 0,
  completion_date TEXT,
  cancellation_date TEXT,
  project_description_en TEXT NOT NULL DEFAULT '',
  area_name_en TEXT NOT NULL DEFAULT '',
  master_project_en TEXT NOT NULL DEFAULT '',
  zoning_authority_en TEXT NOT NULL DEFAULT '',
  no_of_buildings INTEGER,
  no_of_villas INTEGER,
  no_of_units INTEGER,
  is_free_hold TEXT NOT NULL DEFAULT '',
  is_lease_hold TEXT NOT NULL DEFAULT '',
  is_registered TEXT NOT NULL DEFAULT '',
  property_type_en TEXT NOT NULL DEFAULT '',
  property_sub_type_en TEXT NOT NULL DEFAULT '',
  land_type_en TEXT NOT NULL DEFAULT '',
  floors INTEGER
);

CREATE INDEX IF NOT EXISTS idx_projects_name ON projects(project_name_id_buildings);
CREATE INDEX IF NOT EXISTS idx_projects_master_project ON projects(master_project_en);

CREATE TABLE IF NOT EXISTS project_files (
  file_id INTEGER PRIMARY KEY AUTOINCREMENT,
  project_id INTEGER NOT NULL,
  file_name TEXT NOT NULL UNIQUE,
  file_type TEXT NOT NULL DEFAULT 'pdf',
  channel_file_id TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_project_files_project ON project_files(project_id);

CREATE TABLE IF NOT EXISTS users (
  id INTEGER PRIMARY KEY,
  username TEXT NOT NULL DEFAULT '',
  language TEXT NOT NULL DEFAULT 'en',
  role TEXT NOT NULL DEFAULT 'user' CHECK(role IN ('user','admin')),
  first_seen TEXT NOT NULL,
  last_seen TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
  id TEXT PRIMARY KEY,
  user_id INTEGER NOT NULL,
  type TEXT NOT NULL CHECK(type IN ('message','callback')),
  content TEXT NOT NULL DEFAULT '',
  timestamp TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_user ON events(user_id);
`

func (s *SQLiteStore) EnsureSchema() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	// users tables created before roles existed
	if err := s.ensureColumn("users", "role", `TEXT NOT NULL DEFAULT 'user'`); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ensureColumn(table, column, decl string) error {
	rows, err := s.db.Query(`SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return err
	}
	found := false
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return err
		}
		if name == column {
			found = true
		}
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if found {
		return nil
	}
	_, err = s.db.Exec(`ALTER TABLE ` + table + ` ADD COLUMN ` + column + ` ` + decl)
	return err
}

func (s *SQLiteStore) CountProjects(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects`).Scan(&n)
	return n, err
}

// likeContains builds the argument for `ulower(col) LIKE ? ESCAPE '\'` so that % and _
// typed by a user match literally.
func likeContains(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(q)) + "%"
}

const dateLayout = "2006-01-02"

func dateArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}

func intArg(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func parseDate(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || strings.TrimSpace(ns.String) == "" {
		return nil, nil
	}
	v := strings.TrimSpace(ns.String)
	if len(v) > len(dateLayout) {
		v = v[:len(dateLayout)]
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", ns.String, err)
	}
	return &t, nil
}

func nullInt(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
