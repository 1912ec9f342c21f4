package storage

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/denisok6893-rgb/estatebot/internal/domain"
)

var exportTables = []string{"projects", "project_files", "users", "events"}

// ExportTables dumps every table as CSV with a header row of column names.
func (s *SQLiteStore) ExportTables(ctx context.Context) ([]domain.TableExport, error) {
	out := make([]domain.TableExport, 0, len(exportTables))
	for _, table := range exportTables {
		var buf bytes.Buffer
		if err := s.exportTable(ctx, &buf, table); err != nil {
			return nil, fmt.Errorf("export %s: %w", table, err)
		}
		out = append(out, domain.TableExport{Name: table, CSV: buf.Bytes()})
	}
	return out, nil
}

func (s *SQLiteStore) exportTable(ctx context.Context, buf *bytes.Buffer, table string) error {
	rows, err := s.db.QueryContext(ctx, `SELECT * FROM `+table+` ORDER BY rowid`)
	if err != nil {
		return err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	w := csv.NewWriter(buf)
	if err := w.Write(cols); err != nil {
		return err
	}

	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	record := make([]string, len(cols))
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		for i, v := range vals {
			record[i] = csvValue(v)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func csvValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// ImportProjects loads an uploaded .json or .xlsx file and upserts its projects.
func (s *SQLiteStore) ImportProjects(ctx context.Context, name string, data []byte) (domain.ImportSummary, error) {
	items, err := LoadProjects(name, bytes.NewReader(data))
	if err != nil {
		return domain.ImportSummary{}, err
	}
	return s.UpsertProjects(ctx, items)
}
