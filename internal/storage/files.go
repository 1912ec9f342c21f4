package storage

import (
	"context"
	"database/sql"
	"path"
	"strings"

	"github.com/denisok6893-rgb/estatebot/internal/domain"
)

// ProjectFileByName returns the cached upload for a document, matched case-insensitively.
func (s *SQLiteStore) ProjectFileByName(ctx context.Context, name string) (domain.ProjectFile, bool, error) {
	var f domain.ProjectFile
	err := s.db.QueryRowContext(ctx, `
SELECT file_id, project_id, file_name, file_type, channel_file_id
FROM project_files WHERE ulower(file_name) = ?
`, strings.ToLower(strings.TrimSpace(name))).Scan(&f.FileID, &f.ProjectID, &f.FileName, &f.FileType, &f.ChannelFileID)
	if err == sql.ErrNoRows {
		return domain.ProjectFile{}, false, nil
	}
	if err != nil {
		return domain.ProjectFile{}, false, err
	}
	return f, true, nil
}

// SaveProjectFile records the channel handle of an uploaded document, replacing a stale one.
func (s *SQLiteStore) SaveProjectFile(ctx context.Context, f domain.ProjectFile) error {
	if f.FileType == "" {
		f.FileType = "pdf"
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO project_files (project_id, file_name, file_type, channel_file_id)
VALUES (?, ?, ?, ?)
ON CONFLICT(file_name) DO UPDATE SET
  project_id = excluded.project_id,
  file_type = excluded.file_type,
  channel_file_id = excluded.channel_file_id
`, f.ProjectID, f.FileName, f.FileType, f.ChannelFileID)
	return err
}

// SearchFiles lists already delivered documents whose name contains keyword, at most limit.
func (s *SQLiteStore) SearchFiles(ctx context.Context, keyword string, limit int) ([]domain.Document, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT project_id, file_name
FROM project_files
WHERE ulower(file_name) LIKE ? ESCAPE '\'
ORDER BY file_name
LIMIT ?`, likeContains(strings.TrimSpace(keyword)), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Document
	for rows.Next() {
		var d domain.Document
		if err := rows.Scan(&d.ProjectID, &d.Key); err != nil {
			return nil, err
		}
		d.Name = path.Base(d.Key)
		out = append(out, d)
	}
	return out, rows.Err()
}
