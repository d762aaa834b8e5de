// Package store persists upload attempts, edit jobs and agent settings.
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/facekit/facekit-agent/internal/db"
)

type Repository interface {
	CreateUpload(ctx context.Context, u *Upload) error
	GetUpload(ctx context.Context, id string) (*Upload, error)
	LatestUpload(ctx context.Context) (*Upload, error)
	ListUploads(ctx context.Context, limit int) ([]*Upload, error)
	UpdateUploadStatus(ctx context.Context, id, status string, frameCount int, errorMsg string) error

	CreateEditJob(ctx context.Context, j *EditJob) error
	GetEditJob(ctx context.Context, id string) (*EditJob, error)
	ListEditJobs(ctx context.Context, limit int) ([]*EditJob, error)
	ListPendingEditJobs(ctx context.Context) ([]*EditJob, error)
	UpdateEditJobStatus(ctx context.Context, id, status, errorMsg string) error
	UpdateEditJobProgress(ctx context.Context, id string, progress int) error

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(conn *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: conn}
}

const uploadColumns = `id, video_path, generation, status, frame_count, source_frames, error, created_at, updated_at`

func (r *SQLiteRepository) CreateUpload(ctx context.Context, u *Upload) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO uploads (`+uploadColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.VideoPath, u.Generation, u.Status, u.FrameCount, u.SourceFrames, nullString(u.Error),
		formatTime(u.CreatedAt), formatTime(u.UpdatedAt))
	return err
}

func (r *SQLiteRepository) GetUpload(ctx context.Context, id string) (*Upload, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+uploadColumns+` FROM uploads WHERE id = ?`, id)
	return scanUpload(row)
}

// LatestUpload returns the upload with the highest generation, or nil if
// none. Generations are assigned under the session lock, so they order
// uploads even when their rows are written out of order.
func (r *SQLiteRepository) LatestUpload(ctx context.Context) (*Upload, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+uploadColumns+` FROM uploads ORDER BY generation DESC, created_at DESC LIMIT 1
	`)
	return scanUpload(row)
}

func (r *SQLiteRepository) ListUploads(ctx context.Context, limit int) ([]*Upload, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+uploadColumns+` FROM uploads ORDER BY generation DESC, created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var uploads []*Upload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, u)
	}
	return uploads, rows.Err()
}

func (r *SQLiteRepository) UpdateUploadStatus(ctx context.Context, id, status string, frameCount int, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE uploads SET status = ?, frame_count = ?, error = ?, updated_at = ? WHERE id = ?
	`, status, frameCount, nullString(errorMsg), formatTime(time.Now()), id)
	return err
}

const editColumns = `id, upload_id, kind, status, start_frame, end_frame, params, progress, output_dir, error, created_at, updated_at`

func (r *SQLiteRepository) CreateEditJob(ctx context.Context, j *EditJob) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO edits (`+editColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.UploadID, j.Kind, j.Status, j.StartFrame, j.EndFrame, j.Params, j.Progress,
		j.OutputDir, nullString(j.Error), formatTime(j.CreatedAt), formatTime(j.UpdatedAt))
	return err
}

func (r *SQLiteRepository) GetEditJob(ctx context.Context, id string) (*EditJob, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+editColumns+` FROM edits WHERE id = ?`, id)
	return scanEditJob(row)
}

func (r *SQLiteRepository) ListEditJobs(ctx context.Context, limit int) ([]*EditJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+editColumns+` FROM edits ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEditJobs(rows)
}

func (r *SQLiteRepository) ListPendingEditJobs(ctx context.Context) ([]*EditJob, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+editColumns+` FROM edits WHERE status = 'pending' ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEditJobs(rows)
}

func (r *SQLiteRepository) UpdateEditJobStatus(ctx context.Context, id, status, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE edits SET status = ?, error = ?, updated_at = ? WHERE id = ?
	`, status, nullString(errorMsg), formatTime(time.Now()), id)
	return err
}

func (r *SQLiteRepository) UpdateEditJobProgress(ctx context.Context, id string, progress int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE edits SET progress = ?, updated_at = ? WHERE id = ?
	`, progress, formatTime(time.Now()), id)
	return err
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUpload(s scanner) (*Upload, error) {
	var u Upload
	var errMsg sql.NullString
	var createdAt, updatedAt string

	err := s.Scan(&u.ID, &u.VideoPath, &u.Generation, &u.Status, &u.FrameCount, &u.SourceFrames, &errMsg, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.Error = errMsg.String
	u.CreatedAt = parseTime(createdAt)
	u.UpdatedAt = parseTime(updatedAt)
	return &u, nil
}

func scanEditJob(s scanner) (*EditJob, error) {
	var j EditJob
	var errMsg sql.NullString
	var createdAt, updatedAt string

	err := s.Scan(&j.ID, &j.UploadID, &j.Kind, &j.Status, &j.StartFrame, &j.EndFrame, &j.Params,
		&j.Progress, &j.OutputDir, &errMsg, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	j.Error = errMsg.String
	j.CreatedAt = parseTime(createdAt)
	j.UpdatedAt = parseTime(updatedAt)
	return &j, nil
}

func scanEditJobs(rows *sql.Rows) ([]*EditJob, error) {
	var jobs []*EditJob
	for rows.Next() {
		j, err := scanEditJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(db.TimeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(db.TimeLayout, s)
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
