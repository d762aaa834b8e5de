package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/facekit/facekit-agent/internal/db"
)

func setupTestRepo(t *testing.T) Repository {
	t.Helper()

	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	return NewRepository(database.Conn())
}

func newUpload(gen uint64, status string, at time.Time) *Upload {
	return &Upload{
		ID:         NewID(),
		VideoPath:  "/videos/clip.mp4",
		Generation: gen,
		Status:     status,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
}

func TestRepository_UploadLifecycle(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	u := newUpload(1, UploadStatusExtracting, time.Now())
	if err := repo.CreateUpload(ctx, u); err != nil {
		t.Fatalf("CreateUpload() error = %v", err)
	}

	if err := repo.UpdateUploadStatus(ctx, u.ID, UploadStatusLoaded, 42, ""); err != nil {
		t.Fatalf("UpdateUploadStatus() error = %v", err)
	}

	got, err := repo.GetUpload(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUpload() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetUpload() = nil")
	}
	if got.Status != UploadStatusLoaded || got.FrameCount != 42 || got.Generation != 1 {
		t.Errorf("upload = %+v, want loaded/42/gen 1", got)
	}
	if got.Error != "" {
		t.Errorf("upload.Error = %q, want empty", got.Error)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt not parsed")
	}
}

func TestRepository_GetUpload_Missing(t *testing.T) {
	repo := setupTestRepo(t)

	got, err := repo.GetUpload(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetUpload() error = %v", err)
	}
	if got != nil {
		t.Errorf("GetUpload() = %+v, want nil", got)
	}
}

func TestRepository_LatestUpload(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	latest, err := repo.LatestUpload(ctx)
	if err != nil || latest != nil {
		t.Fatalf("LatestUpload() on empty db = %v, %v; want nil, nil", latest, err)
	}

	base := time.Now()
	first := newUpload(1, UploadStatusLoaded, base)
	second := newUpload(2, UploadStatusFailed, base.Add(time.Second))
	repo.CreateUpload(ctx, first)
	repo.CreateUpload(ctx, second)

	latest, err = repo.LatestUpload(ctx)
	if err != nil {
		t.Fatalf("LatestUpload() error = %v", err)
	}
	if latest.ID != second.ID {
		t.Errorf("LatestUpload() = %s, want %s", latest.ID, second.ID)
	}

	list, err := repo.ListUploads(ctx, 10)
	if err != nil {
		t.Fatalf("ListUploads() error = %v", err)
	}
	if len(list) != 2 || list[0].ID != second.ID {
		t.Errorf("ListUploads() order wrong: %d entries", len(list))
	}
}

func TestRepository_LatestUploadOrdersByGeneration(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	// gen 1 was stamped after gen 2, e.g. a superseded upload whose row
	// landed late
	base := time.Now()
	newer := newUpload(2, UploadStatusLoaded, base)
	older := newUpload(1, UploadStatusSuperseded, base.Add(time.Microsecond))
	repo.CreateUpload(ctx, newer)
	repo.CreateUpload(ctx, older)

	latest, err := repo.LatestUpload(ctx)
	if err != nil {
		t.Fatalf("LatestUpload() error = %v", err)
	}
	if latest.ID != newer.ID {
		t.Errorf("LatestUpload() = gen %d, want gen 2", latest.Generation)
	}

	list, err := repo.ListUploads(ctx, 10)
	if err != nil {
		t.Fatalf("ListUploads() error = %v", err)
	}
	if len(list) != 2 || list[0].Generation != 2 || list[1].Generation != 1 {
		t.Errorf("ListUploads() not ordered by generation")
	}
}

func TestRepository_EditJobs(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	u := newUpload(1, UploadStatusLoaded, time.Now())
	if err := repo.CreateUpload(ctx, u); err != nil {
		t.Fatalf("CreateUpload() error = %v", err)
	}

	base := time.Now()
	var ids []string
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Millisecond)
		j := &EditJob{
			ID:         NewID(),
			UploadID:   u.ID,
			Kind:       EditKindRange,
			Status:     JobStatusPending,
			StartFrame: i,
			EndFrame:   i + 2,
			Params:     `{"blink":1}`,
			OutputDir:  "/out/" + u.ID,
			CreatedAt:  at,
			UpdatedAt:  at,
		}
		if err := repo.CreateEditJob(ctx, j); err != nil {
			t.Fatalf("CreateEditJob() error = %v", err)
		}
		ids = append(ids, j.ID)
	}

	if err := repo.UpdateEditJobStatus(ctx, ids[0], JobStatusRunning, ""); err != nil {
		t.Fatalf("UpdateEditJobStatus() error = %v", err)
	}
	if err := repo.UpdateEditJobProgress(ctx, ids[0], 50); err != nil {
		t.Fatalf("UpdateEditJobProgress() error = %v", err)
	}

	pending, err := repo.ListPendingEditJobs(ctx)
	if err != nil {
		t.Fatalf("ListPendingEditJobs() error = %v", err)
	}
	if len(pending) != 2 || pending[0].ID != ids[1] || pending[1].ID != ids[2] {
		t.Errorf("pending jobs = %d, want [%s %s] in creation order", len(pending), ids[1], ids[2])
	}

	got, err := repo.GetEditJob(ctx, ids[0])
	if err != nil {
		t.Fatalf("GetEditJob() error = %v", err)
	}
	if got.Status != JobStatusRunning || got.Progress != 50 {
		t.Errorf("job = %s/%d, want running/50", got.Status, got.Progress)
	}
	if got.FrameCount() != 3 {
		t.Errorf("FrameCount() = %d, want 3", got.FrameCount())
	}

	if err := repo.UpdateEditJobStatus(ctx, ids[0], JobStatusFailed, "engine down"); err != nil {
		t.Fatalf("UpdateEditJobStatus() error = %v", err)
	}
	got, _ = repo.GetEditJob(ctx, ids[0])
	if got.Error != "engine down" {
		t.Errorf("job.Error = %q, want engine down", got.Error)
	}

	all, err := repo.ListEditJobs(ctx, 0)
	if err != nil || len(all) != 3 {
		t.Errorf("ListEditJobs() = %d, %v; want 3 jobs", len(all), err)
	}
}

func TestRepository_EditJobRequiresUpload(t *testing.T) {
	repo := setupTestRepo(t)

	now := time.Now()
	err := repo.CreateEditJob(context.Background(), &EditJob{
		ID: NewID(), UploadID: "missing", Kind: EditKindFrame, Status: JobStatusPending,
		Params: "{}", OutputDir: "/out", CreatedAt: now, UpdatedAt: now,
	})
	if err == nil {
		t.Error("CreateEditJob() should fail for an unknown upload")
	}
}

func TestRepository_Config(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	v, err := repo.GetConfig(ctx, "auth_token")
	if err != nil || v != "" {
		t.Fatalf("GetConfig() = %q, %v; want empty", v, err)
	}

	repo.SetConfig(ctx, "auth_token", "one")
	repo.SetConfig(ctx, "auth_token", "two")

	v, err = repo.GetConfig(ctx, "auth_token")
	if err != nil || v != "two" {
		t.Errorf("GetConfig() = %q, %v; want two", v, err)
	}
}
