package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/lk2023060901/attachment-store/internal/attachment/models"
	"github.com/lk2023060901/attachment-store/internal/attachment/types"
	"github.com/lk2023060901/attachment-store/internal/pkg/database"
	"github.com/lk2023060901/attachment-store/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	cfg := database.DefaultConfig()
	cfg.Driver = database.DriverSQLite
	cfg.Path = filepath.Join(t.TempDir(), "attachments.db")

	db, err := database.New(cfg, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, models.AutoMigrate(db.DB))
	return db
}

func TestAttachmentRepository_GetAndList(t *testing.T) {
	ctx := context.Background()
	repo := NewAttachmentRepository(newTestDB(t))
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	rows := []types.Metadata{
		{ID: 1, IssueID: 10, Filename: "b.txt", CreatedAt: created, AuthorKey: "alice", Filesize: 3},
		{ID: 2, IssueID: 10, Filename: "a.txt", CreatedAt: created.Add(time.Hour)},
		{ID: 3, IssueID: 10, Filename: "a.txt", CreatedAt: created},
		{ID: 4, IssueID: 11, Filename: "other.txt", CreatedAt: created},
	}
	for _, m := range rows {
		require.NoError(t, repo.Create(ctx, m))
	}

	got, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "b.txt", got.Filename)
	assert.Equal(t, "alice", got.AuthorKey)
	assert.Equal(t, int64(3), got.Filesize)
	assert.True(t, created.Equal(got.CreatedAt))

	_, err = repo.Get(ctx, 404)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	list, err := repo.ListByIssue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []int64{3, 2, 1}, []int64{list[0].ID, list[1].ID, list[2].ID})

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestAttachmentRepository_Delete(t *testing.T) {
	ctx := context.Background()
	repo := NewAttachmentRepository(newTestDB(t))
	require.NoError(t, repo.Create(ctx, types.Metadata{ID: 1, IssueID: 1, Filename: "f", CreatedAt: time.Now()}))

	require.NoError(t, repo.Delete(ctx, 1))
	_, err := repo.Get(ctx, 1)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	// 重复删除不报错
	require.NoError(t, repo.Delete(ctx, 1))
}

func TestAttachmentRepository_AllBatches(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := &attachmentRepository{db: db, batchSize: 2}

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, repo.Create(ctx, types.Metadata{ID: i, IssueID: 1, Filename: "f", CreatedAt: time.Now()}))
	}

	var ids []int64
	for meta, err := range repo.All(ctx) {
		require.NoError(t, err)
		ids = append(ids, meta.ID)
	}
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, ids)

	// 提前结束遍历
	ids = ids[:0]
	for meta, err := range repo.All(ctx) {
		require.NoError(t, err)
		ids = append(ids, meta.ID)
		if len(ids) == 3 {
			break
		}
	}
	assert.Equal(t, []int64{1, 2, 3}, ids)
}

func TestAttachmentRepository_AllReportsErrors(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewAttachmentRepository(db)
	require.NoError(t, db.Migrator().DropTable(&models.FileAttachment{}))

	var errs int
	for _, err := range repo.All(ctx) {
		if err != nil {
			errs++
		}
	}
	assert.Equal(t, 1, errs)
}

func TestIssueRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewIssueRepository(newTestDB(t))
	require.NoError(t, repo.Create(ctx, &models.Issue{ID: 7, Key: "ABC-7", ProjectID: 1}))

	key, err := repo.IssueKey(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "ABC-7", key)

	_, err = repo.IssueKey(ctx, 8)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestProjectRepository_OriginalKey(t *testing.T) {
	ctx := context.Background()
	repo := NewProjectRepository(newTestDB(t))
	require.NoError(t, repo.Create(ctx, &models.Project{ID: 1, Key: "ABC", Name: "Alpha"}))

	key, ok, err := repo.OriginalProjectKey(ctx, "ABC")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ABC", key)

	_, ok, err = repo.OriginalProjectKey(ctx, "NOPE")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Rename(ctx, "ABC", "XYZ"))
	require.NoError(t, repo.Rename(ctx, "XYZ", "QRS"))

	key, ok, err = repo.OriginalProjectKey(ctx, "QRS")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ABC", key)

	_, ok, err = repo.OriginalProjectKey(ctx, "XYZ")
	require.NoError(t, err)
	assert.False(t, ok)
}
