package repository

import (
	"context"
	"fmt"
	"iter"

	"github.com/lk2023060901/attachment-store/internal/attachment/models"
	"github.com/lk2023060901/attachment-store/internal/attachment/types"
	"github.com/lk2023060901/attachment-store/internal/pkg/database"
)

// DefaultBatchSize 全量遍历时每批读取的行数
const DefaultBatchSize = 500

// AttachmentRepository 附件元数据仓储接口
type AttachmentRepository interface {
	// Create 创建附件元数据记录
	Create(ctx context.Context, meta types.Metadata) error

	// Get 根据 ID 获取附件元数据，不存在时返回 gorm.ErrRecordNotFound
	Get(ctx context.Context, id int64) (types.Metadata, error)

	// ListByIssue 获取条目下的全部附件，按文件名、创建时间排序
	ListByIssue(ctx context.Context, issueID int64) ([]types.Metadata, error)

	// All 按 ID 顺序分批遍历全部附件
	All(ctx context.Context) iter.Seq2[types.Metadata, error]

	// Count 统计附件总数
	Count(ctx context.Context) (int64, error)

	// Delete 删除附件元数据记录，记录不存在时不报错
	Delete(ctx context.Context, id int64) error
}

// attachmentRepository 附件元数据仓储实现
type attachmentRepository struct {
	db        *database.DB
	batchSize int
}

// NewAttachmentRepository 创建附件元数据仓储
func NewAttachmentRepository(db *database.DB) AttachmentRepository {
	return &attachmentRepository{db: db, batchSize: DefaultBatchSize}
}

func (r *attachmentRepository) Create(ctx context.Context, meta types.Metadata) error {
	if err := r.db.WithContext(ctx).Create(models.FromMetadata(meta)).Error; err != nil {
		return fmt.Errorf("failed to create attachment: %w", err)
	}
	return nil
}

func (r *attachmentRepository) Get(ctx context.Context, id int64) (types.Metadata, error) {
	var row models.FileAttachment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return types.Metadata{}, fmt.Errorf("failed to get attachment %d: %w", id, err)
	}
	return row.ToMetadata(), nil
}

func (r *attachmentRepository) ListByIssue(ctx context.Context, issueID int64) ([]types.Metadata, error) {
	var rows []models.FileAttachment
	if err := r.db.WithContext(ctx).
		Where("issueid = ?", issueID).
		Order("filename ASC").
		Order("created ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list attachments of issue %d: %w", issueID, err)
	}

	metas := make([]types.Metadata, len(rows))
	for i := range rows {
		metas[i] = rows[i].ToMetadata()
	}
	return metas, nil
}

// All pages with a keyset on id so rows inserted during the walk do not
// shift later batches.
func (r *attachmentRepository) All(ctx context.Context) iter.Seq2[types.Metadata, error] {
	return func(yield func(types.Metadata, error) bool) {
		var lastID int64
		for {
			var rows []models.FileAttachment
			err := r.db.WithContext(ctx).
				Where("id > ?", lastID).
				Order("id ASC").
				Limit(r.batchSize).
				Find(&rows).Error
			if err != nil {
				yield(types.Metadata{}, fmt.Errorf("failed to list attachments after id %d: %w", lastID, err))
				return
			}

			for i := range rows {
				if !yield(rows[i].ToMetadata(), nil) {
					return
				}
			}
			if len(rows) < r.batchSize {
				return
			}
			lastID = rows[len(rows)-1].ID
		}
	}
}

func (r *attachmentRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.FileAttachment{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count attachments: %w", err)
	}
	return n, nil
}

func (r *attachmentRepository) Delete(ctx context.Context, id int64) error {
	if err := r.db.WithContext(ctx).Delete(&models.FileAttachment{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete attachment %d: %w", id, err)
	}
	return nil
}
