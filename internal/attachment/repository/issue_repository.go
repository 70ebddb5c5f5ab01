package repository

import (
	"context"
	"fmt"

	"github.com/lk2023060901/attachment-store/internal/attachment/models"
	"github.com/lk2023060901/attachment-store/internal/pkg/database"
	"gorm.io/gorm"
)

// IssueRepository 条目仓储，解析附件目录时按 ID 查 key
type IssueRepository struct {
	db *database.DB
}

// NewIssueRepository 创建条目仓储
func NewIssueRepository(db *database.DB) *IssueRepository {
	return &IssueRepository{db: db}
}

// IssueKey returns the current key of the issue
func (r *IssueRepository) IssueKey(ctx context.Context, issueID int64) (string, error) {
	var issue models.Issue
	if err := r.db.WithContext(ctx).Select("issue_key").Where("id = ?", issueID).First(&issue).Error; err != nil {
		return "", fmt.Errorf("failed to get issue %d: %w", issueID, err)
	}
	return issue.Key, nil
}

// Create 创建条目
func (r *IssueRepository) Create(ctx context.Context, issue *models.Issue) error {
	if err := r.db.WithContext(ctx).Create(issue).Error; err != nil {
		return fmt.Errorf("failed to create issue: %w", err)
	}
	return nil
}

// ProjectRepository 项目仓储
type ProjectRepository struct {
	db *database.DB
}

// NewProjectRepository 创建项目仓储
func NewProjectRepository(db *database.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// OriginalProjectKey returns the key the project was created with. ok is
// false when no project has key; a project never renamed returns its key.
func (r *ProjectRepository) OriginalProjectKey(ctx context.Context, key string) (string, bool, error) {
	var project models.Project
	err := r.db.WithContext(ctx).Where("pkey = ?", key).First(&project).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get project %s: %w", key, err)
	}

	if project.OriginalKey == "" {
		return project.Key, true, nil
	}
	return project.OriginalKey, true, nil
}

// Create 创建项目
func (r *ProjectRepository) Create(ctx context.Context, project *models.Project) error {
	if err := r.db.WithContext(ctx).Create(project).Error; err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// Rename changes the project's key. The original key is kept.
func (r *ProjectRepository) Rename(ctx context.Context, oldKey, newKey string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var project models.Project
		if err := tx.Where("pkey = ?", oldKey).First(&project).Error; err != nil {
			return fmt.Errorf("failed to get project %s: %w", oldKey, err)
		}
		original := project.OriginalKey
		if original == "" {
			original = project.Key
		}
		if err := tx.Model(&project).Updates(map[string]interface{}{
			"pkey":        newKey,
			"originalkey": original,
		}).Error; err != nil {
			return fmt.Errorf("failed to rename project %s: %w", oldKey, err)
		}
		return nil
	})
}
