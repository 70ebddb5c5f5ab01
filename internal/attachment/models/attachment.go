package models

import (
	"time"

	"github.com/lk2023060901/attachment-store/internal/attachment/types"
)

// Project 项目，重命名后 OriginalKey 保留首次创建时的 key
type Project struct {
	ID          int64  `gorm:"column:id;primaryKey" json:"id"`
	Key         string `gorm:"column:pkey;size:255;not null;uniqueIndex" json:"key"`
	OriginalKey string `gorm:"column:originalkey;size:255" json:"original_key"`
	Name        string `gorm:"column:pname;size:255" json:"name"`
}

// TableName 指定表名
func (Project) TableName() string {
	return "projects"
}

// Issue 附件所属的条目
type Issue struct {
	ID        int64  `gorm:"column:id;primaryKey" json:"id"`
	Key       string `gorm:"column:issue_key;size:255;not null;uniqueIndex" json:"key"`
	ProjectID int64  `gorm:"column:project_id;not null;index" json:"project_id"`
}

// TableName 指定表名
func (Issue) TableName() string {
	return "issues"
}

// FileAttachment 附件元数据，字节内容由存储后端保存
type FileAttachment struct {
	ID       int64     `gorm:"column:id;primaryKey" json:"id"`
	IssueID  int64     `gorm:"column:issueid;not null;index" json:"issue_id"`
	Filename string    `gorm:"column:filename;size:255;not null" json:"filename"`
	MimeType string    `gorm:"column:mimetype;size:255" json:"mimetype"`
	Filesize int64     `gorm:"column:filesize" json:"filesize"`
	Author   string    `gorm:"column:author;size:255" json:"author"`
	Created  time.Time `gorm:"column:created;not null" json:"created"`
}

// TableName 指定表名
func (FileAttachment) TableName() string {
	return "fileattachment"
}

// ToMetadata converts the row into the storage layer's metadata
func (a *FileAttachment) ToMetadata() types.Metadata {
	return types.Metadata{
		ID:        a.ID,
		IssueID:   a.IssueID,
		Filename:  a.Filename,
		MimeType:  a.MimeType,
		CreatedAt: a.Created,
		AuthorKey: a.Author,
		Filesize:  a.Filesize,
	}
}

// FromMetadata builds a row from storage metadata
func FromMetadata(m types.Metadata) *FileAttachment {
	return &FileAttachment{
		ID:       m.ID,
		IssueID:  m.IssueID,
		Filename: m.Filename,
		MimeType: m.MimeType,
		Filesize: m.Filesize,
		Author:   m.AuthorKey,
		Created:  m.CreatedAt,
	}
}
