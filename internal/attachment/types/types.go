// Package types holds the value types shared by the attachment storage packages.
package types

import (
	"strconv"
	"time"
)

// Metadata 附件元数据，由元数据存储提供，存储层只读
type Metadata struct {
	ID        int64
	IssueID   int64
	Filename  string
	MimeType  string
	CreatedAt time.Time
	AuthorKey string
	Filesize  int64
}

// Key projects the fields needed to locate stored bytes
func (m Metadata) Key() Key {
	return Key{ID: m.ID, Filename: m.Filename}
}

// Key identifies stored bytes without a metadata lookup
type Key struct {
	ID       int64
	Filename string
}

// StoredName is the name bytes are stored under. It never depends on the
// user supplied filename.
func (k Key) StoredName() string {
	return strconv.FormatInt(k.ID, 10)
}

// HealthReport describes why a backend is unhealthy. A nil report means healthy.
type HealthReport struct {
	Backend  string
	Messages []string
}

// NewHealthReport returns nil when there are no messages
func NewHealthReport(backend string, messages ...string) *HealthReport {
	if len(messages) == 0 {
		return nil
	}
	return &HealthReport{Backend: backend, Messages: messages}
}
