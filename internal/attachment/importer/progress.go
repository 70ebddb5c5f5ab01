package importer

import (
	"sync/atomic"

	"github.com/lk2023060901/attachment-store/internal/attachment/types"
	"github.com/lk2023060901/attachment-store/internal/pkg/logger"
	"go.uber.org/zap"
)

// progressSteps 日志输出次数上限
const progressSteps = 20

// Progress 批量导入进度跟踪器。Record 可直接作为 DoneFunc 使用。
type Progress struct {
	total     int64
	step      int64
	completed atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	logger    *logger.Logger
}

// NewProgress 创建进度跟踪器，total 未知时传 0
func NewProgress(total int64, log *logger.Logger) *Progress {
	return &Progress{
		total:  total,
		step:   max(total/progressSteps, 1),
		logger: logger.OrDefault(log).Named("import-progress"),
	}
}

// Record 记录单个附件的结果并按步长输出日志
func (p *Progress) Record(meta types.Metadata, err error) {
	completed := p.completed.Add(1)
	if err != nil {
		p.failed.Add(1)
		p.logger.Warn("attachment import failed",
			zap.Int64("attachment_id", meta.ID),
			zap.Error(err))
		return
	}

	p.succeeded.Add(1)
	if completed%p.step == 0 || completed == p.total {
		p.logger.Info("import progress",
			zap.Int64("completed", completed),
			zap.Int64("total", p.total))
	}
}

// Completed returns the number of finished items, failed ones included
func (p *Progress) Completed() int64 { return p.completed.Load() }

func (p *Progress) Succeeded() int64 { return p.succeeded.Load() }

func (p *Progress) Failed() int64 { return p.failed.Load() }
