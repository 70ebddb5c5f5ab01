package injector

import (
	"github.com/lk2023060901/attachment-store/internal/attachment/archive"
	"github.com/lk2023060901/attachment-store/internal/attachment/importer"
	"github.com/lk2023060901/attachment-store/internal/attachment/repository"
	"github.com/lk2023060901/attachment-store/internal/attachment/storage"
	"github.com/lk2023060901/attachment-store/internal/conf"
	"github.com/lk2023060901/attachment-store/internal/data"
	"github.com/lk2023060901/attachment-store/internal/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
)

// App encapsulates all application dependencies
type App struct {
	Config      *conf.Config
	Logger      *logger.Logger
	Data        *data.Data
	Attachments repository.AttachmentRepository
	FileSystem  *storage.FileSystemStore
	Remote      *storage.RemoteStore
	Flags       storage.FlagSource
	Store       *storage.DualStore
	Async       *storage.AsyncStore
	Service     *storage.AttachmentService
	Importer    *importer.Importer
	Archive     *archive.Builder
	Registry    *prometheus.Registry
}
