package injector

import (
	"fmt"

	"github.com/lk2023060901/attachment-store/internal/attachment/archive"
	"github.com/lk2023060901/attachment-store/internal/attachment/importer"
	"github.com/lk2023060901/attachment-store/internal/attachment/models"
	attpath "github.com/lk2023060901/attachment-store/internal/attachment/path"
	"github.com/lk2023060901/attachment-store/internal/attachment/repository"
	"github.com/lk2023060901/attachment-store/internal/attachment/storage"
	"github.com/lk2023060901/attachment-store/internal/attachment/types"
	"github.com/lk2023060901/attachment-store/internal/conf"
	"github.com/lk2023060901/attachment-store/internal/data"
	"github.com/lk2023060901/attachment-store/internal/pkg/database"
	"github.com/lk2023060901/attachment-store/internal/pkg/logger"
	"github.com/lk2023060901/attachment-store/internal/pkg/workerpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// Data layer helpers

func provideData(config *conf.Config, log *logger.Logger) (*data.Data, func(), error) {
	return data.NewData(config, log)
}

func provideDB(d *data.Data) (*database.DB, error) {
	if err := d.DB.AutoMigrate(models.Tables()...); err != nil {
		return nil, err
	}
	return d.DB, nil
}

// Storage providers

func provideResolver(
	config *conf.Config,
	projects *repository.ProjectRepository,
	issues *repository.IssueRepository,
	log *logger.Logger,
) *attpath.Resolver {
	return attpath.NewResolver(config.Attachments.Root, projects, issues, log)
}

func provideRemoteStore(d *data.Data, config *conf.Config, log *logger.Logger) *storage.RemoteStore {
	return storage.NewRemoteStore(data.NewMinIOBlobClient(d.MinIO), config.Attachments.KeyPrefix, log)
}

func provideFlagSource(d *data.Data, config *conf.Config, log *logger.Logger) storage.FlagSource {
	f := config.Attachments.Flags
	static := storage.NewStaticFlags(types.Flags{
		FSOnly:        f.FSOnly,
		FSPrimary:     f.FSPrimary,
		RemotePrimary: f.RemotePrimary,
		RemoteOnly:    f.RemoteOnly,
	})
	if d.Redis == nil {
		return static
	}
	return data.NewRedisFlagSource(d.Redis, d.Redis.Config().FlagsKey, static, log)
}

func provideSecondaryPool(config *conf.Config, log *logger.Logger) (*workerpool.Pool, func(), error) {
	pool, err := workerpool.New(&config.Attachments.Secondary, log.Named("secondary"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create secondary pool: %w", err)
	}
	return pool, pool.Shutdown, nil
}

// provideAsyncStore wraps the dual store on a pool separate from the
// secondary replication pool
func provideAsyncStore(dual *storage.DualStore, config *conf.Config, log *logger.Logger) (*storage.AsyncStore, func(), error) {
	pool, err := workerpool.New(&config.Attachments.Async, log.Named("async"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create async pool: %w", err)
	}
	return storage.NewAsyncStore(dual, pool), pool.Shutdown, nil
}

func provideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func provideMetrics(reg *prometheus.Registry) *storage.Metrics {
	return storage.NewMetrics(reg)
}

func provideDualStore(
	fs *storage.FileSystemStore,
	remote *storage.RemoteStore,
	selector *storage.ModeSelector,
	pool *workerpool.Pool,
	metrics *storage.Metrics,
	config *conf.Config,
	log *logger.Logger,
) *storage.DualStore {
	return storage.NewDualStore(fs, remote, fs, selector, pool, storage.DualOptions{
		WarmRemoteReads: config.Attachments.WarmRemoteReads,
		Metrics:         metrics,
	}, log)
}

// Service providers

func provideAttachmentService(
	dual *storage.DualStore,
	async *storage.AsyncStore,
	attachments repository.AttachmentRepository,
	resolver *attpath.Resolver,
	log *logger.Logger,
) *storage.AttachmentService {
	return storage.NewAttachmentService(dual, async, attachments, resolver, log)
}

func provideImporter(fs *storage.FileSystemStore, dual *storage.DualStore, log *logger.Logger) *importer.Importer {
	return importer.New(fs, dual, log)
}

func provideArchiveBuilder(dual *storage.DualStore, log *logger.Logger) *archive.Builder {
	return archive.NewBuilder(dual, log)
}

func newApp(
	config *conf.Config,
	log *logger.Logger,
	d *data.Data,
	attachments repository.AttachmentRepository,
	fs *storage.FileSystemStore,
	remote *storage.RemoteStore,
	flags storage.FlagSource,
	dual *storage.DualStore,
	async *storage.AsyncStore,
	service *storage.AttachmentService,
	imp *importer.Importer,
	builder *archive.Builder,
	reg *prometheus.Registry,
) *App {
	log.Info("attachment store initialized",
		zap.String("root", config.Attachments.Root),
		zap.Bool("remote_available", remote.Available()))

	return &App{
		Config:      config,
		Logger:      log,
		Data:        d,
		Attachments: attachments,
		FileSystem:  fs,
		Remote:      remote,
		Flags:       flags,
		Store:       dual,
		Async:       async,
		Service:     service,
		Importer:    imp,
		Archive:     builder,
		Registry:    reg,
	}
}
