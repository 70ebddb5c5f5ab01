//go:build wireinject
// +build wireinject

package injector

import (
	"github.com/google/wire"
	"github.com/lk2023060901/attachment-store/internal/attachment/repository"
	"github.com/lk2023060901/attachment-store/internal/attachment/storage"
	"github.com/lk2023060901/attachment-store/internal/conf"
	"github.com/lk2023060901/attachment-store/internal/pkg/logger"
)

// ProviderSet is the Wire provider set for all dependencies
var ProviderSet = wire.NewSet(
	// Data layer
	dataProviderSet,

	// Repositories
	repositoryProviderSet,

	// Storage
	storageProviderSet,

	// Services
	serviceProviderSet,
)

// Data layer providers
var dataProviderSet = wire.NewSet(
	provideData,
	provideDB,
)

// Repository providers
var repositoryProviderSet = wire.NewSet(
	repository.NewAttachmentRepository,
	repository.NewIssueRepository,
	repository.NewProjectRepository,
)

// Storage providers
var storageProviderSet = wire.NewSet(
	provideResolver,
	storage.NewFileSystemStore,
	provideRemoteStore,
	provideFlagSource,
	storage.NewModeSelector,
	provideSecondaryPool,
	provideRegistry,
	provideMetrics,
	provideDualStore,
	provideAsyncStore,
)

// Service providers
var serviceProviderSet = wire.NewSet(
	provideAttachmentService,
	provideImporter,
	provideArchiveBuilder,
)

// InitializeApp initializes the application with Wire
func InitializeApp(config *conf.Config, log *logger.Logger) (*App, func(), error) {
	wire.Build(ProviderSet, newApp)
	return nil, nil, nil
}
