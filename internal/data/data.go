package data

import (
	"context"
	"fmt"

	"github.com/lk2023060901/attachment-store/internal/conf"
	"github.com/lk2023060901/attachment-store/internal/pkg/database"
	"github.com/lk2023060901/attachment-store/internal/pkg/logger"
	"github.com/lk2023060901/attachment-store/internal/pkg/minio"
	"github.com/lk2023060901/attachment-store/internal/pkg/redis"
	"go.uber.org/zap"
)

// Data holds the external clients. Redis and MinIO are nil when disabled.
type Data struct {
	DB     *database.DB
	Redis  *redis.Client
	MinIO  *minio.Client
	Logger *logger.Logger
}

func NewData(config *conf.Config, log *logger.Logger) (*Data, func(), error) {
	log = logger.OrDefault(log)

	// Initialize database
	db, err := database.New(&config.Database, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init database: %w", err)
	}

	// Initialize Redis
	var redisClient *redis.Client
	if config.Redis.Enabled {
		redisClient, err = redis.New(&config.Redis, log)
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
	}

	// Initialize MinIO
	var minioClient *minio.Client
	if config.MinIO.Enabled {
		minioClient, err = initMinIO(&config.MinIO, log)
		if err != nil {
			// 远端不可用时降级为 BackendUnavailable，不阻止启动
			log.Warn("failed to init minio, remote backend unavailable", zap.Error(err))
			minioClient = nil
		}
	}

	d := &Data{
		DB:     db,
		Redis:  redisClient,
		MinIO:  minioClient,
		Logger: log,
	}

	cleanup := func() {
		log.Info("cleaning up data resources")

		if err := db.Close(); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}

		if redisClient != nil {
			_ = redisClient.Close()
		}

		if minioClient != nil {
			_ = minioClient.Close()
		}
	}

	return d, cleanup, nil
}

func initMinIO(cfg *minio.Config, log *logger.Logger) (*minio.Client, error) {
	client, err := minio.NewClient(cfg, log)
	if err != nil {
		return nil, err
	}

	if cfg.CreateBucket {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
		defer cancel()
		if err := client.EnsureBucket(ctx); err != nil {
			_ = client.Close()
			return nil, err
		}
	}

	return client, nil
}
