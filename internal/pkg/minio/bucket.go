package minio

import (
	"context"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// EnsureBucket creates the configured bucket when it does not exist yet
func (c *Client) EnsureBucket(ctx context.Context) error {
	if err := c.checkClosed(); err != nil {
		return err
	}

	bucket := c.config.Bucket
	exists, err := c.client.BucketExists(ctx, bucket)
	if err != nil {
		return WrapError("BucketExists", err, bucket, "")
	}
	if exists {
		return nil
	}

	if err := c.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: c.config.Region}); err != nil {
		// 并发创建时另一个实例可能已经建好
		var minioErr minio.ErrorResponse
		if asErrorResponse(err, &minioErr) &&
			(minioErr.Code == "BucketAlreadyOwnedByYou" || minioErr.Code == "BucketAlreadyExists") {
			return nil
		}
		return WrapError("MakeBucket", err, bucket, "")
	}

	c.logger.Info("bucket created successfully",
		zap.String("bucket", bucket),
		zap.String("region", c.config.Region),
	)

	return nil
}

func asErrorResponse(err error, target *minio.ErrorResponse) bool {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "" {
		return false
	}
	*target = resp
	return true
}
