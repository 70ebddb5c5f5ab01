package data

import (
	"context"
	"io"

	"github.com/lk2023060901/attachment-store/internal/attachment/storage"
	"github.com/lk2023060901/attachment-store/internal/pkg/minio"
)

// MinIOBlobClient adapts the MinIO client to storage.BlobClient
type MinIOBlobClient struct {
	client *minio.Client
}

// NewMinIOBlobClient returns nil when client is nil, so the remote backend
// reports itself unavailable.
func NewMinIOBlobClient(client *minio.Client) storage.BlobClient {
	if client == nil {
		return nil
	}
	return &MinIOBlobClient{client: client}
}

func (c *MinIOBlobClient) Get(ctx context.Context, key string) (io.ReadCloser, bool, error) {
	rc, err := c.client.GetObject(ctx, key)
	if err != nil {
		if minio.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return rc, true, nil
}

func (c *MinIOBlobClient) Put(ctx context.Context, key string, r io.Reader, size int64, info storage.BlobInfo) error {
	_, err := c.client.PutObject(ctx, key, r, size, minio.PutObjectOptions{
		ContentType:  info.ContentType,
		UserMetadata: info.Metadata,
	})
	return err
}

func (c *MinIOBlobClient) Delete(ctx context.Context, key string) error {
	err := c.client.RemoveObject(ctx, key)
	if minio.IsNotFound(err) {
		return nil
	}
	return err
}

func (c *MinIOBlobClient) Head(ctx context.Context, key string) (*storage.BlobInfo, bool, error) {
	info, err := c.client.StatObject(ctx, key)
	if err != nil {
		if minio.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &storage.BlobInfo{
		Size:        info.Size,
		ContentType: info.ContentType,
		Metadata:    info.Metadata,
	}, true, nil
}

// Ping implements storage.Pinger
func (c *MinIOBlobClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx)
}
