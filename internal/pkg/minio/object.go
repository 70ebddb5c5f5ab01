package minio

import (
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// PutObjectOptions represents options for uploading an object
type PutObjectOptions struct {
	// ContentType is the content type of the object
	ContentType string
	// UserMetadata is custom metadata for the object
	UserMetadata map[string]string
	// ContentDisposition sets the content disposition header
	ContentDisposition string
}

// ObjectInfo represents object information
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified string
	ContentType  string
	Metadata     map[string]string
}

// UploadInfo represents information about an uploaded object
type UploadInfo struct {
	Bucket    string
	Key       string
	ETag      string
	Size      int64
	VersionID string
}

// PutObject uploads an object to the configured bucket. objectSize of -1
// streams with multipart upload.
func (c *Client) PutObject(ctx context.Context, objectName string, reader io.Reader, objectSize int64, opts PutObjectOptions) (UploadInfo, error) {
	if err := c.checkClosed(); err != nil {
		return UploadInfo{}, err
	}

	bucket := c.config.Bucket
	if err := ValidateObjectName(objectName); err != nil {
		return UploadInfo{}, WrapError("PutObject", ErrInvalidObjectName, bucket, objectName)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	info, err := c.client.PutObject(ctx, bucket, objectName, reader, objectSize, minio.PutObjectOptions{
		ContentType:        opts.ContentType,
		UserMetadata:       opts.UserMetadata,
		ContentDisposition: opts.ContentDisposition,
	})
	if err != nil {
		return UploadInfo{}, WrapError("PutObject", err, bucket, objectName)
	}

	c.logger.Debug("object uploaded",
		zap.String("bucket", bucket),
		zap.String("object", objectName),
		zap.Int64("size", info.Size),
		zap.String("etag", info.ETag),
	)

	return UploadInfo{
		Bucket:    info.Bucket,
		Key:       info.Key,
		ETag:      info.ETag,
		Size:      info.Size,
		VersionID: info.VersionID,
	}, nil
}

// GetObject opens an object for reading. A missing object is reported here
// rather than on the first Read. The caller closes the returned reader.
func (c *Client) GetObject(ctx context.Context, objectName string) (io.ReadCloser, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}

	bucket := c.config.Bucket
	if err := ValidateObjectName(objectName); err != nil {
		return nil, WrapError("GetObject", ErrInvalidObjectName, bucket, objectName)
	}

	object, err := c.client.GetObject(ctx, bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, WrapError("GetObject", err, bucket, objectName)
	}

	if _, err := object.Stat(); err != nil {
		_ = object.Close()
		return nil, WrapError("GetObject", err, bucket, objectName)
	}

	return object, nil
}

// StatObject gets object metadata
func (c *Client) StatObject(ctx context.Context, objectName string) (ObjectInfo, error) {
	if err := c.checkClosed(); err != nil {
		return ObjectInfo{}, err
	}

	bucket := c.config.Bucket
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	info, err := c.client.StatObject(ctx, bucket, objectName, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, WrapError("StatObject", err, bucket, objectName)
	}

	return ObjectInfo{
		Key:          info.Key,
		Size:         info.Size,
		ETag:         info.ETag,
		LastModified: info.LastModified.Format("2006-01-02 15:04:05"),
		ContentType:  info.ContentType,
		Metadata:     info.UserMetadata,
	}, nil
}

// RemoveObject removes an object. Removing a missing key succeeds.
func (c *Client) RemoveObject(ctx context.Context, objectName string) error {
	if err := c.checkClosed(); err != nil {
		return err
	}

	bucket := c.config.Bucket
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.client.RemoveObject(ctx, bucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return WrapError("RemoveObject", err, bucket, objectName)
	}

	c.logger.Debug("object removed",
		zap.String("bucket", bucket),
		zap.String("object", objectName),
	)

	return nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.config.RequestTimeout)
}
