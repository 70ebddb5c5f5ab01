package minio

import (
	"errors"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
)

var (
	ErrInvalidArgument   = errors.New("minio: invalid argument")
	ErrBucketNotFound    = errors.New("minio: bucket not found")
	ErrObjectNotFound    = errors.New("minio: object not found")
	ErrInvalidBucketName = errors.New("minio: invalid bucket name")
	ErrInvalidObjectName = errors.New("minio: invalid object name")
	// ErrClientClosed is returned by every call after Close
	ErrClientClosed = errors.New("minio: client is closed")
)

// notFoundCodes S3 错误码中表示对象或桶不存在的部分
var notFoundCodes = map[string]error{
	"NoSuchBucket": ErrBucketNotFound,
	"NoSuchKey":    ErrObjectNotFound,
	"NoSuchUpload": ErrObjectNotFound,
}

// Error 携带操作上下文的 MinIO 错误
type Error struct {
	Op     string
	Bucket string
	Object string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("minio: ")
	b.WriteString(e.Op)
	b.WriteString(" failed")
	if e.Bucket != "" {
		fmt.Fprintf(&b, " bucket=%s", e.Bucket)
	}
	if e.Object != "" {
		fmt.Fprintf(&b, " object=%s", e.Object)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsNotFound reports a missing bucket or object, whether wrapped or raw
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBucketNotFound) || errors.Is(err, ErrObjectNotFound) {
		return true
	}

	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		_, ok := notFoundCodes[resp.Code]
		return ok
	}
	return false
}

// WrapError attaches operation context. S3 "no such" responses are mapped
// onto ErrBucketNotFound or ErrObjectNotFound so errors.Is works on them.
func WrapError(op string, err error, bucket, object string) error {
	if err == nil {
		return nil
	}

	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		if sentinel, ok := notFoundCodes[resp.Code]; ok {
			err = fmt.Errorf("%w: %s", sentinel, resp.Message)
		}
	}
	return &Error{Op: op, Bucket: bucket, Object: object, Err: err}
}

// WrapErrorWithMessage wraps err with op and a human readable reason
func WrapErrorWithMessage(op string, err error, reason string) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Reason: reason, Err: err}
}
