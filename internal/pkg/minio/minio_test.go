package minio

import (
	"errors"
	"testing"

	"github.com/lk2023060901/attachment-store/internal/pkg/logger"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Endpoint:        "localhost:9000",
			AccessKeyID:     "minioadmin",
			SecretAccessKey: "minioadmin",
			Bucket:          "attachments",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing endpoint", func(c *Config) { c.Endpoint = "" }, true},
		{"missing access key", func(c *Config) { c.AccessKeyID = "" }, true},
		{"missing secret", func(c *Config) { c.SecretAccessKey = "" }, true},
		{"uppercase bucket", func(c *Config) { c.Bucket = "Attachments" }, true},
		{"short bucket", func(c *Config) { c.Bucket = "ab" }, true},
		{"bad lookup", func(c *Config) { c.BucketLookup = "weird" }, true},
		{"path lookup", func(c *Config) { c.BucketLookup = BucketLookupPath }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewClient_DoesNotDial(t *testing.T) {
	cfg := &Config{
		Endpoint:        "127.0.0.1:1",
		AccessKeyID:     "k",
		SecretAccessKey: "s",
		Bucket:          "attachments",
	}
	c, err := NewClient(cfg, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "attachments", c.Bucket())
	assert.Equal(t, BucketLookupAuto, cfg.BucketLookup)

	require.NoError(t, c.Close())
	assert.True(t, c.IsClosed())
	assert.ErrorIs(t, c.RemoveObject(t.Context(), "attachments/1"), ErrClientClosed)
}

func TestNewClient_NilConfig(t *testing.T) {
	_, err := NewClient(nil, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestIsNotFound(t *testing.T) {
	assert.False(t, IsNotFound(nil))
	assert.True(t, IsNotFound(WrapError("GetObject", ErrObjectNotFound, "b", "o")))
	assert.True(t, IsNotFound(minio.ErrorResponse{Code: "NoSuchBucket"}))
	assert.False(t, IsNotFound(minio.ErrorResponse{Code: "AccessDenied"}))
	assert.False(t, IsNotFound(errors.New("connection reset")))
}

func TestWrapError_MapsNotFoundCodes(t *testing.T) {
	err := WrapError("StatObject", minio.ErrorResponse{Code: "NoSuchKey", Message: "gone"}, "b", "o")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	err = WrapError("StatObject", minio.ErrorResponse{Code: "NoSuchBucket"}, "b", "")
	assert.ErrorIs(t, err, ErrBucketNotFound)

	assert.NoError(t, WrapError("StatObject", nil, "b", "o"))
}

func TestError_Message(t *testing.T) {
	err := WrapError("PutObject", errors.New("boom"), "attachments", "attachments/7")
	assert.Equal(t, "minio: PutObject failed bucket=attachments object=attachments/7: boom", err.Error())

	err = WrapErrorWithMessage("Ping", errors.New("refused"), "failed to connect")
	assert.Equal(t, "minio: Ping failed: failed to connect: refused", err.Error())
}

func TestValidateNames(t *testing.T) {
	for _, name := range []string{"attachments", "jira-attachments-01"} {
		assert.NoError(t, ValidateBucketName(name), name)
	}
	for _, name := range []string{"", "ab", "Attachments", "a--b", "sthree-bucket", "-edge"} {
		assert.Error(t, ValidateBucketName(name), name)
	}

	assert.NoError(t, ValidateObjectName("attachments/12"))
	assert.Error(t, ValidateObjectName(""))
	assert.Error(t, ValidateObjectName("bad\x00key"))
}
