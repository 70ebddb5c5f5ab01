package minio

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// maxObjectNameLength S3 对象名上限（字节）
const maxObjectNameLength = 1024

var bucketNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9\-]{1,61}[a-z0-9]$`)

// ValidateBucketName 按 S3 命名规则校验桶名
func ValidateBucketName(name string) error {
	switch {
	case !bucketNamePattern.MatchString(name):
		return fmt.Errorf("bucket name %q must be 3-63 lowercase letters, digits or hyphens", name)
	case strings.Contains(name, "--"):
		return fmt.Errorf("bucket name %q contains consecutive hyphens", name)
	case strings.HasPrefix(name, "xn--"), strings.HasPrefix(name, "sthree-"):
		return fmt.Errorf("bucket name %q uses a reserved prefix", name)
	}
	return nil
}

// ValidateObjectName 校验对象名
func ValidateObjectName(name string) error {
	switch {
	case name == "":
		return errors.New("object name cannot be empty")
	case len(name) > maxObjectNameLength:
		return fmt.Errorf("object name exceeds %d bytes", maxObjectNameLength)
	case strings.ContainsRune(name, 0):
		return errors.New("object name contains a null byte")
	}
	return nil
}
