package errors

// Code 错误码定义：业务码、进程退出码、描述
type Code struct {
	Code     int
	ExitCode int
	Message  string
}

const (
	// 通用错误 (1000-1999)
	ErrInternal     = 1000
	ErrInvalidInput = 1001
	ErrNotFound     = 1002

	// 附件存储错误 (6000-6099)
	ErrAttachmentRead               = 6000
	ErrAttachmentWrite              = 6001
	ErrAttachmentDelete             = 6002
	ErrAttachmentMove               = 6003
	ErrAttachmentCleanup            = 6004
	ErrAttachmentBackendUnavailable = 6005
	ErrAttachmentImportAborted      = 6006

	attachmentCodeMin = 6000
	attachmentCodeMax = 6099
)

// attachctl 退出码，参照 sysexits.h
const (
	ExitFailure     = 1
	ExitUsage       = 64
	ExitNoInput     = 66
	ExitUnavailable = 69
	ExitSoftware    = 70
	ExitIOErr       = 74
)

var codeMap = map[int]Code{
	ErrInternal:     {ErrInternal, ExitSoftware, "Internal error"},
	ErrInvalidInput: {ErrInvalidInput, ExitUsage, "Invalid input"},
	ErrNotFound:     {ErrNotFound, ExitNoInput, "Resource not found"},

	ErrAttachmentRead:               {ErrAttachmentRead, ExitIOErr, "Attachment read failed"},
	ErrAttachmentWrite:              {ErrAttachmentWrite, ExitIOErr, "Attachment write failed"},
	ErrAttachmentDelete:             {ErrAttachmentDelete, ExitIOErr, "Attachment delete failed"},
	ErrAttachmentMove:               {ErrAttachmentMove, ExitIOErr, "Attachment move failed"},
	ErrAttachmentCleanup:            {ErrAttachmentCleanup, ExitIOErr, "Attachment cleanup failed"},
	ErrAttachmentBackendUnavailable: {ErrAttachmentBackendUnavailable, ExitUnavailable, "Attachment backend unavailable"},
	ErrAttachmentImportAborted:      {ErrAttachmentImportAborted, ExitSoftware, "Attachment import aborted"},
}

// GetCode returns the definition of code, ErrInternal's when unknown
func GetCode(code int) Code {
	if c, ok := codeMap[code]; ok {
		return c
	}
	return codeMap[ErrInternal]
}

func GetMessage(code int) string {
	return GetCode(code).Message
}

// IsAttachmentCode reports whether code belongs to the attachment storage range
func IsAttachmentCode(code int) bool {
	return code >= attachmentCodeMin && code <= attachmentCodeMax
}
