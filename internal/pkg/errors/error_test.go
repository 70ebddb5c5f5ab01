package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, Wrap(nil, ErrAttachmentRead))
	})

	t.Run("plain error gets code", func(t *testing.T) {
		cause := errors.New("disk gone")
		err := Wrap(cause, ErrAttachmentWrite, "attachment 7")

		assert.True(t, Is(err, ErrAttachmentWrite))
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "attachment 7", GetDetails(err))
		assert.Contains(t, err.Error(), "disk gone")
	})

	t.Run("existing app error is kept", func(t *testing.T) {
		inner := New(ErrAttachmentBackendUnavailable, "no client")
		wrapped := fmt.Errorf("remote put: %w", inner)

		err := Wrap(wrapped, ErrAttachmentWrite)
		assert.Same(t, wrapped, err)
		assert.Equal(t, ErrAttachmentBackendUnavailable, ExtractCode(err))
	})
}

func TestIsAttachmentError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("x"), false},
		{"common code", New(ErrNotFound), false},
		{"read", New(ErrAttachmentRead), true},
		{"import aborted", New(ErrAttachmentImportAborted), true},
		{"wrapped", fmt.Errorf("ctx: %w", New(ErrAttachmentMove)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAttachmentError(tt.err))
		})
	}
}

func TestGetCode(t *testing.T) {
	c := GetCode(ErrAttachmentBackendUnavailable)
	require.Equal(t, ErrAttachmentBackendUnavailable, c.Code)
	assert.Equal(t, ExitUnavailable, c.ExitCode)

	assert.Equal(t, ErrInternal, GetCode(424242).Code)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, ExitFailure, ExitCode(errors.New("usage")))
	assert.Equal(t, ExitIOErr, ExitCode(fmt.Errorf("zip: %w", New(ErrAttachmentRead))))
	assert.Equal(t, ExitSoftware, ExitCode(Wrap(errors.New("boom"), ErrAttachmentImportAborted)))
}

func TestAppError_Message(t *testing.T) {
	assert.Equal(t, "[6000] Attachment read failed", New(ErrAttachmentRead).Error())
	assert.Equal(t, "[6001] Attachment write failed: attachment 7: disk full",
		Wrap(errors.New("disk full"), ErrAttachmentWrite, "attachment 7").Error())
}
