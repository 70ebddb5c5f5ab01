package storage

import (
	"context"
	"testing"

	"github.com/lk2023060901/attachment-store/internal/attachment/types"
	"github.com/stretchr/testify/assert"
)

func TestModeSelector_ReadsLiveFlags(t *testing.T) {
	ctx := context.Background()
	flags := NewStaticFlags(types.Flags{})
	selector := NewModeSelector(flags)

	assert.Equal(t, types.ModeFSOnly, selector.Mode(ctx))

	flags.Set(types.FlagFSPrimary, true)
	assert.Equal(t, types.ModeFSPrimary, selector.Mode(ctx))

	flags.Set(types.FlagRemotePrimary, true)
	assert.Equal(t, types.ModeRemotePrimary, selector.Mode(ctx))

	flags.Set(types.FlagRemoteOnly, true)
	assert.Equal(t, types.ModeRemoteOnly, selector.Mode(ctx))

	flags.Apply(types.Flags{FSOnly: true})
	assert.Equal(t, types.ModeFSOnly, selector.Mode(ctx))
	assert.Equal(t, types.Flags{FSOnly: true}, selector.Flags(ctx))
}

func TestStaticFlags_UnknownFlag(t *testing.T) {
	flags := NewStaticFlags(types.Flags{RemoteOnly: true})
	assert.False(t, flags.IsEnabled(context.Background(), "attachment.storage.other"))
	assert.True(t, flags.IsEnabled(context.Background(), types.FlagRemoteOnly))
}
