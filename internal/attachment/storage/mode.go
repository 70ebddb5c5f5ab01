package storage

import (
	"context"
	"sync"

	"github.com/lk2023060901/attachment-store/internal/attachment/types"
)

// FlagSource answers live feature flag queries
type FlagSource interface {
	IsEnabled(ctx context.Context, flag string) bool
}

// StaticFlags is an in-memory FlagSource. It is safe for concurrent use and
// can be flipped at runtime.
type StaticFlags struct {
	mu    sync.RWMutex
	flags map[string]bool
}

// NewStaticFlags creates a flag source holding the given flags
func NewStaticFlags(f types.Flags) *StaticFlags {
	s := &StaticFlags{flags: make(map[string]bool, 4)}
	s.Apply(f)
	return s
}

// IsEnabled implements FlagSource
func (s *StaticFlags) IsEnabled(_ context.Context, flag string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flags[flag]
}

// Set flips one flag
func (s *StaticFlags) Set(flag string, enabled bool) {
	s.mu.Lock()
	s.flags[flag] = enabled
	s.mu.Unlock()
}

// Apply replaces all four migration flags
func (s *StaticFlags) Apply(f types.Flags) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[types.FlagFSOnly] = f.FSOnly
	s.flags[types.FlagFSPrimary] = f.FSPrimary
	s.flags[types.FlagRemotePrimary] = f.RemotePrimary
	s.flags[types.FlagRemoteOnly] = f.RemoteOnly
}

// ModeSelector derives the storage mode from live flags. Nothing is cached.
type ModeSelector struct {
	flags FlagSource
}

// NewModeSelector creates a selector over flags
func NewModeSelector(flags FlagSource) *ModeSelector {
	return &ModeSelector{flags: flags}
}

// Flags reads a snapshot of the four migration flags
func (m *ModeSelector) Flags(ctx context.Context) types.Flags {
	return types.Flags{
		FSOnly:        m.flags.IsEnabled(ctx, types.FlagFSOnly),
		FSPrimary:     m.flags.IsEnabled(ctx, types.FlagFSPrimary),
		RemotePrimary: m.flags.IsEnabled(ctx, types.FlagRemotePrimary),
		RemoteOnly:    m.flags.IsEnabled(ctx, types.FlagRemoteOnly),
	}
}

// Mode returns the current storage mode
func (m *ModeSelector) Mode(ctx context.Context) types.StorageMode {
	return types.SelectMode(m.Flags(ctx))
}
