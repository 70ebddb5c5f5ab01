package types

import (
	"fmt"
	"strings"
)

// StorageMode 迁移阶段
type StorageMode int

const (
	ModeFSOnly StorageMode = iota
	ModeFSPrimary
	ModeRemotePrimary
	ModeRemoteOnly
)

// Flag names as stored by the flag service
const (
	FlagFSOnly        = "attachment.storage.fs-only"
	FlagFSPrimary     = "attachment.storage.fs-primary"
	FlagRemotePrimary = "attachment.storage.remote-primary"
	FlagRemoteOnly    = "attachment.storage.remote-only"
)

// Flags is a snapshot of the four migration flags
type Flags struct {
	FSOnly        bool
	FSPrimary     bool
	RemotePrimary bool
	RemoteOnly    bool
}

// SelectMode returns the highest-precedence mode whose flag is set.
// RemoteOnly > RemotePrimary > FSPrimary > FSOnly (default).
func SelectMode(f Flags) StorageMode {
	switch {
	case f.RemoteOnly:
		return ModeRemoteOnly
	case f.RemotePrimary:
		return ModeRemotePrimary
	case f.FSPrimary:
		return ModeFSPrimary
	default:
		return ModeFSOnly
	}
}

func (m StorageMode) String() string {
	switch m {
	case ModeFSOnly:
		return "FS_ONLY"
	case ModeFSPrimary:
		return "FS_PRIMARY"
	case ModeRemotePrimary:
		return "REMOTE_PRIMARY"
	case ModeRemoteOnly:
		return "REMOTE_ONLY"
	default:
		return fmt.Sprintf("StorageMode(%d)", int(m))
	}
}

// HasSecondary reports whether writes in this mode are replicated
func (m StorageMode) HasSecondary() bool {
	return m == ModeFSPrimary || m == ModeRemotePrimary
}

// ParseMode accepts the flag suffixes: fs-only, fs-primary, remote-primary, remote-only
func ParseMode(s string) (StorageMode, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "_", "-")) {
	case "fs-only":
		return ModeFSOnly, nil
	case "fs-primary":
		return ModeFSPrimary, nil
	case "remote-primary":
		return ModeRemotePrimary, nil
	case "remote-only":
		return ModeRemoteOnly, nil
	}
	return ModeFSOnly, fmt.Errorf("unknown storage mode %q", s)
}

// FlagsFor returns the flag set that selects exactly mode
func FlagsFor(mode StorageMode) Flags {
	switch mode {
	case ModeFSPrimary:
		return Flags{FSPrimary: true}
	case ModeRemotePrimary:
		return Flags{RemotePrimary: true}
	case ModeRemoteOnly:
		return Flags{RemoteOnly: true}
	default:
		return Flags{FSOnly: true}
	}
}
