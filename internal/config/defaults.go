package config

import "time"

// DefaultBackend is the backend used when none is configured.
const DefaultBackend = "127.0.0.1:8000"

// DefaultDirName is the per-user state directory under $HOME.
const DefaultDirName = ".inkwell"

// DefaultStoreName is the journal file inside DefaultDirName.
const DefaultStoreName = "inkwell.db"

// DefaultGuardDelay is the debounce quiet period for guarded actions.
const DefaultGuardDelay = 300 * time.Millisecond
