// Package ipc provides local (same-host) IPC transport based on Unix domain
// sockets. The control channel and every per-tenant reply channel are both
// built on this package.
package ipc

import (
	"time"
)

const (
	// RecommendedDialTimeout is the recommended timeout to use when
	// establishing IPC connections.
	RecommendedDialTimeout = 1 * time.Second
)
