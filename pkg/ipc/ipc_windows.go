//go:build windows

package ipc

import (
	"context"
	"net"

	"github.com/pkg/errors"
)

// errUnsupported indicates that IPC is not supported on this platform. The
// daemon is designed around the Unix domain socket paths named in the
// protocol (/tmp/mem_search_service_requests.sock and friends), which have
// no analogue on Windows.
var errUnsupported = errors.New("ipc: unsupported on this platform")

// DialContext always fails on Windows.
func DialContext(_ context.Context, _ string) (net.Conn, error) {
	return nil, errUnsupported
}

// NewListener always fails on Windows.
func NewListener(_ string) (net.Listener, error) {
	return nil, errUnsupported
}
