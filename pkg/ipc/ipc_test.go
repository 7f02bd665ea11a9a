package ipc

import (
	"context"
	"net"
	"path/filepath"
	"testing"
)

// TestDialContextNoEndpoint tests that DialContext fails if there is no
// endpoint at the specified path.
func TestDialContextNoEndpoint(t *testing.T) {
	endpoint := filepath.Join(t.TempDir(), "test.sock")

	if c, err := DialContext(context.Background(), endpoint); err == nil {
		c.Close()
		t.Error("IPC connection succeeded unexpectedly")
	}
}

// TestIPC tests that an IPC connection can be established between a
// listener and a dialer and that data flows in both directions.
func TestIPC(t *testing.T) {
	endpoint := filepath.Join(t.TempDir(), "test.sock")

	listener, err := NewListener(endpoint)
	if err != nil {
		t.Fatal("unable to create listener:", err)
	}
	defer listener.Close()

	const message = "hello from the other side\n"

	go func() {
		connection, err := DialContext(context.Background(), endpoint)
		if err != nil {
			return
		}
		defer connection.Close()
		connection.Write([]byte(message))
	}()

	connection, err := listener.Accept()
	if err != nil {
		t.Fatal("unable to accept connection:", err)
	}
	defer connection.Close()

	buffer := make([]byte, len(message))
	if _, err := connection.Read(buffer); err != nil {
		t.Fatal("unable to read message:", err)
	} else if string(buffer) != message {
		t.Errorf("received message does not match expected: %q != %q", buffer, message)
	}
}

// TestNewListenerRemovesStaleSocket tests that NewListener successfully binds
// over a stale socket file left behind by a previous process.
func TestNewListenerRemovesStaleSocket(t *testing.T) {
	endpoint := filepath.Join(t.TempDir(), "test.sock")

	first, err := NewListener(endpoint)
	if err != nil {
		t.Fatal("unable to create first listener:", err)
	}
	// Simulate an unclean shutdown: the socket file remains on disk, but
	// nothing is listening on it anymore. A listener created by net.Listen
	// unlinks its socket file on Close unless told otherwise.
	first.(*net.UnixListener).SetUnlinkOnClose(false)
	first.Close()

	second, err := NewListener(endpoint)
	if err != nil {
		t.Fatal("unable to create second listener over stale socket:", err)
	}
	defer second.Close()
}
