//go:build windows

package main

import "os"

// terminationSignals are the signals that request a graceful shutdown.
// os/signal.Notify on Windows only reliably delivers os.Interrupt.
var terminationSignals = []os.Signal{
	os.Interrupt,
}
