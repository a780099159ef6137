//go:build windows

package client

import (
	"os"
	"os/signal"
	"syscall"
)

// watchSignals subscribes to interrupts. Windows consoles have no
// SIGWINCH, so resize never fires.
func watchSignals() (interrupt, resize <-chan os.Signal, stop func()) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	return sig, make(chan os.Signal), func() { signal.Stop(sig) }
}
