//go:build !windows

package client

import (
	"os"
	"os/signal"
	"syscall"
)

// watchSignals subscribes to interrupt and terminal-resize signals. The
// returned func unsubscribes both.
func watchSignals() (interrupt, resize <-chan os.Signal, stop func()) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)

	return sig, winch, func() {
		signal.Stop(sig)
		signal.Stop(winch)
	}
}
