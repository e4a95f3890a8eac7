// Package sig provides a single interrupt listener, mirroring the calling
// convention of daglabs-btcd's signal.InterruptListener (<-interrupt): a
// channel that closes on the first SIGINT/SIGTERM.
package sig

import (
	"os"
	"os/signal"
	"syscall"
)

// InterruptListener returns a channel that is closed the first time the
// process receives SIGINT or SIGTERM. A second signal forces an immediate
// os.Exit(1), for operators who want out of a hung graceful shutdown.
func InterruptListener() <-chan struct{} {
	c := make(chan struct{})
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		close(c)
		<-sigCh
		os.Exit(1)
	}()
	return c
}
