// Package panics provides goroutine-safe panic recovery wrappers used
// around every long-lived pipeline goroutine (worker, distributor, writer,
// pause controller, operator listener).
package panics

import (
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/krich11/qdayscanner/internal/logs"
)

// HandlePanic recovers a panic, logs it along with an optional caller-side
// stack trace, and exits the process. Intended to be deferred at the top of
// every spawned goroutine.
func HandlePanic(log *logs.Logger, goroutineStackTrace []byte) {
	err := recover()
	if err == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		log.Criticalf("Fatal error: %+v", err)
		if goroutineStackTrace != nil {
			log.Criticalf("Goroutine stack trace: %s", goroutineStackTrace)
		}
		log.Criticalf("Stack trace: %s", debug.Stack())
		log.Backend().Close()
		close(done)
	}()

	const timeout = 5 * time.Second
	select {
	case <-time.After(timeout):
		fmt.Fprintln(os.Stderr, "couldn't handle a fatal error, exiting")
	case <-done:
	}
	os.Exit(1)
}

// GoroutineWrapperFunc returns a spawn function that launches its argument
// in a new goroutine protected by HandlePanic.
func GoroutineWrapperFunc(log *logs.Logger) func(func()) {
	return func(f func()) {
		stackTrace := debug.Stack()
		go func() {
			defer HandlePanic(log, stackTrace)
			f()
		}()
	}
}

// AfterFuncWrapperFunc returns a time.AfterFunc wrapper whose callback is
// protected by HandlePanic.
func AfterFuncWrapperFunc(log *logs.Logger) func(d time.Duration, f func()) *time.Timer {
	return func(d time.Duration, f func()) *time.Timer {
		stackTrace := debug.Stack()
		return time.AfterFunc(d, func() {
			defer HandlePanic(log, stackTrace)
			f()
		})
	}
}

// Exit logs reason as a fatal condition and exits the process after giving
// the backend a bounded window to flush.
func Exit(log *logs.Logger, reason string) {
	done := make(chan struct{})
	go func() {
		log.Criticalf("Exiting: %s", reason)
		log.Backend().Close()
		close(done)
	}()

	const timeout = 5 * time.Second
	select {
	case <-time.After(timeout):
		fmt.Fprintln(os.Stderr, "couldn't exit gracefully")
	case <-done:
	}
	os.Exit(1)
}
