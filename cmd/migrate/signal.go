package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// signalExit is returned by a command's RunE when it was interrupted
// by a signal, so main can translate it to the signal's conventional
// exit code (spec.md §6.2: SIGINT -> 130, SIGTERM -> 143) while still
// going through cobra's ordinary error path.
type signalExit struct {
	code int
	sig  os.Signal
}

func (e *signalExit) Error() string { return fmt.Sprintf("interrupted by %s", e.sig) }

// withSignalCancel derives a context that is cancelled on SIGINT or
// SIGTERM, plus a cleanup func the caller must defer. If the context
// ends because of a signal, wrapErr turns the command's return error
// into a *signalExit; otherwise it returns err unchanged.
func withSignalCancel(parent context.Context) (ctx context.Context, wrapErr func(err error) error, cleanup func()) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	received := make(chan os.Signal, 1)
	go func() {
		select {
		case sig := <-sigCh:
			received <- sig
			cancel()
		case <-ctx.Done():
		}
	}()

	wrapErr = func(err error) error {
		select {
		case sig := <-received:
			return &signalExit{code: exitCodeForSignal(sig), sig: sig}
		default:
			return err
		}
	}
	cleanup = func() {
		signal.Stop(sigCh)
		cancel()
	}
	return ctx, wrapErr, cleanup
}

func exitCodeForSignal(sig os.Signal) int {
	switch sig {
	case syscall.SIGINT:
		return 130
	case syscall.SIGTERM:
		return 143
	default:
		return 1
	}
}

func exitCodeFor(err error) int {
	if se, ok := err.(*signalExit); ok {
		return se.code
	}
	return 1
}
