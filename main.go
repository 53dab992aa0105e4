// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"audiolens/cmd"
	applog "audiolens/internal/log"
	"audiolens/pkg/build"
)

// main is the entry point for audiolens.
//
// 1. Startup: build information, runtime settings, signal handling.
// 2. Run: the selected command owns the source, the engine and its
//    consumers until it returns or a termination signal arrives.
// 3. Shutdown: the command tears down in reverse order; main only flushes
//    the log and sets the exit status.
func main() {
	if err := build.Initialize(); err != nil {
		if !errors.Is(err, build.ErrMissingFlags) {
			applog.Fatalf("Build: %v", err)
		}
		applog.Debugf("Build: Running a development build (%v)", err)
	}

	// One thread for the capture callback and analysis ticks, one for UI and I/O.
	runtime.GOMAXPROCS(2)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.Execute(ctx, os.Args[1:])
	stop()
	applog.Sync()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
