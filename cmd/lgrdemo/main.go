// Command lgrdemo wires a custom level, two loggers sharing a rolling file
// writer, a console writer and an optional HTTP event collector, then shuts
// everything down on SIGINT/SIGTERM or after --duration.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
