//go:build unix

package filewriter

import (
	"os"

	"golang.org/x/sys/unix"
)

func reopenSignals() []os.Signal {
	return []os.Signal{unix.SIGHUP}
}
