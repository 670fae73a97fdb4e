//go:build !unix

package filewriter

import "os"

// No reopen signal outside unix; ReopenAll still works.
func reopenSignals() []os.Signal { return nil }
