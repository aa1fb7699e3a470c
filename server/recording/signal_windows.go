//go:build windows
// +build windows

package recording

import "os"

var interruptSignal = os.Kill
