//go:build !windows
// +build !windows

package recording

import "syscall"

var interruptSignal = syscall.SIGINT
