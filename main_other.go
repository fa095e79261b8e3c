//go:build !linux

package main

import (
	"runtime"

	"golang.design/x/hotkey/mainthread"
)

func init() {
	runtime.LockOSThread()
}

// The global hotkey API must be driven from the main thread on darwin.
func main() {
	mainthread.Init(run)
}
