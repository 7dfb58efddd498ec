//go:build windows

package wol

import (
	"syscall"

	"golang.org/x/sys/windows"
)

// broadcastControl sets SO_BROADCAST explicitly. The net package already
// enables it on UDP sockets on most platforms.
func broadcastControl(_, _ string, c syscall.RawConn) error {
	var sockErr error
	if err := c.Control(func(fd uintptr) {
		sockErr = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_BROADCAST, 1)
	}); err != nil {
		return err
	}
	return sockErr
}
