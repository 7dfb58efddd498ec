//go:build !unix && !windows

package wol

import "syscall"

func broadcastControl(_, _ string, _ syscall.RawConn) error {
	return nil
}
