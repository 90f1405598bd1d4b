//go:build !windows

package dthrottle

import (
	"net"
	"syscall"
)

// setReceiveBufferSyscall handles connections that don't expose
// SetReadBuffer directly, namely *net.UnixConn, by reaching through
// SyscallConn to set SO_RCVBUF on the raw file descriptor.
func setReceiveBufferSyscall(conn net.Conn, bytes int) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return
	}
	_ = raw.Control(func(fd uintptr) {
		_ = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_RCVBUF, bytes)
	})
}
