//go:build windows

package dthrottle

import "net"

// setReceiveBufferSyscall is a no-op on windows: *net.UnixConn there has
// no stable raw-fd sockopt path worth the platform-specific code, and
// this tuning is best-effort by design (spec.md §4.5).
func setReceiveBufferSyscall(net.Conn, int) {}
