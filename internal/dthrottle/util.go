package dthrottle

import (
	"os"
	"strconv"
)

// osStderr is the default destination for StdLogger when the caller
// doesn't supply its own io.Writer, kept as a package variable (rather
// than calling os.Stderr inline everywhere) so tests can swap it.
var osStderr = os.Stderr

// portAddr turns a bare port number into a listen address bound to all
// interfaces, matching throttleapp.cpp's FLSocket(port) constructor
// (which binds INADDR_ANY).
func portAddr(port int) string {
	return ":" + strconv.Itoa(port)
}
