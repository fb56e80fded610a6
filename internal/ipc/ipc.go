// Package ipc provides the local Unix-socket channel used by the CLI
// tools (copy/paste/status) to talk to a running clipbridge daemon.
//
// The channel speaks the same newline-delimited JSON protocol as the
// host link, unencrypted: the socket is local and owner-restricted by
// the OS.
package ipc

import (
	"net"
	"os"
	"path/filepath"
)

// SocketPath returns the path of the IPC socket, preferring
// XDG_RUNTIME_DIR and honouring a CLIPBRIDGE_SOCKET override.
func SocketPath() string {
	if s := os.Getenv("CLIPBRIDGE_SOCKET"); s != "" {
		return s
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "clipbridge.sock")
	}
	return filepath.Join(os.TempDir(), "clipbridge.sock")
}

// IsRunning reports whether a daemon appears to be listening on the
// IPC socket. It does a cheap dial-and-close; no data is exchanged.
func IsRunning() bool {
	c, err := net.Dial("unix", SocketPath())
	if err != nil {
		return false
	}
	_ = c.Close()
	return true
}

// Listen creates a net.Listener on the IPC socket path, removing any
// stale socket from a previous (crashed) run first.
func Listen() (net.Listener, error) {
	path := SocketPath()
	_ = os.Remove(path)
	return net.Listen("unix", path)
}

// Dial connects to a running daemon's IPC socket.
func Dial() (net.Conn, error) {
	return net.Dial("unix", SocketPath())
}
