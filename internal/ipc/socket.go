// Package ipc implements the registration transport: the short-lived
// SOCK_SEQPACKET conversation a client has with the server once, before
// switching to the shared-memory region for every subsequent request.
package ipc

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"path/filepath"
)

// socketDirEnv names the environment variable that overrides the default
// directory registration sockets are created in.
const socketDirEnv = "FINESSE_SOCKET_DIR"

const defaultSocketDir = "/var/run/finesse"

// SocketDir returns the directory registration sockets live in, honoring
// FINESSE_SOCKET_DIR when set.
func SocketDir() string {
	if dir := os.Getenv(socketDirEnv); dir != "" {
		return dir
	}
	return defaultSocketDir
}

// SocketPath derives a registration socket's path from a mount point: a
// fixed-length name independent of the mount point's own length. The full
// path still starts with SocketDir(), so a long socket directory can make
// it exceed the sun_path limit. The mount point is first
// canonicalized (symlinks resolved) so that two different spellings of
// the same mount always agree.
func SocketPath(mountPoint string) (string, error) {
	canon, err := canonicalize(mountPoint)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256([]byte(canon))
	name := hex.EncodeToString(sum[:])
	return fmt.Sprintf("%s/%s.sock", SocketDir(), name), nil
}

func canonicalize(mountPoint string) (string, error) {
	abs, err := filepath.Abs(mountPoint)
	if err != nil {
		return "", fmt.Errorf("ipc: %s: %w", mountPoint, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// The mount point may not exist yet on the server side of a fresh
		// registration; fall back to the absolute, non-symlink-resolved
		// path rather than failing the whole call.
		return abs, nil
	}
	return resolved, nil
}

// Listen creates (or re-creates, clearing a stale socket left by a crashed
// server) the SOCK_SEQPACKET registration listener for mountPoint.
func Listen(mountPoint string) (*net.UnixListener, error) {
	path, err := SocketPath(mountPoint)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(SocketDir(), 0755); err != nil {
		return nil, fmt.Errorf("ipc: mkdir %s: %w", SocketDir(), err)
	}

	if err := removeStale(path); err != nil {
		return nil, err
	}

	addr := &net.UnixAddr{Name: path, Net: "unixpacket"}
	l, err := net.ListenUnix("unixpacket", addr)
	if err != nil {
		return nil, fmt.Errorf("ipc: listen %s: %w", path, err)
	}
	return l, nil
}

// removeStale detects and removes a socket left behind by a server that
// exited without cleaning up: any failed connection attempt is taken to
// mean nothing is listening, and the path is unlinked before binding a
// fresh listener.
func removeStale(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("ipc: stat %s: %w", path, err)
	}

	conn, err := net.DialUnix("unixpacket", nil, &net.UnixAddr{Name: path, Net: "unixpacket"})
	if err == nil {
		conn.Close()
		return fmt.Errorf("ipc: %s: a server is already registered for this mount point", path)
	}

	return os.Remove(path)
}

// Dial connects to the registration socket for mountPoint.
func Dial(mountPoint string) (*net.UnixConn, error) {
	path, err := SocketPath(mountPoint)
	if err != nil {
		return nil, err
	}

	conn, err := net.DialUnix("unixpacket", nil, &net.UnixAddr{Name: path, Net: "unixpacket"})
	if err != nil {
		return nil, fmt.Errorf("ipc: dial %s: %w", path, err)
	}
	return conn, nil
}
