package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// ErrNoSocket is returned when no client socket could be found.
var ErrNoSocket = errors.New("ipc: no client socket found")

const maxPipes = 10

// Subdirectories of the runtime dir that sandboxed installs expose their
// socket under.
var socketDirs = []string{
	".",
	"..",
	"snap.discord",
	filepath.Join("app", "com.discordapp.Discord"),
	filepath.Join("app", "com.discordapp.DiscordCanary"),
}

func runtimeDir() string {
	if dir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR")); dir != "" {
		return dir
	}
	if runtime.GOOS == "linux" {
		dir := filepath.Join("/run/user", strconv.Itoa(os.Getuid()))
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
	}
	for _, key := range []string{"TMPDIR", "TMP", "TEMP"} {
		if dir := strings.TrimSpace(os.Getenv(key)); dir != "" {
			return dir
		}
	}
	return os.TempDir()
}

// SocketPath returns the socket for pipe n, or the first one that exists
// when n is negative.
func SocketPath(n int) (string, error) {
	if runtime.GOOS == "windows" {
		return "", fmt.Errorf("ipc: named pipes are not supported: %w", ErrNoSocket)
	}
	base := runtimeDir()
	pipes := []int{n}
	if n < 0 {
		pipes = pipes[:0]
		for i := 0; i < maxPipes; i++ {
			pipes = append(pipes, i)
		}
	}
	for _, sub := range socketDirs {
		for _, i := range pipes {
			path := filepath.Join(base, sub, "discord-ipc-"+strconv.Itoa(i))
			if info, err := os.Stat(path); err == nil && info.Mode()&os.ModeSocket != 0 {
				return path, nil
			}
		}
	}
	return "", ErrNoSocket
}

// DialSocket connects to the client socket for pipe n (any pipe when n is
// negative).
func DialSocket(ctx context.Context, n int) (net.Conn, error) {
	path, err := SocketPath(n)
	if err != nil {
		return nil, err
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", path, err)
	}
	return conn, nil
}
