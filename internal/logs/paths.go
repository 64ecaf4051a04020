package logs

import (
	"os"
	"path/filepath"
	"runtime"
)

// appName is the directory segment used under each platform's standard
// state/log location.
const appName = "db2i-mcp-gateway"

// DefaultDir returns the platform-standard log directory. Linux follows
// the XDG Base Directory Specification; other platforms fall back to the
// user's home directory.
func DefaultDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if v := os.Getenv("LOCALAPPDATA"); v != "" {
			return filepath.Join(v, appName, "logs"), nil
		}
	case "darwin":
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, "Library", "Logs", appName), nil
		}
	default:
		if os.Getuid() == 0 {
			return filepath.Join("/var/log", appName), nil
		}
		if v := os.Getenv("XDG_STATE_HOME"); v != "" {
			return filepath.Join(v, appName, "logs"), nil
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", appName, "logs"), nil
}

// FilePath resolves the on-disk path for a log file, creating dir (or the
// platform default when dir is empty) if necessary.
func FilePath(dir, filename string) (string, error) {
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return "", err
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(dir, filename), nil
}
