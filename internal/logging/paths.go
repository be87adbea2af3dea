package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// DirEnv overrides the log directory.
const DirEnv = "PDFRAG_LOG_DIR"

// LogDir is where pdfrag keeps its logs: $PDFRAG_LOG_DIR, else
// ~/.pdfrag/logs, else a directory under the system temp dir.
func LogDir() string {
	if dir := os.Getenv(DirEnv); dir != "" {
		return dir
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".pdfrag", "logs")
	}
	return filepath.Join(os.TempDir(), "pdfrag-logs")
}

// LogPath is the server log inside LogDir.
func LogPath() string {
	return filepath.Join(LogDir(), "server.log")
}

// FindLogFile resolves the log to read: explicit when given, else LogPath.
func FindLogFile(explicit string) (string, error) {
	path := explicit
	if path == "" {
		path = LogPath()
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("no log file at %s; run a pdfrag command first", path)
	}
	return path, nil
}
