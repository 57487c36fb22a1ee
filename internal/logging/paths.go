package logging

import (
	"os"
	"path/filepath"
)

// HomeDir returns the docdex home directory (~/.docdex).
// Falls back to the current directory if the home dir cannot be resolved.
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".docdex"
	}
	return filepath.Join(home, ".docdex")
}

// LogDir returns the directory where log files are stored.
func LogDir() string {
	return filepath.Join(HomeDir(), "logs")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(LogDir(), "docdex.log")
}
