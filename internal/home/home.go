// Package home manages the snapgloss home directory layout. Media blobs,
// the config file and the server pid file all live under one root
// (~/.snapgloss by default).
package home

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

const (
	// DefaultDirName is the default name for the snapgloss home directory.
	DefaultDirName = ".snapgloss"

	// MediaDirName is the subdirectory for ingested media blobs.
	MediaDirName = "media"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// PidFileName is the server pid file name.
	PidFileName = "snapgloss.pid"
)

// Dir represents the snapgloss home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.snapgloss).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// MediaPath returns the path to the media directory.
func (d *Dir) MediaPath() string {
	return filepath.Join(d.path, MediaDirName)
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	// Create media directory (this also creates the parent)
	if err := os.MkdirAll(d.MediaPath(), 0o755); err != nil {
		return fmt.Errorf("failed to create media directory: %w", err)
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}

// MediaDir returns the directory holding a document's media blobs.
func (d *Dir) MediaDir(documentID string) string {
	return filepath.Join(d.MediaPath(), documentID)
}

// PageImagePath returns the path to a specific page image.
// Page numbers are 1-indexed; single-image documents use page 1.
func (d *Dir) PageImagePath(documentID string, pageNum int) string {
	return filepath.Join(d.MediaDir(documentID), fmt.Sprintf("page_%04d.png", pageNum))
}

// PageImagePaths returns paths for all pages of a document.
func (d *Dir) PageImagePaths(documentID string, pageCount int) []string {
	paths := make([]string, pageCount)
	for i := 1; i <= pageCount; i++ {
		paths[i-1] = d.PageImagePath(documentID, i)
	}
	return paths
}

// OriginalPath returns where a document's uploaded original is kept.
// ext carries the dot ("original.pdf", "original.jpg").
func (d *Dir) OriginalPath(documentID, ext string) string {
	return filepath.Join(d.MediaDir(documentID), "original"+ext)
}

// EnsureMediaDir creates the media directory for a document.
func (d *Dir) EnsureMediaDir(documentID string) error {
	return os.MkdirAll(d.MediaDir(documentID), 0o755)
}

// RemoveMediaDir deletes a document's media blobs.
func (d *Dir) RemoveMediaDir(documentID string) error {
	return os.RemoveAll(d.MediaDir(documentID))
}

// PidPath returns the path to the server pid file.
func (d *Dir) PidPath() string {
	return filepath.Join(d.path, PidFileName)
}

// WritePid writes the current process ID to the pid file.
func (d *Dir) WritePid() error {
	return os.WriteFile(d.PidPath(), []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// ReadPid reads the process ID from the pid file.
func (d *Dir) ReadPid() (int, error) {
	data, err := os.ReadFile(d.PidPath())
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid pid file contents: %w", err)
	}
	return pid, nil
}

// RemovePid removes the pid file.
func (d *Dir) RemovePid() {
	_ = os.Remove(d.PidPath())
}

// IsProcessAlive checks whether a process with the given PID is running.
func IsProcessAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 checks existence without sending a real signal.
	return proc.Signal(syscall.Signal(0)) == nil
}
