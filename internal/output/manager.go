package output

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	derrors "git.home.luguber.info/inful/distbuilder/internal/errors"
	"git.home.luguber.info/inful/distbuilder/internal/logfields"
)

// Manager performs output tree operations rooted at a single directory.
type Manager struct {
	root string
}

// NewManager creates a manager for the given absolute output root.
func NewManager(root string) *Manager {
	return &Manager{root: filepath.Clean(root)}
}

// Root returns the output root.
func (m *Manager) Root() string {
	return m.root
}

// Clear recursively deletes and recreates the output root.
func (m *Manager) Clear() error {
	if err := os.RemoveAll(m.root); err != nil {
		return derrors.FilesystemError("clear", err).WithContext("path", m.root)
	}
	if err := os.MkdirAll(m.root, 0o750); err != nil {
		return derrors.FilesystemError("clear", err).WithContext("path", m.root)
	}
	slog.Debug("Cleared output tree", logfields.Path(m.root))
	return nil
}

// Invalidate deletes exactly one destination. A missing file is not an error.
func (m *Manager) Invalidate(dest string) error {
	if err := m.checkInside(dest); err != nil {
		return err
	}
	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		return derrors.FilesystemError("invalidate", err).WithContext("path", dest)
	}
	slog.Debug("Invalidated destination", logfields.Path(dest))
	return nil
}

// WriteArtifact writes contents to dest, creating parent directories.
func (m *Manager) WriteArtifact(dest string, contents []byte) error {
	if err := m.checkInside(dest); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return derrors.FilesystemError("mkdir", err).WithContext("path", dest)
	}
	// #nosec G306 -- build output is world-readable like the package it ships
	if err := os.WriteFile(dest, contents, 0o644); err != nil {
		return derrors.FilesystemError("write", err).WithContext("path", dest)
	}
	return nil
}

// CopyAsset copies src to dest, preserving the file mode.
func (m *Manager) CopyAsset(src, dest string) error {
	if err := m.checkInside(dest); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return derrors.AssetIOError(dest, err)
	}
	if err := copyFile(src, dest); err != nil {
		return derrors.AssetIOError(src, err).WithContext("destination", dest)
	}
	return nil
}

// RemoveArtifact deletes dest (file or directory) and prunes parent
// directories left empty, stopping at the output root.
func (m *Manager) RemoveArtifact(dest string) error {
	if err := m.checkInside(dest); err != nil {
		return err
	}
	if err := os.RemoveAll(dest); err != nil {
		return derrors.FilesystemError("remove", err).WithContext("path", dest)
	}
	for dir := filepath.Dir(dest); dir != m.root && strings.HasPrefix(dir, m.root); dir = filepath.Dir(dir) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			break
		}
		if err := os.Remove(dir); err != nil {
			break
		}
	}
	slog.Info("Removed artifact", logfields.Path(dest))
	return nil
}

func (m *Manager) checkInside(p string) error {
	rel, err := filepath.Rel(m.root, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return derrors.FilesystemError("guard", fmt.Errorf("path %s is outside output root %s", p, m.root))
	}
	return nil
}

func copyFile(src, dst string) error {
	srcFile, err := os.Open(filepath.Clean(src))
	if err != nil {
		return err
	}
	defer func() {
		_ = srcFile.Close()
	}()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return err
	}

	dstFile, err := os.OpenFile(filepath.Clean(dst), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, srcInfo.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(dstFile, srcFile); err != nil {
		_ = dstFile.Close()
		return err
	}
	if err := dstFile.Close(); err != nil {
		return err
	}
	return os.Chmod(dst, srcInfo.Mode().Perm())
}
