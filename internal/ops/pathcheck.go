package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/onelife/onelife/internal/config"
	"github.com/onelife/onelife/internal/errors"
)

// PathCheckMode indicates whether the path check is for reading or writing.
type PathCheckMode int

const (
	PathCheckRead  PathCheckMode = iota // import
	PathCheckWrite                      // export
)

// ValidatePath checks a backup file path before import or export:
//   - no ".." components
//   - a .json extension
//   - the file sits directly in <home>/exports or an allowed_paths entry
//     (subdirectories are rejected so no intermediate component can be swapped
//     for a symlink between validation and open)
//   - neither the file nor its parent directory is a symlink
//
// AllowUnsafePaths lifts the directory restriction only.
func ValidatePath(path string, mode PathCheckMode, cfg *config.Config) error {
	if path == "" {
		return errors.NewInvalidRequest("path is required")
	}
	if containsTraversal(path) {
		return errors.NewInvalidRequest("path must not contain directory traversal (..)")
	}

	cleaned := filepath.Clean(path)
	if !strings.EqualFold(filepath.Ext(cleaned), BackupExt) {
		return errors.NewInvalidRequest("backup path must have " + BackupExt + " extension")
	}
	absPath, err := filepath.Abs(cleaned)
	if err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid path: %v", err))
	}

	if cfg == nil || !cfg.AllowUnsafePaths {
		backupDirs, err := allowedBackupDirs(cfg)
		if err != nil {
			return err
		}
		parent := filepath.Dir(absPath)
		if !isBackupDir(parent, backupDirs) {
			return errors.NewInvalidRequest(fmt.Sprintf(
				"backup file must be directly in an allowed directory (no subdirectories); allowed: %v", backupDirs))
		}
		if err := rejectSymlink(parent, "parent directory"); err != nil {
			return err
		}
	}

	if mode == PathCheckRead {
		if _, err := os.Stat(absPath); os.IsNotExist(err) {
			return errors.NewNotFound(path)
		}
	}
	return rejectSymlink(absPath, "path")
}

// rejectSymlink fails when path exists and is a symlink.
func rejectSymlink(path, what string) error {
	info, err := os.Lstat(path)
	if err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest(what + " must not be a symlink")
	}
	return nil
}

// allowedBackupDirs returns <home>/exports followed by the absolute
// allowed_paths entries. A symlinked entry is matched by its real target.
func allowedBackupDirs(cfg *config.Config) ([]string, error) {
	exportsDir, err := DefaultExportsDir()
	if err != nil {
		return nil, err
	}
	candidates := []string{exportsDir}
	if cfg != nil {
		for _, p := range cfg.AllowedPaths {
			if filepath.IsAbs(p) {
				candidates = append(candidates, p)
			}
		}
	}

	dirs := make([]string, 0, len(candidates))
	for _, d := range candidates {
		abs, err := filepath.Abs(filepath.Clean(d))
		if err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid allowed path: %v", err))
		}
		if info, err := os.Lstat(abs); err == nil && info.Mode()&os.ModeSymlink != 0 {
			if abs, err = filepath.EvalSymlinks(abs); err != nil {
				return nil, errors.NewInvalidRequest(fmt.Sprintf("cannot resolve symlink in allowed path: %v", err))
			}
		}
		dirs = append(dirs, abs)
	}
	return dirs, nil
}

// isBackupDir reports whether dir is exactly one of dirs; being nested below
// one is not enough.
func isBackupDir(dir string, dirs []string) bool {
	dir = filepath.Clean(dir)
	for _, d := range dirs {
		if dir == filepath.Clean(d) {
			return true
		}
	}
	return false
}

// DefaultExportsDir returns <home>/exports.
func DefaultExportsDir() (string, error) {
	home, err := config.Home()
	if err != nil {
		return "", errors.NewInternal(err)
	}
	return filepath.Join(home, "exports"), nil
}

// containsTraversal reports whether any component of path is "..". Forward
// slashes count as separators on every platform.
func containsTraversal(path string) bool {
	parts := strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == filepath.Separator
	})
	for _, part := range parts {
		if part == ".." {
			return true
		}
	}
	return false
}
