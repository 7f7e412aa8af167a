package ops

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/onelife/onelife/internal/config"
	"github.com/onelife/onelife/internal/db"
	"github.com/onelife/onelife/internal/errors"
	"github.com/onelife/onelife/internal/record"
)

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	Path string    // optional, default: <home>/exports/onelife-backup-YYYY-MM-DD.json
	Now  time.Time // optional, default time.Now()
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string `json:"path"`
	Count      int    `json:"count"`
	ExportedAt string `json:"exported_at"`
}

// ExportDocument returns every record as a backup document.
func ExportDocument(ctx context.Context, database *sql.DB, now time.Time) (*record.Document, error) {
	records, err := db.ListRecords(ctx, database, nil)
	if err != nil {
		return nil, err
	}
	doc := record.NewDocument(records, nowOr(now))
	return &doc, nil
}

// Export writes a backup document to a file. An existing file at the
// destination is only replaced once the new document is fully written.
func Export(ctx context.Context, database *sql.DB, cfg *config.Config, input ExportInput) (*ExportOutput, error) {
	now := nowOr(input.Now)

	exportPath := input.Path
	if exportPath == "" {
		dir, err := DefaultExportsDir()
		if err != nil {
			return nil, err
		}
		exportPath = filepath.Join(dir, DefaultBackupName(now))
	}

	// Validate default paths too; the exports dir may be a symlink
	if err := ValidatePath(exportPath, PathCheckWrite, cfg); err != nil {
		return nil, err
	}

	doc, err := ExportDocument(ctx, database, now)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	dir := filepath.Dir(exportPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := exportPath + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := file.Write(append(data, '\n')); err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := file.Sync(); err != nil {
		return nil, errors.NewInternal(err)
	}
	// Close before rename (required on Windows)
	if err := file.Close(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlink at the destination
	if info, err := os.Lstat(exportPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return nil, errors.NewInternal(fmt.Errorf("export path is a symlink"))
	}

	// On Windows os.Rename fails when the destination exists; keep the old
	// file rather than delete-then-rename.
	if err := os.Rename(tempPath, exportPath); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(exportPath); statErr == nil {
				return nil, errors.NewInvalidRequest("export destination already exists; choose a new path or delete the existing file")
			}
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return &ExportOutput{
		Path:       exportPath,
		Count:      len(doc.Records),
		ExportedAt: doc.ExportDate,
	}, nil
}

// DefaultBackupName returns onelife-backup-YYYY-MM-DD.json for the UTC date of now.
func DefaultBackupName(now time.Time) string {
	return "onelife-backup-" + now.UTC().Format("2006-01-02") + BackupExt
}
