package backup

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	filePrefix = "oracle-"
	fileSuffix = ".db"
	stampFmt   = "20060102T150405Z"
)

// FileName returns the backup file name for a snapshot taken at t.
func FileName(t time.Time) string {
	return filePrefix + t.UTC().Format(stampFmt) + fileSuffix
}

// Snapshot copies the database at dbPath into dir, named after now, and
// checks the copy's integrity. VACUUM INTO gives a consistent copy even
// while the server holds the database open in WAL mode.
func Snapshot(ctx context.Context, dbPath, dir string, now time.Time) (*Result, error) {
	start := time.Now()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("backup: failed to create directory: %w", err)
	}
	dest := filepath.Join(dir, FileName(now))
	if _, err := os.Stat(dest); err == nil {
		return nil, fmt.Errorf("backup: %s already exists", dest)
	}

	src, err := openReadOnly(dbPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = src.Close() }()

	if _, err := src.ExecContext(ctx, "VACUUM INTO '"+strings.ReplaceAll(dest, "'", "''")+"'"); err != nil {
		return nil, fmt.Errorf("backup: failed to copy database: %w", err)
	}

	if err := Verify(ctx, dest); err != nil {
		_ = os.Remove(dest)
		return nil, err
	}

	fi, err := os.Stat(dest)
	if err != nil {
		return nil, fmt.Errorf("backup: failed to stat %s: %w", dest, err)
	}
	return &Result{
		Info:     Info{Path: dest, Timestamp: now.UTC().Truncate(time.Second), Size: fi.Size()},
		Duration: time.Since(start),
	}, nil
}

// Verify runs SQLite's integrity check on a backup and makes sure it holds
// the entity tables.
func Verify(ctx context.Context, path string) error {
	db, err := openReadOnly(path)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("backup: failed to run integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("backup: integrity check failed: %s", result)
	}

	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entities").Scan(&n); err != nil {
		return fmt.Errorf("backup: %s has no entity table: %w", path, err)
	}
	return nil
}

// Restore replaces the database at targetPath with a verified backup.
// The server must not have the target open.
func Restore(ctx context.Context, backupPath, targetPath string) error {
	if err := Verify(ctx, backupPath); err != nil {
		return fmt.Errorf("backup verification failed: %w", err)
	}

	src, err := os.Open(backupPath)
	if err != nil {
		return fmt.Errorf("backup: failed to open backup: %w", err)
	}
	defer func() { _ = src.Close() }()

	// Write beside the target and rename so a failed copy never leaves a
	// truncated database behind.
	tmp := targetPath + ".restore"
	dst, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("backup: failed to create target file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("backup: failed to copy backup: %w", err)
	}
	if err := dst.Sync(); err != nil {
		_ = dst.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("backup: failed to sync target: %w", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("backup: failed to close target: %w", err)
	}

	// Stale WAL files would be replayed over the restored database.
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(targetPath + suffix); err != nil && !os.IsNotExist(err) {
			_ = os.Remove(tmp)
			return fmt.Errorf("backup: failed to remove %s: %w", targetPath+suffix, err)
		}
	}
	if err := os.Rename(tmp, targetPath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("backup: failed to replace target: %w", err)
	}
	return nil
}

func openReadOnly(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("backup: %w", err)
	}
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, fmt.Errorf("backup: failed to open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("backup: failed to ping %s: %w", path, err)
	}
	return db, nil
}
