// Package backup creates and restores gzipped tar archives of the
// SchoolGate database and configuration file. Backups are taken
// offline via the CLI subcommands, not through the running server.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Backup writes the database and, when present, the configuration file
// into a gzipped tar archive at archivePath. Entries are stored under
// their base names so a restore lands them in a single directory.
func Backup(_ context.Context, dbPath, configPath, archivePath string) error {
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("database file not found: %s", dbPath)
	}

	if err := os.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
		return fmt.Errorf("creating archive directory: %w", err)
	}
	f, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}
	defer f.Close()

	gw := gzip.NewWriter(f)
	tw := tar.NewWriter(gw)

	if err := addFile(tw, dbPath); err != nil {
		return fmt.Errorf("archiving database: %w", err)
	}
	if configPath != "" {
		if err := addFile(tw, configPath); err != nil {
			return fmt.Errorf("archiving config: %w", err)
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("finalizing archive: %w", err)
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("finalizing compression: %w", err)
	}
	return nil
}

// addFile appends one file to the archive under its base name.
func addFile(tw *tar.Writer, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = filepath.Base(path)

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()
	_, err = io.Copy(tw, src)
	return err
}
