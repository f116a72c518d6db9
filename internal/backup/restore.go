package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// maxEntrySize caps a single extracted file to guard against
// decompression bombs.
const maxEntrySize = 10 << 30 // 10 GiB

// Restore extracts a backup archive into targetDir. Archives written by
// Backup hold flat base-name entries (the database plus an optional
// config file); anything absolute, dotted, or nested is rejected before
// it can touch the filesystem. Existing files are preserved unless
// force is true.
func Restore(_ context.Context, archivePath, targetDir string, force bool) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("decompressing archive: %w", err)
	}
	defer gr.Close()

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return fmt.Errorf("creating target directory: %w", err)
	}

	tr := tar.NewReader(gr)
	foundDB := false
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading archive entry: %w", err)
		}

		name, err := entryName(hdr.Name)
		if err != nil {
			return err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if strings.HasSuffix(name, ".db") {
			foundDB = true
		}

		dest := filepath.Join(targetDir, name)
		if !force {
			if _, err := os.Stat(dest); err == nil {
				return fmt.Errorf("file already exists (use --force to overwrite): %s", dest)
			}
		}
		if err := writeEntry(tr, dest, hdr); err != nil {
			return fmt.Errorf("extracting %s: %w", name, err)
		}
	}

	if !foundDB {
		return fmt.Errorf("invalid backup: archive does not contain a .db file")
	}
	return nil
}

// entryName validates a tar entry against the flat layout Backup
// produces and returns the cleaned base name.
func entryName(name string) (string, error) {
	if filepath.IsAbs(name) || strings.Contains(name, "..") {
		return "", fmt.Errorf("path traversal detected: %q", name)
	}
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) {
		return "", fmt.Errorf("unexpected nested entry %q: backup archives hold flat files", name)
	}
	return cleaned, nil
}

// writeEntry writes one regular file from the archive, capped at
// maxEntrySize.
func writeEntry(tr *tar.Reader, dest string, hdr *tar.Header) error {
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode&0o777)) //nolint:gosec // G115: mode bits masked to the permission range
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, io.LimitReader(tr, maxEntrySize)); err != nil {
		return err
	}
	return out.Close()
}
