package download

import (
	"archive/zip"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// calculateSHA1 hashes a downloaded file for integrity verification.
func calculateSHA1(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha1.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

// extractZip unpacks an archive into destDir, stripping a single top-level
// directory when the archive has one, and deletes the archive afterwards.
// onProgress receives the fraction of entries extracted.
func extractZip(archivePath, destDir string, onProgress func(fraction float64)) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("%w: opening archive %s: %v", ErrIntegrityFailure, filepath.Base(archivePath), err)
	}

	tmpDir := filepath.Join(destDir, "__tmp__")
	if err := os.MkdirAll(tmpDir, 0755); err != nil {
		reader.Close()
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	total := len(reader.File)
	for i, entry := range reader.File {
		if err := extractEntry(entry, tmpDir); err != nil {
			reader.Close()
			return err
		}
		if onProgress != nil && total > 0 {
			onProgress(float64(i+1) / float64(total))
		}
	}
	reader.Close()

	if err := flattenInto(tmpDir, destDir); err != nil {
		return err
	}

	os.RemoveAll(tmpDir)
	os.Remove(archivePath)
	return nil
}

func extractEntry(entry *zip.File, destDir string) error {
	name := filepath.FromSlash(entry.Name)
	if strings.Contains(name, "..") {
		return fmt.Errorf("%w: archive entry escapes destination: %s", ErrIntegrityFailure, entry.Name)
	}
	target := filepath.Join(destDir, name)

	if entry.FileInfo().IsDir() {
		if err := os.MkdirAll(target, 0755); err != nil {
			return fmt.Errorf("%w: %v", ErrStorageFailure, err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("%w: reading archive entry %s: %v", ErrIntegrityFailure, entry.Name, err)
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("%w: extracting %s: %v", ErrIntegrityFailure, entry.Name, err)
	}
	return nil
}

// flattenInto moves extracted content up into destDir. When the extraction
// produced exactly one directory, its children are promoted instead, matching
// how storefront archives wrap everything in a product-id folder.
func flattenInto(tmpDir, destDir string) error {
	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	prefix := tmpDir
	if len(entries) == 1 && entries[0].IsDir() {
		prefix = filepath.Join(tmpDir, entries[0].Name())
		if entries, err = os.ReadDir(prefix); err != nil {
			return fmt.Errorf("%w: %v", ErrStorageFailure, err)
		}
	}

	for _, entry := range entries {
		from := filepath.Join(prefix, entry.Name())
		to := filepath.Join(destDir, entry.Name())
		if err := os.Rename(from, to); err != nil {
			return fmt.Errorf("%w: %v", ErrStorageFailure, err)
		}
	}
	return nil
}
