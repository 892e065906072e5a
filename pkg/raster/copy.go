package raster

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CopyPath duplicates a file, or a directory tree of files, byte for byte.
// File drivers use it to implement Driver.Copy.
func CopyPath(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}

	if !info.IsDir() {
		return copyFile(src, dst, info.Mode())
	}

	if err := os.MkdirAll(dst, info.Mode().Perm()|0700); err != nil {
		return fmt.Errorf("copy mkdir %s: %w", dst, err)
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("copy readdir %s: %w", src, err)
	}
	for _, e := range entries {
		if err := CopyPath(filepath.Join(src, e.Name()), filepath.Join(dst, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	reader, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open+r '%s': %w", src, err)
	}
	defer reader.Close()

	writer, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm())
	if err != nil {
		return fmt.Errorf("open+w '%s': %w", dst, err)
	}
	if _, err := io.Copy(writer, reader); err != nil {
		writer.Close()
		return fmt.Errorf("copy '%s' -> '%s': %w", src, dst, err)
	}
	return writer.Close()
}
