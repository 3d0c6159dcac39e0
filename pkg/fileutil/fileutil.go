package fileutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rohmanhakim/sitecrawl/pkg/failure"
)

// GetFileExtension extracts the file extension from a path, or empty string if none
func GetFileExtension(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return ""
	}
	// Remove the leading dot
	return strings.TrimPrefix(ext, ".")
}

// EnsureDir check if a given directory plus the following path exist, then create one if not
func EnsureDir(dir string, path ...string) failure.ClassifiedError {
	targetPath := []string{dir}
	targetPath = append(targetPath, path...)

	assetsDir := filepath.Join(targetPath...)
	if err := os.MkdirAll(assetsDir, 0755); err != nil {
		return &FileError{
			Message:   fmt.Sprintf("%v", err),
			Retryable: false,
			Cause:     ErrCausePathError,
		}
	}
	return nil
}

// AtomicWrite writes data to finalPath via write-temp-then-rename, fsyncing
// the temp file before the rename so a crash mid-write never leaves a
// partially-written artifact at finalPath. The temp file lives alongside
// finalPath so the rename is same-filesystem and therefore atomic.
func AtomicWrite(finalPath string, data []byte) failure.ClassifiedError {
	dir := filepath.Dir(finalPath)
	if err := EnsureDir(dir); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return classifyWriteErr(err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return classifyWriteErr(err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return classifyWriteErr(err)
	}
	if err := tmp.Close(); err != nil {
		return classifyWriteErr(err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return classifyWriteErr(err)
	}
	return nil
}

func classifyWriteErr(err error) *FileError {
	if errors.Is(err, syscall.ENOSPC) {
		return &FileError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseDiskFull,
		}
	}
	return &FileError{
		Message:   err.Error(),
		Retryable: true,
		Cause:     ErrCauseWriteFail,
	}
}
