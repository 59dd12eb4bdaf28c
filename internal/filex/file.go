// Package filex handles the local media spool: staged copies of user media
// that pending queue items reference, so an item survives the source file
// being moved or deleted before upload.
package filex

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

func EnsureSubDir(dirName string) (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getwd: %w", err)
	}

	dir := filepath.Join(cwd, dirName)

	if err := os.MkdirAll(dir, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	return dir, nil
}

// Stage copies srcPath into the named spool directory under a fresh unique
// name and returns the staged path. The original extension is preserved so
// operators can still open staged files by hand.
func Stage(srcPath, dirName string) (string, error) {
	dir, err := EnsureSubDir(dirName)
	if err != nil {
		return "", fmt.Errorf("error creating dir: %w", err)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("error opening source: %w", err)
	}
	defer src.Close()

	staged := filepath.Join(dir, uuid.NewString()+filepath.Ext(srcPath))

	dst, err := os.Create(staged)
	if err != nil {
		return "", fmt.Errorf("error creating staged file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("error copying to spool: %w", err)
	}

	return staged, nil
}
