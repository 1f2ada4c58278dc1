package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/starcoach/starcoach/internal/utils"
)

// LocalUploader writes recordings under a base directory. The write goes
// through a temp file and a rename, so a crash mid-write never leaves a
// half-finished recording behind.
type LocalUploader struct {
	base string
}

func NewLocalUploader(base string) (*LocalUploader, error) {
	const op = "LocalUploader.New"
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create recordings directory", err)
	}
	return &LocalUploader{base: base}, nil
}

func (u *LocalUploader) Upload(ctx context.Context, objectName string, contentType string, r io.Reader) (string, error) {
	const op = "LocalUploader.Upload"

	dst := filepath.Join(u.base, filepath.Base(objectName))

	tmp, err := os.CreateTemp(u.base, ".upload-*")
	if err != nil {
		return "", utils.E(utils.CodeInternal, op, "failed to store recording", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", utils.E(utils.CodeInternal, op, "failed to store recording", err)
	}
	if err := tmp.Close(); err != nil {
		return "", utils.E(utils.CodeInternal, op, "failed to store recording", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", utils.E(utils.CodeInternal, op, "failed to store recording", err)
	}
	return dst, nil
}
