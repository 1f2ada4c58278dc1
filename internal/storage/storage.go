// Package storage persists finished recordings. Live sessions never touch it;
// plain recording mode stores one WAV per session.
package storage

import (
	"context"
	"io"
)

type Uploader interface {
	Upload(ctx context.Context, objectName string, contentType string, r io.Reader) (storedPath string, err error)
}
