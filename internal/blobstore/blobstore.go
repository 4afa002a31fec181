package blobstore

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store is durable object storage for uploaded receipt files. Upload returns
// a durable, publicly fetchable URL for the stored object.
type Store interface {
	Upload(ctx context.Context, objectName, contentType string, body io.Reader) (string, error)
	Download(ctx context.Context, objectName string) ([]byte, error)
}

// ObjectName builds a unique storage path for an uploaded file, keeping the
// original extension: "receipts/20060102_150405_1a2b3c4d.jpg".
func ObjectName(originalFilename string, now time.Time) string {
	ext := strings.TrimPrefix(path.Ext(originalFilename), ".")
	shortID := uuid.New().String()[:8]
	name := fmt.Sprintf("receipts/%s_%s", now.Format("20060102_150405"), shortID)
	if ext != "" {
		name += "." + ext
	}
	return name
}
