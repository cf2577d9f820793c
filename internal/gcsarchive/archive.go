// Package gcsarchive keeps copies of receipt photos in a bucket and reads
// objects back by gs:// URI.
package gcsarchive

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ObjectStore reads and writes whole objects.
type ObjectStore interface {
	Put(ctx context.Context, bucket, object, contentType string, data []byte) error
	Get(ctx context.Context, bucket, object string) ([]byte, error)
}

var extensions = map[string]string{
	"image/jpeg":      "jpg",
	"image/png":       "png",
	"image/webp":      "webp",
	"image/heic":      "heic",
	"image/gif":       "gif",
	"application/pdf": "pdf",
}

// Archiver uploads receipts under
// receipts/<user>/<yyyy>/<mm>/<dd>/<uuid>.<ext>.
type Archiver struct {
	store  ObjectStore
	bucket string
	now    func() time.Time
	newID  func() string
}

// New creates an Archiver writing to bucket.
func New(store ObjectStore, bucket string) *Archiver {
	return &Archiver{
		store:  store,
		bucket: bucket,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// ArchiveReceipt uploads data and returns its gs:// URI.
func (a *Archiver) ArchiveReceipt(ctx context.Context, userKey string, data []byte, mimeType string) (string, error) {
	object := ObjectName(userKey, a.now(), a.newID(), mimeType)
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	if err := a.store.Put(ctx, a.bucket, object, mimeType, data); err != nil {
		return "", fmt.Errorf("ArchiveReceipt: %w", err)
	}
	return "gs://" + a.bucket + "/" + object, nil
}

// ObjectName builds the object path of a receipt.
func ObjectName(userKey string, at time.Time, id, mimeType string) string {
	ext, ok := extensions[strings.ToLower(mimeType)]
	if !ok {
		ext = "bin"
	}
	return path.Join("receipts", userKey, at.UTC().Format("2006/01/02"), id+"."+ext)
}

// ParseURI splits gs://bucket/path/to/object.
func ParseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// FetchFromGCS downloads the object at a gs:// URI.
func FetchFromGCS(ctx context.Context, store ObjectStore, uri string) ([]byte, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return nil, fmt.Errorf("FetchFromGCS: %w", err)
	}
	data, err := store.Get(ctx, bucket, object)
	if err != nil {
		return nil, fmt.Errorf("FetchFromGCS: %w", err)
	}
	return data, nil
}

// FilenameFromURI returns the last path element of a gs:// URI.
// e.g., "gs://bucket/folder/file.jpg" → "file.jpg"
func FilenameFromURI(uri string) string {
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}
