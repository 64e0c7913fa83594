// Package artifact stores enhanced images.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

const (
	DriverS3         = "s3"
	DriverSupabase   = "supabase"
	DriverFilesystem = "filesystem"

	DefaultBucket = "photos-generated"
)

// Store persists an artifact under a relative key
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Options selects and configures a Store implementation
type Options struct {
	Driver   string
	Bucket   string
	BasePath string
	S3       S3Options
	Supabase SupabaseOptions
}

// Open builds the Store selected by opts.Driver
func Open(ctx context.Context, opts Options) (Store, error) {
	bucket := strings.TrimSpace(opts.Bucket)
	if bucket == "" {
		bucket = DefaultBucket
	}

	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case DriverS3:
		return NewS3Store(ctx, bucket, opts.S3)
	case DriverSupabase:
		return NewSupabaseStore(bucket, opts.Supabase)
	case DriverFilesystem, "":
		return NewFileStore(filepath.Join(opts.BasePath, bucket))
	default:
		return nil, fmt.Errorf("artifact: unknown driver %q", opts.Driver)
	}
}

// Key builds the storage key of a prediction's enhanced image
func Key(ownerID, predictionID, ext string) string {
	return ownerID + "/" + predictionID + ext
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("artifact: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.ToSlash(filepath.Clean(key))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("artifact: invalid key")
	}
	return cleaned, nil
}
