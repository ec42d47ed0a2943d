/*
Package storage stores chat images in S3-compatible object storage.

Clients upload directly to the bucket through presigned PUT URLs, or through the server
for small multipart uploads, and read back through short-lived presigned GET URLs.
Object keys are scoped by chat so access can be checked against membership.
*/
package storage

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"time"
)

// ErrObjectNotFound is returned by Stat for a key that does not exist in the bucket.
var ErrObjectNotFound = errors.New("storage: object not found")

// ServiceConfig holds the configuration required to connect to the storage service.
type ServiceConfig struct {
	S3BucketName      string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string

	// PublicBaseURL, when set, is the public prefix objects are served from.
	// Without it image URLs point back at the server's /files route.
	PublicBaseURL string
}

// ObjectInfo is the metadata of a stored object.
type ObjectInfo struct {
	ContentType string
	Size        int64
}

// StorageService defines the public interface for the file storage service.
type StorageService interface {
	// PresignUpload generates a pre-signed URL for uploading a file.
	PresignUpload(
		ctx context.Context,
		key string,
		mimeType string,
		fileSize int64,
		duration time.Duration,
	) (string, error)

	// PresignDownload generates a pre-signed URL for downloading a file.
	PresignDownload(ctx context.Context, key string, duration time.Duration) (string, error)

	// Upload stores body under key.
	Upload(ctx context.Context, key string, mimeType string, body io.Reader) error

	// Stat returns the object's metadata, or ErrObjectNotFound.
	Stat(ctx context.Context, key string) (ObjectInfo, error)

	// ImageURL is the URL clients put into a message's image_content for key.
	ImageURL(key string) string
}

// NewStorageService is the factory function for StorageService.
// It initializes and returns a concrete implementation based on the provided configuration.
func NewStorageService(cfg ServiceConfig) (StorageService, error) {
	// Currently, only S3 compatible implementations are supported.
	return newS3Client(cfg)
}

func imageURL(publicBaseURL, key string) string {
	if publicBaseURL == "" {
		return "/files?k=" + url.QueryEscape(key)
	}
	return strings.TrimSuffix(publicBaseURL, "/") + "/" + key
}
