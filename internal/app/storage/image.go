package storage

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"itamchat/internal/pkg/errs"
	"itamchat/internal/pkg/randx"
)

const (
	// MaxImageSizeMB is the maximum allowed image size in megabytes.
	MaxImageSizeMB = 5

	// MaxImageSize is the maximum allowed image size in bytes.
	MaxImageSize = MaxImageSizeMB * 1024 * 1024

	// PresignedURLDuration is the fixed duration for which upload and download URLs are valid.
	PresignedURLDuration = 5 * time.Minute

	chatKeyPrefix = "chats"
)

// AllowedMIMETypes defines the set of permitted image MIME types.
var AllowedMIMETypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
	"image/gif":  {},
}

// ExtToMIME maps file extensions to their corresponding MIME types.
var ExtToMIME = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
}

// ValidateImageSize checks if the provided file size is within acceptable limits.
func ValidateImageSize(fileSize int64) *errs.CustomError {
	if fileSize <= 0 {
		return errs.NewError(errs.ErrInvalidParams)
	}

	if fileSize > MaxImageSize {
		return errs.NewError(errs.ErrFileSizeTooLarge, MaxImageSizeMB)
	}

	return nil
}

// ValidateImageType checks that mimeType is an allowed image type and that the
// extension of fileName denotes the same type.
func ValidateImageType(fileName string, mimeType string) *errs.CustomError {
	lowerMimeType := strings.ToLower(strings.TrimSpace(mimeType))

	if _, ok := AllowedMIMETypes[lowerMimeType]; !ok {
		return errs.NewError(errs.ErrFileTypeInvalid)
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	if len(ext) < 2 {
		return errs.NewError(errs.ErrFileTypeInvalid)
	}

	expectedMIME, ok := ExtToMIME[ext]
	if !ok || expectedMIME != lowerMimeType {
		return errs.NewError(errs.ErrFileTypeInvalid)
	}

	return nil
}

// ChatImageKey builds the object key `chats/<chat_id>/<uuid><ext>` for an image in chatID.
func ChatImageKey(chatID uuid.UUID, fileName string) string {
	return randx.ObjectKey(fmt.Sprintf("%s/%s", chatKeyPrefix, chatID), fileName)
}

// ChatIDFromKey returns the chat an image key belongs to.
func ChatIDFromKey(key string) (uuid.UUID, error) {
	parts := strings.Split(key, "/")
	if len(parts) != 3 || parts[0] != chatKeyPrefix || parts[2] == "" || strings.Contains(key, "..") {
		return uuid.Nil, fmt.Errorf("malformed image key %q", key)
	}
	return randx.ParseID(parts[1])
}
