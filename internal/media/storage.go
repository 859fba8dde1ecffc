package media

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
)

// Sentinel errors for the media package.
var (
	ErrStorageKeyNotFound = errors.New("storage key not found")
	ErrUnsupportedFormat  = errors.New("unsupported file format")
	ErrInvalidImage       = errors.New("file is not a decodable image")
)

// imageExts and videoExts are the upload whitelists. Anything else is rejected before a byte is written.
var (
	imageExts = map[string]struct{}{
		".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}, ".bmp": {}, ".svg": {},
	}
	videoExts = map[string]struct{}{
		".mp4": {}, ".webm": {}, ".ogg": {}, ".avi": {}, ".mov": {}, ".wmv": {}, ".flv": {}, ".mkv": {},
	}
)

// AllowedExt reports whether the file name carries an extension on the image or video whitelist. The normalised
// lower-case extension, with leading dot, is returned for key construction.
func AllowedExt(filename string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := imageExts[ext]; ok {
		return ext, true
	}
	if _, ok := videoExts[ext]; ok {
		return ext, true
	}
	return ext, false
}

// IsImageExt reports whether the extension (with leading dot) is on the image whitelist.
func IsImageExt(ext string) bool {
	_, ok := imageExts[strings.ToLower(ext)]
	return ok
}

// KeyFromURL recovers the storage key from a public media URL as stored in chat history. Returns "" when the URL
// does not point into the media tree.
func KeyFromURL(url string) string {
	idx := strings.Index(url, "/media/")
	if idx < 0 {
		return ""
	}
	return url[idx+len("/media/"):]
}

// StorageProvider abstracts where uploaded media bytes live. Keys are opaque names handed out at upload time;
// callers never supply paths of their own.
type StorageProvider interface {
	Put(ctx context.Context, key string, r io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}
