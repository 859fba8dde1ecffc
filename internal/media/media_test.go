package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"strings"
	"testing"
)

func TestAllowedExt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		filename string
		wantExt  string
		wantOK   bool
	}{
		{"clip.mp4", ".mp4", true},
		{"photo.JPG", ".jpg", true},
		{"photo.jpeg", ".jpeg", true},
		{"anim.webp", ".webp", true},
		{"movie.mkv", ".mkv", true},
		{"payload.exe", ".exe", false},
		{"script.js", ".js", false},
		{"noext", "", false},
	}
	for _, tt := range tests {
		ext, ok := AllowedExt(tt.filename)
		if ext != tt.wantExt || ok != tt.wantOK {
			t.Errorf("AllowedExt(%q) = (%q, %v), want (%q, %v)", tt.filename, ext, ok, tt.wantExt, tt.wantOK)
		}
	}
}

func TestIsImageExt(t *testing.T) {
	t.Parallel()
	if !IsImageExt(".png") || !IsImageExt(".SVG") {
		t.Error("image extensions not recognised")
	}
	if IsImageExt(".mp4") {
		t.Error(".mp4 recognised as image")
	}
}

func TestKeyFromURL(t *testing.T) {
	t.Parallel()
	if got := KeyFromURL("/media/abc.png"); got != "abc.png" {
		t.Errorf("KeyFromURL = %q, want abc.png", got)
	}
	if got := KeyFromURL("https://example.com/media/avatars/u.jpg"); got != "avatars/u.jpg" {
		t.Errorf("KeyFromURL = %q, want avatars/u.jpg", got)
	}
	if got := KeyFromURL("hello there"); got != "" {
		t.Errorf("KeyFromURL = %q, want empty for non-media content", got)
	}
}

func TestLocalStoragePutGetDelete(t *testing.T) {
	t.Parallel()
	storage, err := NewLocalStorage(t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}
	t.Cleanup(func() { _ = storage.Close() })
	ctx := context.Background()

	if err := storage.Put(ctx, "avatars/u.jpg", strings.NewReader("jpeg bytes")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	rc, err := storage.Get(ctx, "avatars/u.jpg")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "jpeg bytes" {
		t.Errorf("Get() = %q, want the stored bytes", data)
	}

	if err := storage.Delete(ctx, "avatars/u.jpg"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := storage.Get(ctx, "avatars/u.jpg"); !errors.Is(err, ErrStorageKeyNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrStorageKeyNotFound", err)
	}

	// Deleting a missing key is not an error.
	if err := storage.Delete(ctx, "never-existed.png"); err != nil {
		t.Errorf("Delete(missing) error = %v, want nil", err)
	}
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	t.Parallel()
	storage, err := NewLocalStorage(t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}
	t.Cleanup(func() { _ = storage.Close() })

	if err := storage.Put(context.Background(), "../escape.txt", strings.NewReader("x")); err == nil {
		t.Error("Put() with a traversal key succeeded, want error")
	}
}

func TestLocalStorageURL(t *testing.T) {
	t.Parallel()
	storage, err := NewLocalStorage(t.TempDir(), "https://chat.example.com/")
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}
	t.Cleanup(func() { _ = storage.Close() })

	if got := storage.URL("abc.png"); got != "https://chat.example.com/media/abc.png" {
		t.Errorf("URL() = %q", got)
	}
}

func TestNormalizeAvatar(t *testing.T) {
	t.Parallel()

	// A wide source image must come out as a 256x256 JPEG.
	src := image.NewRGBA(image.Rect(0, 0, 640, 200))
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatalf("encode source: %v", err)
	}

	out, err := NormalizeAvatar(buf.Bytes())
	if err != nil {
		t.Fatalf("NormalizeAvatar() error = %v", err)
	}

	decoded, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	bounds := decoded.Bounds()
	if bounds.Dx() != 256 || bounds.Dy() != 256 {
		t.Errorf("result = %dx%d, want 256x256", bounds.Dx(), bounds.Dy())
	}
}

func TestNormalizeAvatarRejectsGarbage(t *testing.T) {
	t.Parallel()
	if _, err := NormalizeAvatar([]byte("not an image")); !errors.Is(err, ErrInvalidImage) {
		t.Errorf("NormalizeAvatar() error = %v, want ErrInvalidImage", err)
	}
}
