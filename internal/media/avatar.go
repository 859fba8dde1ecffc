package media

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder for image.Decode
	"image/jpeg"
	_ "image/png" // Register PNG decoder for image.Decode

	"github.com/disintegration/imaging"
)

const (
	avatarSize    = 256
	avatarQuality = 90
)

// NormalizeAvatar decodes an uploaded profile picture and re-encodes it as a square JPEG. The image is cover-cropped
// about its center so arbitrary aspect ratios come out as 256x256 without letterboxing. Undecodable input returns
// ErrInvalidImage.
func NormalizeAvatar(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, ErrInvalidImage
	}

	square := imaging.Fill(img, avatarSize, avatarSize, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, square, &jpeg.Options{Quality: avatarQuality}); err != nil {
		return nil, fmt.Errorf("encode avatar: %w", err)
	}
	return buf.Bytes(), nil
}
