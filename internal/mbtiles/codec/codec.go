// Package codec encodes and decodes tile images.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/mohammed-shakir/mbtiles-store/internal/mbtiles/metadata"
)

var ErrUnsupportedFormat = errors.New("codec: unsupported tile format")

// MaxQuality matches what the store uses for every JPEG write.
const MaxQuality = 100

type Codec interface {
	Encode(img image.Image, f metadata.Format, quality int) ([]byte, error)
	Decode(data []byte) (image.Image, metadata.Format, error)
}

// Image is the Codec backed by the image/png and image/jpeg encoders.
type Image struct{}

var _ Codec = Image{}

func (Image) Encode(img image.Image, f metadata.Format, quality int) ([]byte, error) {
	if img == nil {
		return nil, errors.New("codec: nil image")
	}
	buf := bytes.NewBuffer(make([]byte, 0, 4096))
	switch f {
	case metadata.JPEG:
		if quality <= 0 || quality > MaxQuality {
			quality = MaxQuality
		}
		if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	case metadata.PNG:
		if err := png.Encode(buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, string(f))
	}
	return buf.Bytes(), nil
}

func (Image) Decode(data []byte) (image.Image, metadata.Format, error) {
	img, name, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, metadata.FormatNone, fmt.Errorf("decode tile: %w", err)
	}
	switch name {
	case "jpeg":
		return img, metadata.JPEG, nil
	case "png":
		return img, metadata.PNG, nil
	}
	return img, metadata.FormatNone, fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
}

// Sniff reports the tile format of encoded bytes without decoding them.
func Sniff(data []byte) metadata.Format {
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return metadata.PNG
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return metadata.JPEG
	}
	return metadata.FormatNone
}
