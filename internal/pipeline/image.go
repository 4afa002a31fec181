package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// normalizeImage decodes the fetched bytes and returns them in a form the
// model accepts directly. JPEG and PNG pass through untouched; GIF and WebP
// are re-encoded as RGB JPEG. Anything undecodable (including the video
// types the upload endpoint accepts) fails extraction.
func normalizeImage(data []byte) ([]byte, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}

	switch format {
	case "jpeg":
		return data, "image/jpeg", nil
	case "png":
		return data, "image/png", nil
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, "", fmt.Errorf("re-encode image as JPEG: %w", err)
	}
	return buf.Bytes(), "image/jpeg", nil
}
