package compositor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"net/http"

	_ "golang.org/x/image/webp" // register decoder

	"github.com/dgnsrekt/storyreel/internal/media"
)

// ErrImageLoad is returned when a cover image cannot be fetched or decoded.
var ErrImageLoad = errors.New("image load failed")

// LoadImage fetches ref (data URI, http(s) URL or file path) and decodes it.
func LoadImage(ctx context.Context, ref string, client *http.Client) (image.Image, error) {
	blob, err := media.Fetch(ctx, ref, client)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageLoad, err)
	}
	return DecodeImage(blob.Data)
}

// DecodeImage decodes png, jpeg, gif or webp bytes.
func DecodeImage(data []byte) (image.Image, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageLoad, err)
	}
	if b := img.Bounds(); b.Empty() {
		return nil, fmt.Errorf("%w: %s image has no pixels", ErrImageLoad, format)
	}
	return img, nil
}
