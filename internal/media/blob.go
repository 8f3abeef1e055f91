// Package media holds encoded media payloads and the helpers that move them
// between bytes, data URIs, files, and HTTP URLs.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/vincent-petithory/dataurl"
)

var (
	// ErrInvalidDataURI is returned when a data URI cannot be parsed.
	ErrInvalidDataURI = errors.New("invalid data URI")

	// ErrFetch is returned when a remote or local reference cannot be read.
	ErrFetch = errors.New("fetch failed")
)

// Blob is an encoded media payload with its content type.
type Blob struct {
	Data     []byte
	MIMEType string
}

// Size returns the payload length in bytes.
func (b *Blob) Size() int {
	return len(b.Data)
}

// DataURI encodes the blob as a base64 data URI.
func (b *Blob) DataURI() string {
	return EncodeDataURI(b.Data, b.MIMEType)
}

// EncodeDataURI builds a base64 data URI from raw bytes. Type parameters
// such as codecs are not carried over.
func EncodeDataURI(data []byte, mimeType string) string {
	base, _ := SplitType(mimeType)
	if !strings.Contains(base, "/") {
		base = "application/octet-stream"
	}
	return dataurl.New(data, base).String()
}

// SplitType splits a MIME type into its lowercased base type and
// parameters. Unlike mime.ParseMediaType it accepts unquoted lists such as
// codecs=vp9,opus.
func SplitType(mimeType string) (string, map[string]string) {
	parts := strings.Split(mimeType, ";")
	base := strings.ToLower(strings.TrimSpace(parts[0]))

	var params map[string]string
	for _, p := range parts[1:] {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			continue
		}
		if params == nil {
			params = make(map[string]string)
		}
		k = strings.ToLower(strings.TrimSpace(k))
		params[k] = strings.Trim(strings.TrimSpace(v), `"`)
	}
	return base, params
}

// ParseDataURI decodes a data URI into a blob. Media type parameters such as
// codecs are dropped from the returned type.
func ParseDataURI(s string) (*Blob, error) {
	du, err := dataurl.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	return &Blob{Data: du.Data, MIMEType: du.MediaType.ContentType()}, nil
}

// IsDataURI reports whether s looks like a data URI.
func IsDataURI(s string) bool {
	return strings.HasPrefix(s, "data:")
}

// IsURL reports whether s is an http or https URL.
func IsURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// Fetch resolves ref to a blob. A ref may be a data URI, an http(s) URL, or a
// local file path. A nil client uses http.DefaultClient.
func Fetch(ctx context.Context, ref string, client *http.Client) (*Blob, error) {
	switch {
	case ref == "":
		return nil, fmt.Errorf("%w: empty reference", ErrFetch)
	case IsDataURI(ref):
		return ParseDataURI(ref)
	case IsURL(ref):
		return fetchURL(ctx, ref, client)
	default:
		data, err := os.ReadFile(ref)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFetch, err)
		}
		return &Blob{Data: data, MIMEType: http.DetectContentType(data)}, nil
	}
}

func fetchURL(ctx context.Context, url string, client *http.Client) (*Blob, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrFetch, url, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return &Blob{Data: data, MIMEType: mimeType}, nil
}

// Extension returns a file extension for a MIME type, including the dot.
func Extension(mimeType string) string {
	base, _ := SplitType(mimeType)
	switch base {
	case "video/webm", "audio/webm":
		return ".webm"
	case "video/mp4":
		return ".mp4"
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/mpeg":
		return ".mp3"
	default:
		return ".bin"
	}
}
