package media

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataURI_RoundTrip(t *testing.T) {
	blob := &Blob{Data: []byte("RIFF....WAVE"), MIMEType: "audio/wav"}

	uri := blob.DataURI()
	assert.Equal(t, "data:audio/wav;base64,UklGRi4uLi5XQVZF", uri)

	got, err := ParseDataURI(uri)
	require.NoError(t, err)
	assert.Equal(t, blob.Data, got.Data)
	assert.Equal(t, "audio/wav", got.MIMEType)
	assert.Equal(t, 12, got.Size())
}

func TestParseDataURI_DropsParams(t *testing.T) {
	got, err := ParseDataURI("data:video/webm;codecs=vp9;base64,AAEC")
	require.NoError(t, err)
	assert.Equal(t, "video/webm", got.MIMEType)
	assert.Equal(t, []byte{0, 1, 2}, got.Data)
}

func TestParseDataURI_Invalid(t *testing.T) {
	_, err := ParseDataURI("not a data uri")
	assert.ErrorIs(t, err, ErrInvalidDataURI)
}

func TestEncodeDataURI_DefaultType(t *testing.T) {
	assert.Equal(t, "data:application/octet-stream;base64,AA==", EncodeDataURI([]byte{0}, ""))
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	ctx := context.Background()

	t.Run("url", func(t *testing.T) {
		blob, err := Fetch(ctx, srv.URL+"/cover.png", srv.Client())
		require.NoError(t, err)
		assert.Equal(t, "image/png", blob.MIMEType)
		assert.Equal(t, []byte("png-bytes"), blob.Data)
	})

	t.Run("url not found", func(t *testing.T) {
		_, err := Fetch(ctx, srv.URL+"/missing", srv.Client())
		assert.ErrorIs(t, err, ErrFetch)
	})

	t.Run("data uri", func(t *testing.T) {
		blob, err := Fetch(ctx, "data:text/plain;base64,aGk=", nil)
		require.NoError(t, err)
		assert.Equal(t, []byte("hi"), blob.Data)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "note.txt")
		require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

		blob, err := Fetch(ctx, path, nil)
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), blob.Data)
		assert.Contains(t, blob.MIMEType, "text/plain")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Fetch(ctx, filepath.Join(t.TempDir(), "nope"), nil)
		assert.ErrorIs(t, err, ErrFetch)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := Fetch(ctx, "", nil)
		assert.ErrorIs(t, err, ErrFetch)
	})
}

func TestExtension(t *testing.T) {
	tests := map[string]string{
		"video/webm;codecs=vp9,opus": ".webm",
		"video/mp4":                  ".mp4",
		"image/jpeg":                 ".jpg",
		"IMAGE/PNG":                  ".png",
		"audio/wav":                  ".wav",
		"application/x-unknown":      ".bin",
	}
	for in, want := range tests {
		assert.Equal(t, want, Extension(in), in)
	}
}

func TestSplitType(t *testing.T) {
	tests := []struct {
		in     string
		base   string
		params map[string]string
	}{
		{"video/webm;codecs=vp9,opus", "video/webm", map[string]string{"codecs": "vp9,opus"}},
		{"Video/WebM; codecs=\"vp8, opus\"", "video/webm", map[string]string{"codecs": "vp8, opus"}},
		{"video/mp4", "video/mp4", nil},
		{"text/plain; charset=utf-8; junk", "text/plain", map[string]string{"charset": "utf-8"}},
	}
	for _, tt := range tests {
		base, params := SplitType(tt.in)
		assert.Equal(t, tt.base, base, tt.in)
		assert.Equal(t, tt.params, params, tt.in)
	}
}

func TestEncodeDataURI_DropsParams(t *testing.T) {
	uri := EncodeDataURI([]byte{1, 2}, "video/webm;codecs=vp9,opus")
	assert.Equal(t, "data:video/webm;base64,AQI=", uri)

	got, err := ParseDataURI(uri)
	require.NoError(t, err)
	assert.Equal(t, "video/webm", got.MIMEType)
	assert.Equal(t, []byte{1, 2}, got.Data)
}
