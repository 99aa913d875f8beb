package images

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch(t *testing.T) {
	payload := []byte{0xFF, 0xD8, 0xFF, 0xE0}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/image":
			w.Header().Set("Content-Type", "image/png")
			w.Write(payload)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	fetcher := NewFetcher(WithRateLimit(100))

	t.Run("Inlines the image as a data URI", func(t *testing.T) {
		uri, err := fetcher.Fetch(context.Background(), server.URL+"/image")
		require.NoError(t, err)

		expected := "data:image/png;base64," + base64.StdEncoding.EncodeToString(payload)
		assert.Equal(t, expected, uri)
	})

	t.Run("Format query parameter wins over content type", func(t *testing.T) {
		uri, err := fetcher.Fetch(context.Background(), server.URL+"/image?format=jpg")
		require.NoError(t, err)
		assert.Contains(t, uri, "data:image/jpeg;base64,")
	})

	t.Run("Non-200 responses fail", func(t *testing.T) {
		_, err := fetcher.Fetch(context.Background(), server.URL+"/missing")
		assert.Error(t, err)
	})
}

func TestMimeTypeFor(t *testing.T) {
	assert.Equal(t, "image/png", mimeTypeFor("https://pbs.twimg.com/media/x?format=png", ""))
	assert.Equal(t, "image/webp", mimeTypeFor("https://pbs.twimg.com/media/x?format=webp", "image/jpeg"))
	assert.Equal(t, "image/gif", mimeTypeFor("https://pbs.twimg.com/media/x", "image/gif; charset=binary"))
	assert.Equal(t, "image/jpeg", mimeTypeFor("https://pbs.twimg.com/media/x", "text/html"))
}
