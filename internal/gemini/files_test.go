package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func TestUploadFile(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/upload/v1beta/files":
			assert.Equal(t, "resumable", r.Header.Get("X-Goog-Upload-Protocol"))
			assert.Equal(t, "start", r.Header.Get("X-Goog-Upload-Command"))

			var meta struct {
				File map[string]string `json:"file"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&meta))
			assert.Equal(t, "files/holiday-photo-x1", meta.File["name"])
			assert.Equal(t, "holiday photo.png", meta.File["displayName"])

			w.Header().Set("X-Goog-Upload-URL", "http://"+r.Host+"/upload_session")
			w.WriteHeader(http.StatusOK)

		case r.Method == http.MethodPost && r.URL.Path == "/upload_session":
			assert.Equal(t, "upload, finalize", r.Header.Get("X-Goog-Upload-Command"))
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"file": {"name": "files/abc123", "uri": "https://example.com/files/abc123", "state": "PROCESSING"}}`))

		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))
	defer ts.Close()

	client := newTestClient(ts)
	file, err := client.UploadFile(context.Background(), []byte("png bytes"), "image/png", "holiday photo.png", "holiday-photo-x1")
	require.NoError(t, err)
	assert.Equal(t, "files/abc123", file.Name)
	assert.Equal(t, FileStateProcessing, file.State)
}

func TestUploadFileRejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"permission denied"}}`))
	}))
	defer ts.Close()

	client := newTestClient(ts)
	_, err := client.UploadFile(context.Background(), []byte("x"), "text/plain", "a.txt", "a-txt-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}

func TestGetFile(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1beta/files/abc123", r.URL.Path)
		w.Write([]byte(`{"name": "files/abc123", "state": "ACTIVE", "uri": "https://example.com/files/abc123", "mimeType": "image/png"}`))
	}))
	defer ts.Close()

	client := newTestClient(ts)

	// Bare id is normalized to the files/ resource name.
	file, err := client.GetFile(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, FileStateActive, file.State)
	assert.Equal(t, "image/png", file.MimeType)
}
