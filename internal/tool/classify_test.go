package tool

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyResponseDirectFile(t *testing.T) {
	cases := []struct {
		contentType string
		want        ResponseKind
	}{
		{"application/pdf", DirectFile},
		{"image/png", DirectFile},
		{"image/jpeg; charset=binary", DirectFile},
		{"audio/mpeg", DirectFile},
		{"video/mp4", DirectFile},
		{"text/plain", DirectFile},
		{"text/plain; charset=utf-8", DirectFile},
		{"text/html", PlainText},
		{"application/octet-stream", PlainText},
	}
	for _, tc := range cases {
		got := ClassifyResponse(tc.contentType, []byte("payload"))
		assert.Equal(t, tc.want, got, "content type %q", tc.contentType)
	}
}

func TestClassifyResponseJSON(t *testing.T) {
	body := []byte(`{"result": "ok", "count": 3}`)
	assert.Equal(t, StructuredJSON, ClassifyResponse("application/json", body))

	// Declared JSON that does not parse as an object degrades to text.
	assert.Equal(t, PlainText, ClassifyResponse("application/json", []byte("not json")))
	assert.Equal(t, PlainText, ClassifyResponse("application/json", []byte(`[1,2,3]`)))
}

func TestClassifyResponseJSONWithMedia(t *testing.T) {
	img := base64.StdEncoding.EncodeToString([]byte("fake-png-bytes"))
	body, err := json.Marshal(map[string]any{
		"caption": "a chart",
		"chart":   "data:image/png;base64," + img,
	})
	require.NoError(t, err)

	assert.Equal(t, StructuredJSONWithMedia, ClassifyResponse("application/json", body))
}

func TestExtractMediaDataURI(t *testing.T) {
	raw := []byte("tiny-audio")
	payload := map[string]any{
		"transcript": "hello",
		"speech":     "data:audio/mpeg;base64," + base64.StdEncoding.EncodeToString(raw),
	}

	media, rest := ExtractMedia(payload)
	require.Len(t, media, 1)
	assert.Equal(t, "speech", media[0].Field)
	assert.Equal(t, "audio/mpeg", media[0].MimeType)
	assert.Equal(t, raw, media[0].Data)
	assert.Equal(t, map[string]any{"transcript": "hello"}, rest)
}

func TestExtractMediaFileURLPair(t *testing.T) {
	payload := map[string]any{
		"summary": "done",
		"render": map[string]any{
			"file_url":  "https://files.example.com/out/render.mp4",
			"mime_type": "video/mp4",
		},
	}

	media, rest := ExtractMedia(payload)
	require.Len(t, media, 1)
	assert.Equal(t, "render", media[0].Field)
	assert.Equal(t, "video/mp4", media[0].MimeType)
	assert.Equal(t, "https://files.example.com/out/render.mp4", media[0].FileURL)
	assert.Empty(t, media[0].Data)
	assert.Equal(t, map[string]any{"summary": "done"}, rest)
}

func TestExtractMediaIgnoresNonMedia(t *testing.T) {
	payload := map[string]any{
		// Wrong scheme prefix, text mime, and incomplete pair all pass through.
		"plain":   "data:text/plain;base64,aGVsbG8=",
		"partial": map[string]any{"file_url": "https://example.com/x"},
		"badb64":  "data:image/png;base64,!!!not-base64!!!",
		"nested":  map[string]any{"inner": map[string]any{"file_url": "u", "mime_type": "m"}},
	}

	media, rest := ExtractMedia(payload)
	assert.Empty(t, media)
	assert.Len(t, rest, 4)
}

func TestExtractMediaDeterministicOrder(t *testing.T) {
	b64 := base64.StdEncoding.EncodeToString([]byte("x"))
	payload := map[string]any{
		"zeta":  "data:image/png;base64," + b64,
		"alpha": "data:image/png;base64," + b64,
		"mid":   "data:image/png;base64," + b64,
	}

	media, _ := ExtractMedia(payload)
	require.Len(t, media, 3)
	assert.Equal(t, "alpha", media[0].Field)
	assert.Equal(t, "mid", media[1].Field)
	assert.Equal(t, "zeta", media[2].Field)
}

func TestFilenameFromResponse(t *testing.T) {
	assert.Equal(t, "report.pdf",
		FilenameFromResponse(`attachment; filename="report.pdf"`, "https://api.example.com/gen"))
	assert.Equal(t, "chart.png",
		FilenameFromResponse("", "https://api.example.com/files/chart.png?sig=abc"))
	assert.Equal(t, "tool-file",
		FilenameFromResponse("", "https://api.example.com/"))
	assert.Equal(t, "tool-file",
		FilenameFromResponse("garbage;;;", "://bad-url"))
}
