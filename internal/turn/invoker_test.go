package turn

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tern/internal/tool"
)

func newTestInvoker() (*Invoker, *fakeFiles) {
	files := &fakeFiles{}
	return NewInvoker(NewUploader(files, zeroDelayPolicy()), nil), files
}

func TestInvokeGETSerializesQuery(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"temp": 21}`)
	}))
	defer srv.Close()

	iv, _ := newTestInvoker()
	emit, _ := collectStatuses()
	d := &tool.Declaration{Name: "weather", Endpoint: srv.URL, Method: "GET"}

	res, err := iv.Invoke(context.Background(), d, map[string]any{"city": "Paris", "days": float64(3)}, emit)
	require.NoError(t, err)
	assert.Equal(t, "city=Paris&days=3", gotQuery)
	assert.Equal(t, map[string]any{"temp": float64(21)}, res.ResultContent)
}

func TestInvokePOSTSendsJSONBody(t *testing.T) {
	var gotBody map[string]any
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"ok": true}`)
	}))
	defer srv.Close()

	iv, _ := newTestInvoker()
	emit, _ := collectStatuses()
	d := &tool.Declaration{Name: "create", Endpoint: srv.URL, Method: "POST"}

	_, err := iv.Invoke(context.Background(), d, map[string]any{"title": "note"}, emit)
	require.NoError(t, err)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, map[string]any{"title": "note"}, gotBody)
}

func TestInvokeNon2xxBecomesStructuredError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	iv, _ := newTestInvoker()
	emit, statuses := collectStatuses()
	d := &tool.Declaration{Name: "flaky", Endpoint: srv.URL, Method: "GET"}

	res, err := iv.Invoke(context.Background(), d, nil, emit)
	require.NoError(t, err, "HTTP failure is a tool result, not a turn error")
	assert.Equal(t, 502, res.ResultContent["status"])
	assert.Contains(t, res.ResultContent["error"], "HTTP 502")

	// The execution phase still completes: the tool ran, it just failed.
	last := (*statuses)[len(*statuses)-1]
	assert.Equal(t, KindToolExecution, last.Kind)
	assert.Equal(t, StageCompleted, last.Stage)
}

func TestInvokePlainTextResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<p>hello</p>")
	}))
	defer srv.Close()

	iv, _ := newTestInvoker()
	emit, _ := collectStatuses()
	d := &tool.Declaration{Name: "page", Endpoint: srv.URL, Method: "GET"}

	res, err := iv.Invoke(context.Background(), d, nil, emit)
	require.NoError(t, err)
	assert.Equal(t, "<p>hello</p>", res.ResultContent["result"])
	assert.Empty(t, res.Promoted)
}

func TestInvokeDirectFilePromotesAttachment(t *testing.T) {
	payload := []byte("%PDF-1.7 fake")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="report.pdf"`)
		w.Write(payload)
	}))
	defer srv.Close()

	iv, files := newTestInvoker()
	emit, statuses := collectStatuses()
	d := &tool.Declaration{Name: "export", Endpoint: srv.URL, Method: "GET"}

	res, err := iv.Invoke(context.Background(), d, nil, emit)
	require.NoError(t, err)
	require.Len(t, res.Promoted, 1)

	att := res.Promoted[0]
	assert.Equal(t, "report.pdf", att.DisplayName)
	assert.Equal(t, AttachmentActive, att.State)
	assert.Equal(t, int64(len(payload)), att.Size)
	require.NotNil(t, res.ContextRef)
	assert.Equal(t, att.URI, res.ContextRef.FileData.FileURI)
	assert.Equal(t, 1, files.uploadCalls)

	var sawDownstream, sawAwaiting bool
	for _, s := range *statuses {
		if s.Kind == KindDownstreamFileProcessing {
			sawDownstream = true
			if s.Stage == StageAwaitingModel {
				sawAwaiting = true
			}
		}
	}
	assert.True(t, sawDownstream)
	assert.True(t, sawAwaiting)
}

func TestInvokeJSONWithEmbeddedMedia(t *testing.T) {
	img := base64.StdEncoding.EncodeToString([]byte("png-bytes"))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"caption": "a chart",
			"chart":   "data:image/png;base64," + img,
		})
	}))
	defer srv.Close()

	iv, _ := newTestInvoker()
	emit, _ := collectStatuses()
	d := &tool.Declaration{Name: "plot", Endpoint: srv.URL, Method: "GET"}

	res, err := iv.Invoke(context.Background(), d, nil, emit)
	require.NoError(t, err)
	require.Len(t, res.Promoted, 1)
	assert.Equal(t, "chart.png", res.Promoted[0].DisplayName)
	assert.Equal(t, "image/png", res.Promoted[0].MimeType)

	// Non-media fields pass through verbatim; the media field is consumed.
	assert.Equal(t, map[string]any{"caption": "a chart"}, res.ResultContent)
	require.NotNil(t, res.ContextRef)
}

func TestInvokeJSONWithFileURLPair(t *testing.T) {
	media := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("mp3-bytes"))
	}))
	defer media.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"speech": map[string]any{"file_url": media.URL + "/out.mp3", "mime_type": "audio/mpeg"},
		})
	}))
	defer srv.Close()

	iv, _ := newTestInvoker()
	emit, _ := collectStatuses()
	d := &tool.Declaration{Name: "tts", Endpoint: srv.URL, Method: "GET"}

	res, err := iv.Invoke(context.Background(), d, nil, emit)
	require.NoError(t, err)
	require.Len(t, res.Promoted, 1)
	assert.Equal(t, "audio/mpeg", res.Promoted[0].MimeType)
	assert.Equal(t, AttachmentActive, res.Promoted[0].State)
	assert.Empty(t, res.ResultContent)
}

func TestInvokeNativeTool(t *testing.T) {
	iv, _ := newTestInvoker()
	emit, _ := collectStatuses()
	d := &tool.Declaration{
		Name: "add",
		Native: func(ctx context.Context, args map[string]any) (any, error) {
			return args["a"].(float64) + args["b"].(float64), nil
		},
	}

	res, err := iv.Invoke(context.Background(), d, map[string]any{"a": float64(2), "b": float64(3)}, emit)
	require.NoError(t, err)
	assert.Equal(t, float64(5), res.ResultContent["result"])
}

func TestInvokeNativeToolError(t *testing.T) {
	iv, _ := newTestInvoker()
	emit, _ := collectStatuses()
	d := &tool.Declaration{
		Name: "broken",
		Native: func(ctx context.Context, args map[string]any) (any, error) {
			return nil, errors.New("native failure")
		},
	}

	res, err := iv.Invoke(context.Background(), d, nil, emit)
	require.NoError(t, err)
	assert.Equal(t, "native failure", res.ResultContent["error"])
}

func TestInvokeCancellation(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	iv, _ := newTestInvoker()
	emit, _ := collectStatuses()
	d := &tool.Declaration{Name: "slow", Endpoint: srv.URL, Method: "GET"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := iv.Invoke(ctx, d, nil, emit)
	require.ErrorIs(t, err, context.Canceled)
}
