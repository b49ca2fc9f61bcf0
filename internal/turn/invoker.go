package turn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tern/internal/gemini"
	"tern/internal/logging"
	"tern/internal/tool"
)

// maxToolResponseBytes bounds how much of a tool response body is read.
const maxToolResponseBytes = 32 << 20

// InvokeResult is the terminal value of one tool invocation.
type InvokeResult struct {
	// ResultContent is fed back to the model as the function response.
	ResultContent map[string]any

	// Promoted holds attachments materialized from the response, already
	// active and usable in context.
	Promoted []*Attachment

	// ContextRef, when set, is an additional part referencing promoted
	// media so the model can reason over it.
	ContextRef *gemini.Part
}

// Invoker executes declared tools: HTTP endpoints or native functions. Media
// returned by a tool is pushed through the same upload+activation path as
// user attachments.
type Invoker struct {
	httpClient *http.Client
	uploader   *Uploader
	log        *zap.Logger
}

// NewInvoker creates an invoker that promotes tool media via uploader.
func NewInvoker(uploader *Uploader, httpClient *http.Client) *Invoker {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Invoker{httpClient: httpClient, uploader: uploader, log: logging.For("invoker")}
}

// Invoke runs one tool call. Tool-level failures (non-2xx responses, native
// errors) are folded into a structured error result rather than returned as
// errors; only context cancellation and media-promotion failures surface as
// Go errors.
func (iv *Invoker) Invoke(ctx context.Context, d *tool.Declaration, args map[string]any, emit func(ProcessingStatus)) (*InvokeResult, error) {
	emit(ProcessingStatus{Kind: KindToolExecution, Stage: StageInProgress, SubjectName: d.Name})

	res, err := iv.execute(ctx, d, args, emit)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		emit(ProcessingStatus{
			Kind: KindToolExecution, Stage: StageFailed,
			SubjectName: d.Name, ErrorText: err.Error(),
		})
		return nil, err
	}

	emit(ProcessingStatus{Kind: KindToolExecution, Stage: StageCompleted, SubjectName: d.Name})
	return res, nil
}

func (iv *Invoker) execute(ctx context.Context, d *tool.Declaration, args map[string]any, emit func(ProcessingStatus)) (*InvokeResult, error) {
	if d.Native != nil {
		out, err := d.Native(ctx, args)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return &InvokeResult{ResultContent: map[string]any{"error": err.Error()}}, nil
		}
		if m, ok := out.(map[string]any); ok {
			return &InvokeResult{ResultContent: m}, nil
		}
		return &InvokeResult{ResultContent: map[string]any{"result": out}}, nil
	}

	req, err := iv.buildRequest(ctx, d, args)
	if err != nil {
		return nil, err
	}

	resp, err := iv.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &InvokeResult{ResultContent: map[string]any{"error": err.Error()}}, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxToolResponseBytes))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &InvokeResult{ResultContent: map[string]any{"error": err.Error()}}, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &InvokeResult{ResultContent: map[string]any{
			"error":  fmt.Sprintf("tool returned HTTP %d", resp.StatusCode),
			"status": resp.StatusCode,
			"body":   truncateForModel(string(body)),
		}}, nil
	}

	contentType := resp.Header.Get("Content-Type")
	disposition := resp.Header.Get("Content-Disposition")
	return iv.interpret(ctx, d, contentType, disposition, req.URL.String(), body, emit)
}

func (iv *Invoker) buildRequest(ctx context.Context, d *tool.Declaration, args map[string]any) (*http.Request, error) {
	method := d.Method
	if method == "" {
		method = http.MethodGet
	}

	switch method {
	case http.MethodGet:
		u, err := url.Parse(d.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("tool %s endpoint: %w", d.Name, err)
		}
		q := u.Query()
		for k, v := range args {
			q.Set(k, stringifyArg(v))
		}
		u.RawQuery = q.Encode()
		return http.NewRequestWithContext(ctx, method, u.String(), nil)

	case http.MethodPost, http.MethodPut, http.MethodPatch:
		payload, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("tool %s args: %w", d.Name, err)
		}
		req, err := http.NewRequestWithContext(ctx, method, d.Endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil

	default:
		return http.NewRequestWithContext(ctx, method, d.Endpoint, nil)
	}
}

// interpret applies the classified response strategy.
func (iv *Invoker) interpret(ctx context.Context, d *tool.Declaration, contentType, disposition, requestURL string, body []byte, emit func(ProcessingStatus)) (*InvokeResult, error) {
	switch tool.ClassifyResponse(contentType, body) {
	case tool.DirectFile:
		name := tool.FilenameFromResponse(disposition, requestURL)
		att, err := iv.promote(ctx, d.Name, name, contentType, body, emit)
		if err != nil {
			return nil, err
		}
		return &InvokeResult{
			ResultContent: map[string]any{
				"result": fmt.Sprintf("file %q produced and attached", name),
			},
			Promoted:   []*Attachment{att},
			ContextRef: &gemini.Part{FileData: &gemini.FileData{FileURI: att.URI, MimeType: att.MimeType}},
		}, nil

	case tool.StructuredJSON, tool.StructuredJSONWithMedia:
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			return &InvokeResult{ResultContent: map[string]any{"result": string(body)}}, nil
		}
		media, rest := tool.ExtractMedia(payload)
		res := &InvokeResult{ResultContent: rest}
		for _, m := range media {
			data := m.Data
			if len(data) == 0 && m.FileURL != "" {
				fetched, err := iv.fetch(ctx, m.FileURL)
				if err != nil {
					if ctx.Err() != nil {
						return nil, ctx.Err()
					}
					iv.log.Warn("tool media fetch failed",
						zap.String("tool", d.Name), zap.String("field", m.Field), zap.Error(err))
					continue
				}
				data = fetched
			}
			name := m.Field + extensionFor(m.MimeType)
			att, err := iv.promote(ctx, d.Name, name, m.MimeType, data, emit)
			if err != nil {
				return nil, err
			}
			res.Promoted = append(res.Promoted, att)
			if res.ContextRef == nil {
				res.ContextRef = &gemini.Part{FileData: &gemini.FileData{FileURI: att.URI, MimeType: att.MimeType}}
			}
		}
		return res, nil

	default:
		return &InvokeResult{ResultContent: map[string]any{"result": string(body)}}, nil
	}
}

// promote pushes tool-produced bytes through upload+activation, reporting
// progress as downstream_file_processing.
func (iv *Invoker) promote(ctx context.Context, toolName, displayName, mimeType string, data []byte, emit func(ProcessingStatus)) (*Attachment, error) {
	emit(ProcessingStatus{Kind: KindDownstreamFileProcessing, Stage: StageInProgress, SubjectName: displayName})

	att := &Attachment{
		ID:          uuid.NewString(),
		DisplayName: displayName,
		MimeType:    mimeType,
		Size:        int64(len(data)),
		State:       AttachmentRaw,
		Data:        data,
	}
	// Nested upload statuses stay internal; the downstream kind is the
	// externally visible signal for this phase.
	if err := iv.uploader.Upload(ctx, att, func(ProcessingStatus) {}); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		emit(ProcessingStatus{
			Kind: KindDownstreamFileProcessing, Stage: StageFailed,
			SubjectName: displayName, ErrorText: err.Error(),
		})
		return nil, fmt.Errorf("promote %s output: %w", toolName, err)
	}

	emit(ProcessingStatus{Kind: KindDownstreamFileProcessing, Stage: StageAwaitingModel, SubjectName: displayName})
	return att, nil
}

func (iv *Invoker) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := iv.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: HTTP %d", rawURL, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxToolResponseBytes))
}

func stringifyArg(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

func truncateForModel(s string) string {
	const max = 2048
	if len(s) > max {
		return s[:max]
	}
	return s
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "audio/mpeg":
		return ".mp3"
	case "audio/wav":
		return ".wav"
	case "video/mp4":
		return ".mp4"
	default:
		return ""
	}
}
