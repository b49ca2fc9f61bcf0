package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"tern/internal/gemini"
	"tern/internal/logging"
	"tern/internal/memory"
	"tern/internal/tool"
)

// maxToolIterations bounds the request/tool loop so a model that keeps
// requesting tools cannot spin forever.
const maxToolIterations = 8

// ErrNoContent terminates a turn that has neither text nor a usable
// attachment after uploads settle.
var ErrNoContent = errors.New("no valid content to send")

// Options are the per-conversation generation settings.
type Options struct {
	SystemInstruction string
	Temperature       float64
	TopP              float64
	TopK              int
	MaxOutputTokens   int
	ThinkingBudget    int
	SafetySettings    []gemini.SafetySetting

	// EnableSearch turns on built-in web search when no functions are
	// declared; the API rejects combining the two.
	EnableSearch bool

	// Incognito withholds memory-mutating tools and discards memory
	// operations produced by the turn.
	Incognito bool
}

// Input is everything one turn needs.
type Input struct {
	Text        string
	Attachments []*Attachment
	History     []HistoryEntry
	Memories    []string
}

// Orchestrator drives one turn: context assembly, sequential attachment
// upload, the streaming request/tool loop, and directive extraction. A single
// orchestrator may run many turns, one at a time.
type Orchestrator struct {
	completer Completer
	uploader  *Uploader
	invoker   *Invoker
	registry  *tool.Registry
	opts      Options
	log       *zap.Logger
}

// NewOrchestrator wires the turn driver.
func NewOrchestrator(completer Completer, uploader *Uploader, invoker *Invoker, registry *tool.Registry, opts Options) *Orchestrator {
	return &Orchestrator{
		completer: completer,
		uploader:  uploader,
		invoker:   invoker,
		registry:  registry,
		opts:      opts,
		log:       logging.For("turn"),
	}
}

// Run starts one turn and returns its event stream. The stream is closed
// after exactly one terminal event (Finished=true); the caller must drain it.
// Cancelling ctx aborts the turn at the next suspension point.
func (o *Orchestrator) Run(ctx context.Context, in Input) <-chan Event {
	events := make(chan Event, 16)
	go func() {
		defer close(events)
		o.run(ctx, in, events)
	}()
	return events
}

// emitter delivers non-terminal events, dropping them once the turn's
// context is cancelled so an abandoned consumer cannot wedge the driver.
type emitter struct {
	ctx    context.Context
	events chan<- Event
}

func (e *emitter) send(ev Event) bool {
	select {
	case e.events <- ev:
		return true
	case <-e.ctx.Done():
		return false
	}
}

func (e *emitter) status(s ProcessingStatus) {
	e.send(Event{Status: &s})
}

func (o *Orchestrator) run(ctx context.Context, in Input, events chan<- Event) {
	em := &emitter{ctx: ctx, events: events}

	finish := func(ev Event) {
		ev.Finished = true
		// Buffered fast path keeps delivery deterministic for a draining
		// consumer; once the buffer is full and the turn is cancelled the
		// consumer is gone, so the terminal event is best-effort.
		select {
		case events <- ev:
		default:
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		}
	}
	abort := func(accumulated string) {
		o.log.Info("turn aborted", zap.Int("accumulated_len", len(accumulated)))
		finish(Event{FinalText: accumulated, Disposition: DispositionAborted})
	}
	fail := func(accumulated string, err error) {
		classified := ClassifyProviderError(err)
		o.log.Warn("turn errored", zap.Error(err))
		text := accumulated
		if text != "" {
			text += "\n\n"
		}
		text += classified
		finish(Event{FinalText: text, Err: err, Disposition: DispositionErrored})
	}

	if ctx.Err() != nil {
		abort("")
		return
	}

	// BuildingContext.
	contents := BuildContext(in.History, in.Memories)

	// UploadingAttachments: sequential, failures degrade the turn.
	var active []*Attachment
	for _, att := range in.Attachments {
		if err := o.uploader.Upload(ctx, att, em.status); err != nil {
			if ctx.Err() != nil {
				abort("")
				return
			}
			o.log.Warn("attachment dropped", zap.String("name", att.DisplayName), zap.Error(err))
			continue
		}
		active = append(active, att)
	}

	text := strings.TrimSpace(in.Text)
	if text == "" && len(active) == 0 {
		o.log.Warn("turn errored", zap.Error(ErrNoContent))
		finish(Event{FinalText: ErrNoContent.Error(), Err: ErrNoContent, Disposition: DispositionErrored})
		return
	}

	var userParts []gemini.Part
	if text != "" {
		userParts = append(userParts, gemini.Part{Text: text})
	}
	for _, att := range active {
		userParts = append(userParts, gemini.Part{
			FileData: &gemini.FileData{FileURI: att.URI, MimeType: att.MimeType},
		})
	}
	contents = append(contents, gemini.Content{Role: "user", Parts: userParts})

	activeTools := o.registry.ActiveSet(o.opts.Incognito)

	// Requesting / StreamingDelta / tool loop.
	var accumulated strings.Builder
	for iteration := 0; ; iteration++ {
		call, err := o.streamOnce(ctx, contents, activeTools, &accumulated, em)
		if err != nil {
			if ctx.Err() != nil {
				abort(accumulated.String())
				return
			}
			fail(accumulated.String(), err)
			return
		}
		if call == nil || iteration >= maxToolIterations {
			break
		}

		em.status(ProcessingStatus{Kind: KindToolRequest, Stage: StageCompleted, SubjectName: call.Name})

		result := o.executeCall(ctx, call, activeTools, em)
		if result == nil {
			// Only cancellation leaves executeCall without a result.
			abort(accumulated.String())
			return
		}
		for _, att := range result.Promoted {
			em.send(Event{Promoted: att})
		}

		contents = append(contents,
			gemini.Content{Role: "model", Parts: []gemini.Part{{FunctionCall: call}}},
			gemini.Content{Role: "user", Parts: []gemini.Part{{
				FunctionResponse: &gemini.FunctionResponse{Name: call.Name, Response: result.ResultContent},
			}}},
		)
		if result.ContextRef != nil {
			contents = append(contents, gemini.Content{
				Role:  "user",
				Parts: []gemini.Part{{Text: "The tool attached the following file:"}, *result.ContextRef},
			})
		}

		em.status(ProcessingStatus{Kind: KindToolResponse, Stage: StageAwaitingModel, SubjectName: call.Name})
		em.send(Event{ContextSnapshot: snapshotContents(contents)})
	}

	// Finalizing.
	parsed := memory.ParseDirectives(accumulated.String())
	ops := parsed.Operations
	if o.opts.Incognito {
		ops = nil
	}
	finish(Event{
		FinalText:   parsed.DisplayText,
		Operations:  ops,
		Disposition: DispositionCompleted,
	})
}

// streamOnce issues one streaming completion call, forwarding text deltas and
// returning the first tool call seen, if any. Streaming continues to the end
// of the response even after a call is recorded.
func (o *Orchestrator) streamOnce(ctx context.Context, contents []gemini.Content, activeTools []*tool.Declaration, accumulated *strings.Builder, em *emitter) (*gemini.FunctionCall, error) {
	// The configured temperature is always sent, so 0 means greedy sampling
	// rather than the provider default.
	temperature := o.opts.Temperature
	req := &gemini.GenerateRequest{
		Contents: contents,
		GenerationConfig: gemini.GenerationConfig{
			Temperature:     &temperature,
			TopP:            o.opts.TopP,
			TopK:            o.opts.TopK,
			MaxOutputTokens: o.opts.MaxOutputTokens,
		},
		SafetySettings: o.opts.SafetySettings,
	}
	if o.opts.SystemInstruction != "" {
		req.SystemInstruction = &gemini.Content{Parts: []gemini.Part{{Text: o.opts.SystemInstruction}}}
	}
	if o.opts.ThinkingBudget > 0 {
		req.GenerationConfig.ThinkingConfig = &gemini.ThinkingConfig{ThinkingBudget: o.opts.ThinkingBudget}
	}
	if len(activeTools) > 0 {
		decls := make([]gemini.FunctionDeclaration, len(activeTools))
		for i, d := range activeTools {
			decls[i] = d.FunctionDeclaration()
		}
		req.Tools = []gemini.Tool{{FunctionDeclarations: decls}}
	} else if o.opts.EnableSearch {
		req.Tools = []gemini.Tool{{GoogleSearch: &gemini.GoogleSearch{}}}
	}

	chunks, errCh := o.completer.StreamGenerateContent(ctx, req)

	var call *gemini.FunctionCall
	for chunk := range chunks {
		// Chunks still buffered after cancellation are drained but not
		// accumulated: the final text holds only what was yielded to the
		// caller before the abort.
		if ctx.Err() != nil {
			continue
		}
		if chunk.TextDelta != "" {
			// Accumulate only deltas the caller actually received.
			if em.send(Event{TextDelta: chunk.TextDelta}) {
				accumulated.WriteString(chunk.TextDelta)
			}
		}
		if chunk.FunctionCall != nil && call == nil {
			call = chunk.FunctionCall
		}
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return call, nil
}

// executeCall services one detected tool call. Unknown tools and tool-level
// failures become synthetic error results so the turn continues; a nil return
// means the turn was cancelled.
func (o *Orchestrator) executeCall(ctx context.Context, call *gemini.FunctionCall, activeTools []*tool.Declaration, em *emitter) *InvokeResult {
	var decl *tool.Declaration
	for _, d := range activeTools {
		if d.Name == call.Name {
			decl = d
			break
		}
	}
	if decl == nil {
		o.log.Warn("model requested unknown tool", zap.String("name", call.Name))
		em.status(ProcessingStatus{
			Kind: KindToolExecution, Stage: StageFailed,
			SubjectName: call.Name, ErrorText: "unknown tool",
		})
		return &InvokeResult{ResultContent: map[string]any{
			"error": fmt.Sprintf("tool %q is not available", call.Name),
		}}
	}

	result, err := o.invoker.Invoke(ctx, decl, call.Args, em.status)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return &InvokeResult{ResultContent: map[string]any{"error": err.Error()}}
	}
	return result
}

func snapshotContents(contents []gemini.Content) []gemini.Content {
	out := make([]gemini.Content, len(contents))
	copy(out, contents)
	return out
}
