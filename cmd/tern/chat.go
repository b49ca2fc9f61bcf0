package main

import (
	"bufio"
	"context"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tern/internal/config"
	"tern/internal/gemini"
	"tern/internal/logging"
	"tern/internal/memory"
	"tern/internal/tool"
	"tern/internal/turn"
)

var (
	attachPaths []string
	incognito   bool
	memoryPath  string
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Chat with the model, streaming output as it arrives",
	Long: `Chat runs conversation turns against the configured Gemini model.

With a message argument it runs a single turn and exits. Without one it
starts an interactive session; type "exit" or press Ctrl-D to leave.
Attachments given with --file are uploaded and activated before the first
request so the model can reference them.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Model.APIKey == "" {
			return fmt.Errorf("no API key configured; set GEMINI_API_KEY or model.api_key")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, err := memory.NewSQLiteStore(memoryPath)
		if err != nil {
			return fmt.Errorf("open memory store: %w", err)
		}
		defer store.Close()

		session, err := newChatSession(cfg, store)
		if err != nil {
			return err
		}
		defer session.close()

		if len(args) == 1 {
			return session.runTurn(ctx, args[0], attachPaths)
		}
		return session.interactive(ctx)
	},
}

func init() {
	chatCmd.Flags().StringArrayVarP(&attachPaths, "file", "f", nil, "attach a file (repeatable)")
	chatCmd.Flags().BoolVar(&incognito, "incognito", false, "do not read or write memories this session")
	chatCmd.Flags().StringVar(&memoryPath, "memory-db", defaultMemoryPath(), "memory database path")
}

// chatSession holds the per-process conversation state: the provider client,
// tool registry, turn gate, and accumulated history.
type chatSession struct {
	store    *memory.SQLiteStore
	registry *tool.Registry
	gate     *turn.Gate
	watcher  *config.Watcher
	updates  <-chan *config.Config
	current  *config.Config
	history  []turn.HistoryEntry
	log      *zap.Logger
}

func newChatSession(cfg *config.Config, store *memory.SQLiteStore) (*chatSession, error) {
	registry := tool.NewRegistry()
	if err := registerConfiguredTools(registry, cfg); err != nil {
		return nil, err
	}

	s := &chatSession{
		store:    store,
		registry: registry,
		gate:     turn.NewGate(),
		current:  cfg,
		log:      logging.For("chat"),
	}

	// Config edits take effect on the next turn of a running session.
	if w, err := config.NewWatcher(configPath); err == nil {
		s.watcher = w
		s.updates = w.Subscribe()
	} else {
		s.log.Debug("config watcher unavailable", zap.Error(err))
	}
	return s, nil
}

func (s *chatSession) close() {
	if s.watcher != nil {
		s.watcher.Stop()
	}
}

func registerConfiguredTools(registry *tool.Registry, cfg *config.Config) error {
	for _, tc := range cfg.Tools {
		decl := &tool.Declaration{
			Name:        tc.Name,
			Description: tc.Description,
			Parameters:  tc.Parameters,
			Endpoint:    tc.Endpoint,
			Method:      strings.ToUpper(tc.Method),
		}
		if err := registry.Register(decl); err != nil {
			return fmt.Errorf("register tool %s: %w", tc.Name, err)
		}
	}
	return nil
}

func (s *chatSession) interactive(ctx context.Context) error {
	if s.watcher != nil {
		if err := s.watcher.Start(ctx); err != nil {
			s.log.Debug("config watcher not started", zap.Error(err))
		}
	}

	fmt.Println("tern interactive chat. Type a message, or \"exit\" to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		select {
		case updated := <-s.updates:
			s.current = updated
			fmt.Fprintln(os.Stderr, "(configuration reloaded)")
		case <-ctx.Done():
			return nil
		default:
		}

		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		if err := s.runTurn(ctx, line, nil); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(os.Stderr, "turn failed: %v\n", err)
		}
	}
}

// runTurn drives one turn and renders its event stream: deltas to stdout,
// progress to stderr.
func (s *chatSession) runTurn(ctx context.Context, text string, paths []string) error {
	release, err := s.gate.Begin(ctx)
	if err != nil {
		return err
	}
	defer release()

	attachments, err := loadAttachments(paths)
	if err != nil {
		return err
	}

	memories, err := s.memorySnippets(ctx)
	if err != nil {
		return err
	}

	orch, err := s.buildOrchestrator()
	if err != nil {
		return err
	}

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var terminal turn.Event
	for ev := range orch.Run(turnCtx, turn.Input{
		Text:        text,
		Attachments: attachments,
		History:     s.history,
		Memories:    memories,
	}) {
		renderEvent(ev)
		if ev.Finished {
			terminal = ev
		}
	}

	switch terminal.Disposition {
	case turn.DispositionCompleted:
		s.history = append(s.history,
			turn.HistoryEntry{Role: "user", Text: text},
			turn.HistoryEntry{Role: "model", Text: terminal.FinalText},
		)
		if !incognito && len(terminal.Operations) > 0 {
			if err := memory.Apply(ctx, s.store, terminal.Operations); err != nil {
				s.log.Warn("memory update incomplete", zap.Error(err))
			}
		}
	case turn.DispositionAborted:
		fmt.Fprintln(os.Stderr, "(turn aborted)")
	case turn.DispositionErrored:
		return terminal.Err
	}
	return nil
}

func (s *chatSession) buildOrchestrator() (*turn.Orchestrator, error) {
	cfg := s.current

	timeout, err := cfg.ModelTimeout()
	if err != nil {
		return nil, err
	}
	client := gemini.NewClient(gemini.Config{
		APIKey:  cfg.Model.APIKey,
		BaseURL: cfg.Model.BaseURL,
		Model:   cfg.Model.Name,
		Timeout: timeout,
	})

	interval, err := cfg.UploadPollInterval()
	if err != nil {
		return nil, err
	}
	uploader := turn.NewUploader(client, turn.RetryPolicy{
		Interval:    interval,
		MaxAttempts: cfg.Upload.MaxPollAttempts,
	})
	invoker := turn.NewInvoker(uploader, nil)

	safety := make([]gemini.SafetySetting, 0, len(cfg.Model.SafetyThresholds))
	for _, st := range cfg.Model.SafetyThresholds {
		safety = append(safety, gemini.SafetySetting{Category: st.Category, Threshold: st.Threshold})
	}

	opts := turn.Options{
		SystemInstruction: cfg.Model.SystemInstruction,
		Temperature:       cfg.Model.Temperature,
		TopP:              cfg.Model.TopP,
		TopK:              cfg.Model.TopK,
		MaxOutputTokens:   cfg.Model.MaxOutputTokens,
		ThinkingBudget:    cfg.Model.ThinkingBudget,
		SafetySettings:    safety,
		EnableSearch:      cfg.Model.EnableSearch,
		Incognito:         incognito || cfg.Incognito,
	}
	return turn.NewOrchestrator(client, uploader, invoker, s.registry, opts), nil
}

func (s *chatSession) memorySnippets(ctx context.Context) ([]string, error) {
	if incognito || s.current.Incognito {
		return nil, nil
	}
	entries, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	snippets := make([]string, 0, len(entries))
	for _, m := range entries {
		if m.DeleteSuggested {
			continue
		}
		snippets = append(snippets, m.Content)
	}
	return snippets, nil
}

func loadAttachments(paths []string) ([]*turn.Attachment, error) {
	var out []*turn.Attachment
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read attachment: %w", err)
		}
		mimeType := mime.TypeByExtension(filepath.Ext(p))
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		out = append(out, &turn.Attachment{
			ID:          uuid.NewString(),
			DisplayName: filepath.Base(p),
			MimeType:    mimeType,
			Size:        int64(len(data)),
			State:       turn.AttachmentRaw,
			Data:        data,
		})
	}
	return out, nil
}

func renderEvent(ev turn.Event) {
	switch {
	case ev.TextDelta != "":
		fmt.Print(ev.TextDelta)
	case ev.Status != nil:
		s := ev.Status
		line := fmt.Sprintf("[%s] %s: %s", s.Kind, s.SubjectName, s.Stage)
		if s.ErrorText != "" {
			line += " (" + s.ErrorText + ")"
		}
		fmt.Fprintln(os.Stderr, line)
	case ev.Promoted != nil:
		fmt.Fprintf(os.Stderr, "[attachment] %s (%s, %d bytes)\n",
			ev.Promoted.DisplayName, ev.Promoted.MimeType, ev.Promoted.Size)
	case ev.Finished:
		fmt.Println()
	}
}
