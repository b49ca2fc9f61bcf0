// Package gemini is a minimal REST client for the Gemini v1beta API: SSE
// streaming completions and the files upload/activation endpoints. Only the
// surface the turn engine needs is implemented.
package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"tern/internal/logging"
)

// Client talks to the Gemini REST API. Construct with NewClient; the zero
// value is not usable.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	log        *zap.Logger
}

// NewClient creates a Gemini client from config.
func NewClient(cfg Config) *Client {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		log:        logging.For("gemini"),
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// StreamGenerateContent issues one streaming completion call. Decoded chunks
// arrive on the first channel; at most one error arrives on the second. Both
// channels are closed when the stream ends. Cancelling ctx aborts the stream
// and surfaces ctx.Err() on the error channel.
func (c *Client) StreamGenerateContent(ctx context.Context, req *GenerateRequest) (<-chan StreamChunk, <-chan error) {
	chunkChan := make(chan StreamChunk, 16)
	errChan := make(chan error, 1)

	go func() {
		defer close(chunkChan)
		defer close(errChan)

		start := time.Now()

		if c.apiKey == "" {
			errChan <- fmt.Errorf("API key not configured")
			return
		}

		body, err := json.Marshal(req)
		if err != nil {
			errChan <- fmt.Errorf("marshal request: %w", err)
			return
		}

		url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s", c.baseURL, c.model, c.apiKey)

		maxRetries := 3
		var lastErr error

		for attempt := 0; attempt <= maxRetries; attempt++ {
			if attempt > 0 {
				select {
				case <-time.After(time.Duration(1<<uint(attempt-1)) * time.Second):
				case <-ctx.Done():
					errChan <- ctx.Err()
					return
				}
			}

			httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				errChan <- fmt.Errorf("create request: %w", err)
				return
			}
			httpReq.Header.Set("Content-Type", "application/json")
			httpReq.Header.Set("Accept", "text/event-stream")

			resp, err := c.httpClient.Do(httpReq)
			if err != nil {
				if ctx.Err() != nil {
					errChan <- ctx.Err()
					return
				}
				lastErr = fmt.Errorf("request failed: %w", err)
				continue
			}

			if resp.StatusCode == http.StatusTooManyRequests {
				b, _ := io.ReadAll(resp.Body)
				resp.Body.Close()
				lastErr = fmt.Errorf("rate limit exceeded (429): %s", strings.TrimSpace(string(b)))
				continue
			}

			if resp.StatusCode != http.StatusOK {
				b, _ := io.ReadAll(resp.Body)
				resp.Body.Close()
				errChan <- fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(b))
				return
			}

			err = c.consumeStream(ctx, resp.Body, chunkChan)
			resp.Body.Close()
			if err != nil {
				c.log.Warn("stream ended with error", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
				errChan <- err
				return
			}
			c.log.Debug("stream completed", zap.Duration("elapsed", time.Since(start)))
			return
		}

		c.log.Error("max retries exceeded", zap.Error(lastErr))
		errChan <- fmt.Errorf("max retries exceeded: %w", lastErr)
	}()

	return chunkChan, errChan
}

// consumeStream reads SSE lines and forwards decoded chunks until the body
// ends or ctx is cancelled.
func (c *Client) consumeStream(ctx context.Context, body io.Reader, out chan<- StreamChunk) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}

		var chunk GenerateResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Error != nil {
			return fmt.Errorf("API error: %s", chunk.Error.Message)
		}
		if len(chunk.Candidates) == 0 {
			continue
		}

		cand := chunk.Candidates[0]
		for _, part := range cand.Content.Parts {
			sc := StreamChunk{FinishReason: cand.FinishReason}
			if part.Text != "" {
				sc.TextDelta = part.Text
			}
			if part.FunctionCall != nil {
				sc.FunctionCall = part.FunctionCall
			}
			if sc.TextDelta == "" && sc.FunctionCall == nil && sc.FinishReason == "" {
				continue
			}
			select {
			case out <- sc:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}
