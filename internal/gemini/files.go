package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// UploadFile uploads raw bytes through the resumable upload protocol and
// returns the created file resource. displayName is shown to humans;
// resourceName is the provider-safe identifier (see turn.SanitizeResourceName).
// The returned file is usually still PROCESSING; callers poll GetFile until
// it reaches ACTIVE.
func (c *Client) UploadFile(ctx context.Context, data []byte, mimeType, displayName, resourceName string) (*File, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("API key not configured")
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	c.log.Debug("upload start",
		zap.String("display_name", displayName),
		zap.String("resource_name", resourceName),
		zap.Int("size", len(data)),
		zap.String("mime", mimeType))

	// 1. Start a resumable session. The upload endpoints live under
	// /upload/v1beta rather than /v1beta.
	uploadBase := strings.Replace(c.baseURL, "/v1beta", "/upload/v1beta", 1)
	url := fmt.Sprintf("%s/files?key=%s", uploadBase, c.apiKey)

	meta := map[string]any{
		"file": map[string]string{
			"name":        "files/" + resourceName,
			"displayName": displayName,
		},
	}
	jsonMeta, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonMeta))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Upload-Protocol", "resumable")
	req.Header.Set("X-Goog-Upload-Command", "start")
	req.Header.Set("X-Goog-Upload-Header-Content-Length", fmt.Sprintf("%d", len(data)))
	req.Header.Set("X-Goog-Upload-Header-Content-Type", mimeType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload start request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("upload start failed (status %d): %s", resp.StatusCode, body)
	}

	uploadURL := resp.Header.Get("X-Goog-Upload-URL")
	if uploadURL == "" {
		return nil, fmt.Errorf("no upload URL returned in headers")
	}

	// 2. Upload the bytes and finalize in one shot.
	reqUpload, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	reqUpload.Header.Set("Content-Length", fmt.Sprintf("%d", len(data)))
	reqUpload.Header.Set("X-Goog-Upload-Offset", "0")
	reqUpload.Header.Set("X-Goog-Upload-Command", "upload, finalize")

	respUpload, err := c.httpClient.Do(reqUpload)
	if err != nil {
		return nil, fmt.Errorf("upload data failed: %w", err)
	}
	defer respUpload.Body.Close()

	if respUpload.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(respUpload.Body)
		return nil, fmt.Errorf("upload finalization failed (status %d): %s", respUpload.StatusCode, body)
	}

	var result uploadResponse
	if err := json.NewDecoder(respUpload.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("parse upload response: %w", err)
	}
	if result.File.Name == "" {
		return nil, fmt.Errorf("no file resource in upload response")
	}

	c.log.Debug("upload accepted", zap.String("name", result.File.Name), zap.String("state", result.File.State))
	return &result.File, nil
}

// GetFile retrieves file metadata (including activation state) by resource
// name ("files/abc123").
func (c *Client) GetFile(ctx context.Context, name string) (*File, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("API key not configured")
	}
	if !strings.HasPrefix(name, "files/") {
		name = "files/" + name
	}

	url := fmt.Sprintf("%s/%s?key=%s", c.baseURL, name, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("get file failed (status %d): %s", resp.StatusCode, body)
	}

	var file File
	if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
		return nil, err
	}
	return &file, nil
}
