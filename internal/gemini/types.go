package gemini

import "time"

// Config holds configuration for the Gemini client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// DefaultConfig returns sensible defaults for the given API key.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:  apiKey,
		BaseURL: "https://generativelanguage.googleapis.com/v1beta",
		Model:   "gemini-2.5-flash",
		Timeout: 10 * time.Minute,
	}
}

// Content is one entry in the request contents array.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is a single piece of content: text, file reference, function call or
// function response. Exactly one field is set.
type Part struct {
	Text             string            `json:"text,omitempty"`
	FileData         *FileData         `json:"fileData,omitempty"`
	InlineData       *Blob             `json:"inlineData,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
}

// FileData references an uploaded file by URI.
type FileData struct {
	FileURI  string `json:"fileUri"`
	MimeType string `json:"mimeType,omitempty"`
}

// Blob carries inline base64 media.
type Blob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// FunctionCall is a tool invocation requested by the model.
type FunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// FunctionResponse feeds a tool result back to the model.
type FunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// GenerationConfig holds sampling parameters. Temperature is a pointer so an
// explicit 0 (greedy sampling) survives serialization; nil leaves the
// provider default in place.
type GenerationConfig struct {
	Temperature     *float64        `json:"temperature,omitempty"`
	TopP            float64         `json:"topP,omitempty"`
	TopK            int             `json:"topK,omitempty"`
	MaxOutputTokens int             `json:"maxOutputTokens,omitempty"`
	ThinkingConfig  *ThinkingConfig `json:"thinkingConfig,omitempty"`
}

// ThinkingConfig bounds the model's reasoning budget.
type ThinkingConfig struct {
	ThinkingBudget int `json:"thinkingBudget"`
}

// SafetySetting is one harm-category threshold.
type SafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

// Tool advertises callable capability: either declared functions or the
// built-in Google Search tool. The API rejects requests combining both.
type Tool struct {
	FunctionDeclarations []FunctionDeclaration `json:"functionDeclarations,omitempty"`
	GoogleSearch         *GoogleSearch         `json:"googleSearch,omitempty"`
}

// GoogleSearch enables built-in web search grounding.
type GoogleSearch struct{}

// FunctionDeclaration describes one callable function.
type FunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// GenerateRequest is the streaming completion request body.
type GenerateRequest struct {
	Contents          []Content        `json:"contents"`
	SystemInstruction *Content         `json:"systemInstruction,omitempty"`
	GenerationConfig  GenerationConfig `json:"generationConfig,omitempty"`
	SafetySettings    []SafetySetting  `json:"safetySettings,omitempty"`
	Tools             []Tool           `json:"tools,omitempty"`
}

// GenerateResponse is one response chunk (SSE) or a whole response body.
type GenerateResponse struct {
	Candidates []Candidate `json:"candidates"`
	Error      *APIError   `json:"error,omitempty"`
}

// Candidate is one model completion candidate.
type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

// APIError is the provider's structured error payload.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// StreamChunk is one decoded streaming event handed to the caller.
// TextDelta and FunctionCall may both be zero for keep-alive chunks.
type StreamChunk struct {
	TextDelta    string
	FunctionCall *FunctionCall
	FinishReason string
}

// File state values reported by the files endpoint.
const (
	FileStateActive     = "ACTIVE"
	FileStateProcessing = "PROCESSING"
	FileStateFailed     = "FAILED"
)

// File is the files endpoint resource.
type File struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
	SizeBytes   string `json:"sizeBytes,omitempty"`
	State       string `json:"state,omitempty"`
	URI         string `json:"uri,omitempty"`
}

type uploadResponse struct {
	File File `json:"file"`
}
