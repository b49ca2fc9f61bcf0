// Package turn drives one assistant turn end to end: attachment upload and
// activation, the streaming completion loop, tool execution, and memory
// directive extraction from the final text. The orchestrator is a sequential
// driver; every blocking operation honors the turn's context.
package turn

import (
	"context"
	"time"

	"tern/internal/gemini"
	"tern/internal/memory"
)

// AttachmentState is the lifecycle of a binary attachment.
type AttachmentState string

const (
	AttachmentRaw                AttachmentState = "raw"
	AttachmentUploading          AttachmentState = "uploading"
	AttachmentAwaitingActivation AttachmentState = "awaiting_activation"
	AttachmentActive             AttachmentState = "active"
	AttachmentFailed             AttachmentState = "failed"
)

// Attachment is a binary resource the model may reference once active.
// Data is only populated while raw; after upload the provider URI stands in.
type Attachment struct {
	ID          string
	DisplayName string
	MimeType    string
	Size        int64
	State       AttachmentState

	Data []byte

	// Provider resource identity, set once the upload request succeeds.
	ResourceName string
	URI          string
}

// StatusKind identifies which phase a ProcessingStatus describes.
type StatusKind string

const (
	KindAttachmentUpload         StatusKind = "attachment_upload"
	KindToolRequest              StatusKind = "tool_request"
	KindToolExecution            StatusKind = "tool_execution"
	KindToolResponse             StatusKind = "tool_response"
	KindDownstreamFileProcessing StatusKind = "downstream_file_processing"
)

// StatusStage is the progress stage within one phase. Transitions are
// monotonic: a phase never regresses from completed or failed.
type StatusStage string

const (
	StagePending       StatusStage = "pending"
	StageInProgress    StatusStage = "in_progress"
	StageAwaitingModel StatusStage = "awaiting_model"
	StageCompleted     StatusStage = "completed"
	StageFailed        StatusStage = "failed"
)

// ProcessingStatus is the uniform progress record emitted throughout a turn.
type ProcessingStatus struct {
	Kind        StatusKind
	Stage       StatusStage
	SubjectName string
	Detail      string
	ErrorText   string
}

// Disposition is the terminal outcome of a turn.
type Disposition string

const (
	DispositionCompleted Disposition = "completed"
	DispositionAborted   Disposition = "aborted"
	DispositionErrored   Disposition = "errored"
)

// Event is one record on the progress stream handed to the caller. Exactly
// one event per turn carries Finished=true; it is always the last.
type Event struct {
	TextDelta string
	Status    *ProcessingStatus

	// Promoted is an attachment surfaced by a tool call, ready for display.
	Promoted *Attachment

	// ContextSnapshot is the outgoing context after a tool exchange was
	// appended, usable to resume a turn.
	ContextSnapshot []gemini.Content

	Err error

	Finished    bool
	FinalText   string
	Operations  []memory.Operation
	Disposition Disposition
}

// RetryPolicy bounds the upload-activation poll loop.
type RetryPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

// DefaultRetryPolicy matches the provider's typical activation latency.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Interval: 2 * time.Second, MaxAttempts: 15}
}

// Completer issues streaming completion requests.
type Completer interface {
	StreamGenerateContent(ctx context.Context, req *gemini.GenerateRequest) (<-chan gemini.StreamChunk, <-chan error)
}

// FileService uploads binaries to the provider file store and reports
// activation state.
type FileService interface {
	UploadFile(ctx context.Context, data []byte, mimeType, displayName, resourceName string) (*gemini.File, error)
	GetFile(ctx context.Context, name string) (*gemini.File, error)
}
