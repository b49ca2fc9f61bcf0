package turn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tern/internal/gemini"
	"tern/internal/logging"
)

// ErrActivationTimeout is returned when an uploaded file never reaches the
// ACTIVE state within the retry budget.
var ErrActivationTimeout = errors.New("file activation timed out")

// Uploader pushes raw attachments to the provider file store and polls until
// each is active. Uploads are sequential; status ordering is deterministic.
type Uploader struct {
	files  FileService
	policy RetryPolicy
	log    *zap.Logger
}

// NewUploader creates an uploader with the given activation retry policy.
func NewUploader(files FileService, policy RetryPolicy) *Uploader {
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy()
	}
	return &Uploader{files: files, policy: policy, log: logging.For("uploader")}
}

// Upload sends one raw attachment and blocks until it is active, emitting
// attachment_upload statuses along the way. On success the attachment is
// mutated in place to active with its provider URI set. Context cancellation
// is returned as-is so callers can distinguish an abort from a failure.
func (u *Uploader) Upload(ctx context.Context, att *Attachment, emit func(ProcessingStatus)) error {
	emit(ProcessingStatus{Kind: KindAttachmentUpload, Stage: StagePending, SubjectName: att.DisplayName})

	if err := ctx.Err(); err != nil {
		return err
	}

	att.State = AttachmentUploading
	resource := SanitizeResourceName(att.DisplayName)
	emit(ProcessingStatus{Kind: KindAttachmentUpload, Stage: StageInProgress, SubjectName: att.DisplayName})

	file, err := u.files.UploadFile(ctx, att.Data, att.MimeType, att.DisplayName, resource)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		att.State = AttachmentFailed
		emit(ProcessingStatus{
			Kind: KindAttachmentUpload, Stage: StageFailed,
			SubjectName: att.DisplayName, ErrorText: err.Error(),
		})
		return fmt.Errorf("upload %s: %w", att.DisplayName, err)
	}

	att.ResourceName = file.Name
	att.URI = file.URI
	att.State = AttachmentAwaitingActivation

	if err := u.awaitActive(ctx, att, file); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		att.State = AttachmentFailed
		emit(ProcessingStatus{
			Kind: KindAttachmentUpload, Stage: StageFailed,
			SubjectName: att.DisplayName, ErrorText: err.Error(),
		})
		return err
	}

	att.State = AttachmentActive
	att.Data = nil
	emit(ProcessingStatus{Kind: KindAttachmentUpload, Stage: StageCompleted, SubjectName: att.DisplayName})
	u.log.Debug("attachment active", zap.String("resource", att.ResourceName))
	return nil
}

func (u *Uploader) awaitActive(ctx context.Context, att *Attachment, file *gemini.File) error {
	for attempt := 0; attempt < u.policy.MaxAttempts; attempt++ {
		switch file.State {
		case gemini.FileStateActive:
			att.URI = file.URI
			return nil
		case gemini.FileStateFailed:
			return fmt.Errorf("file %s processing failed", att.DisplayName)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(u.policy.Interval):
		}

		updated, err := u.files.GetFile(ctx, att.ResourceName)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("poll %s: %w", att.DisplayName, err)
		}
		file = updated
	}
	return fmt.Errorf("%w: %s not active after %d attempts",
		ErrActivationTimeout, att.DisplayName, u.policy.MaxAttempts)
}
