package simpleattachment

import (
	"context"
	"log/slog"
)

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

func (n *NoopEventSink) AttachmentCreated(ctx context.Context, attachment *Attachment) error {
	return nil
}

func (n *NoopEventSink) AttachmentReplaced(ctx context.Context, attachment *Attachment, previousPath string) error {
	return nil
}

func (n *NoopEventSink) AttachmentDeleted(ctx context.Context, attachment *Attachment) error {
	return nil
}

// LoggingEventSink writes each lifecycle event to a structured logger
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates an event sink backed by logger, or slog.Default
// when logger is nil
func NewLoggingEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger}
}

func (l *LoggingEventSink) AttachmentCreated(ctx context.Context, a *Attachment) error {
	l.logger.InfoContext(ctx, "attachment created", "id", a.ID, "stored_path", a.StoredPath, "size_bytes", a.SizeBytes, "owner", ownerAttr(a.Owner))
	return nil
}

func (l *LoggingEventSink) AttachmentReplaced(ctx context.Context, a *Attachment, previousPath string) error {
	l.logger.InfoContext(ctx, "attachment replaced", "id", a.ID, "stored_path", a.StoredPath, "previous_path", previousPath)
	return nil
}

func (l *LoggingEventSink) AttachmentDeleted(ctx context.Context, a *Attachment) error {
	l.logger.InfoContext(ctx, "attachment deleted", "id", a.ID, "stored_path", a.StoredPath)
	return nil
}

func ownerAttr(ref *OwnerRef) string {
	if ref == nil {
		return ""
	}
	return ref.String()
}
