package simpleattachment

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// Service defines the main interface for the simple-attachment library
type Service interface {
	// Create writes the blob and persists its record. No record survives a
	// failed write.
	Create(ctx context.Context, req CreateAttachmentRequest) (*Attachment, error)
	Get(ctx context.Context, id uuid.UUID) (*Attachment, error)
	FindByOwner(ctx context.Context, ownerType OwnerType, ownerID string) ([]*Attachment, error)

	// Replace stores new content under a fresh name and repoints the record.
	// The previous blob is left in place.
	Replace(ctx context.Context, req ReplaceAttachmentRequest) (*Attachment, error)

	// Delete removes the record only; its blob stays until reconciliation.
	Delete(ctx context.Context, id uuid.UUID) error

	// Purge removes the record and then its blob.
	Purge(ctx context.Context, id uuid.UUID) error

	Open(ctx context.Context, id uuid.UUID) (io.ReadCloser, error)

	// AllStoredPaths returns the set of stored paths referenced by live records
	AllStoredPaths(ctx context.Context) (map[string]struct{}, error)
}

// CreateAttachmentRequest contains parameters for creating an attachment
type CreateAttachmentRequest struct {
	AttachmentType string
	OriginalName   string
	Owner          *OwnerRef
	Reader         io.Reader
}

// ReplaceAttachmentRequest contains parameters for replacing attachment content
type ReplaceAttachmentRequest struct {
	ID           uuid.UUID
	OriginalName string
	Reader       io.Reader
}
