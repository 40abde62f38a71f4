package simpleattachment

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// BlobStore defines the interface for storage backends.
// Keys are slash-separated and relative to the backend's storage root.
type BlobStore interface {
	// Write stores the reader under key and returns the number of bytes
	// written. It never overwrites: an existing key yields *DuplicateKeyError.
	Write(ctx context.Context, key string, r io.Reader) (int64, error)

	// Open returns a reader for the blob at key
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists reports whether a blob is present at key
	Exists(ctx context.Context, key string) (bool, error)

	// SizeOf returns the blob length in bytes
	SizeOf(ctx context.Context, key string) (int64, error)

	// GetObjectMeta retrieves metadata for a blob
	GetObjectMeta(ctx context.Context, key string) (*ObjectMeta, error)

	// Delete removes the blob; a missing key yields ErrObjectNotFound
	Delete(ctx context.Context, key string) error

	// ListAllKeys enumerates every blob under the storage root, sorted
	ListAllKeys(ctx context.Context) ([]string, error)
}

// Repository defines the interface for attachment record persistence
type Repository interface {
	CreateAttachment(ctx context.Context, attachment *Attachment) error
	GetAttachment(ctx context.Context, id uuid.UUID) (*Attachment, error)
	UpdateAttachment(ctx context.Context, attachment *Attachment) error
	DeleteAttachment(ctx context.Context, id uuid.UUID) error

	// ListAttachmentsByOwner returns records bound to the given owner ordered
	// by creation time, then id
	ListAttachmentsByOwner(ctx context.Context, ownerType OwnerType, ownerID string) ([]*Attachment, error)
	ListAttachments(ctx context.Context, params ListAttachmentsParams) ([]*Attachment, error)

	// ListStoredPaths returns the stored path of every live record
	ListStoredPaths(ctx context.Context) ([]string, error)
}

// PathSource yields the blob paths one kind of file-bearing record references.
// Reconciliation treats the union of all configured sources as live.
type PathSource interface {
	Name() string
	StoredPaths(ctx context.Context) ([]string, error)
}

// EventSink receives attachment lifecycle notifications
type EventSink interface {
	AttachmentCreated(ctx context.Context, attachment *Attachment) error
	AttachmentReplaced(ctx context.Context, attachment *Attachment, previousPath string) error
	AttachmentDeleted(ctx context.Context, attachment *Attachment) error
}

// ListAttachmentsParams contains pagination for listing attachments
type ListAttachmentsParams struct {
	Limit  int
	Offset int
}
