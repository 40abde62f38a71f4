package simpleattachment

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error types
var (
	// ErrAttachmentNotFound indicates an attachment record was not found
	ErrAttachmentNotFound = errors.New("attachment not found")

	// ErrObjectNotFound indicates a blob was not found in storage
	ErrObjectNotFound = errors.New("object not found")

	// ErrDuplicateKey indicates a stored path is already taken, either by a
	// record or by a blob
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidOwnerRef indicates only one half of an owner reference was given
	ErrInvalidOwnerRef = errors.New("owner reference requires both owner type and owner id")

	// ErrUnknownOwnerType indicates an owner type outside the known set, or one
	// with no registered lookup
	ErrUnknownOwnerType = errors.New("unknown owner type")

	// ErrInvalidName indicates an empty or unusable original file name
	ErrInvalidName = errors.New("invalid file name")

	// ErrReconcileInProgress indicates a reconciliation run is already active
	ErrReconcileInProgress = errors.New("reconciliation already in progress")

	// ErrReconcileUnsafe indicates a deleting run was refused because the
	// referenced set cannot be trusted, e.g. records live only in memory
	ErrReconcileUnsafe = errors.New("reconciliation refused: referenced paths are not durable")
)

// AttachmentError represents an error related to attachment operations
type AttachmentError struct {
	AttachmentID uuid.UUID
	Op           string
	Err          error
}

func (e *AttachmentError) Error() string {
	return fmt.Sprintf("attachment operation %s failed for attachment %s: %v", e.Op, e.AttachmentID, e.Err)
}

func (e *AttachmentError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to storage operations
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// DuplicateKeyError is returned when a write targets a key that already exists.
type DuplicateKeyError struct {
	Key string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key %s", e.Key)
}

func (e *DuplicateKeyError) Unwrap() error {
	return ErrDuplicateKey
}

// StorageWriteError means a blob could not be durably written. No record is
// persisted when Create fails with it.
type StorageWriteError struct {
	Key string
	Err error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("failed to write blob %s: %v", e.Key, e.Err)
}

func (e *StorageWriteError) Unwrap() error {
	return e.Err
}

// StorageEnumerationError means listing the storage root failed. It is fatal
// to a reconciliation run and is raised before any deletion.
type StorageEnumerationError struct {
	Err error
}

func (e *StorageEnumerationError) Error() string {
	return fmt.Sprintf("failed to enumerate storage: %v", e.Err)
}

func (e *StorageEnumerationError) Unwrap() error {
	return e.Err
}

// PerPathDeleteError records one orphan that could not be removed.
type PerPathDeleteError struct {
	Path string
	Err  error
}

func (e *PerPathDeleteError) Error() string {
	return fmt.Sprintf("failed to delete %s: %v", e.Path, e.Err)
}

func (e *PerPathDeleteError) Unwrap() error {
	return e.Err
}

// SourceError means a referenced-path source could not be read. Like
// StorageEnumerationError it aborts reconciliation before side effects.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("failed to read referenced paths from %s: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}
