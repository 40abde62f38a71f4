package simpleattachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-attachment/pkg/simpleattachment/naming"
)

// service implements the Service interface
type service struct {
	repository Repository
	blobStore  BlobStore
	namer      naming.Generator
	eventSink  EventSink
	clock      func() time.Time
	logger     *slog.Logger
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore sets the blob storage backend
func WithBlobStore(store BlobStore) Option {
	return func(s *service) {
		s.blobStore = store
	}
}

// WithNameGenerator overrides the stored-name strategy
func WithNameGenerator(g naming.Generator) Option {
	return func(s *service) {
		s.namer = g
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithClock sets the time source used for timestamps and stored names
func WithClock(clock func() time.Time) Option {
	return func(s *service) {
		s.clock = clock
	}
}

// WithLogger sets the logger used for non-fatal failures
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		namer:     naming.NewDefaultGenerator(),
		eventSink: NewNoopEventSink(),
		clock:     func() time.Time { return time.Now().UTC() },
		logger:    slog.Default(),
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.blobStore == nil {
		return nil, fmt.Errorf("blob store is required")
	}

	return s, nil
}

func (s *service) Create(ctx context.Context, req CreateAttachmentRequest) (*Attachment, error) {
	if strings.TrimSpace(req.OriginalName) == "" {
		return nil, ErrInvalidName
	}
	if req.Reader == nil {
		return nil, fmt.Errorf("reader is required")
	}
	if req.Owner != nil {
		if err := req.Owner.Validate(); err != nil {
			return nil, err
		}
	}

	now := s.clock()
	key, size, err := s.writeBlob(ctx, req.OriginalName, now, req.Reader)
	if err != nil {
		return nil, err
	}

	attachment := &Attachment{
		ID:             uuid.New(),
		AttachmentType: strings.TrimSpace(req.AttachmentType),
		StoredPath:     key,
		OriginalName:   req.OriginalName,
		DisplayName:    path.Base(key),
		Extension:      naming.Extension(key),
		SizeBytes:      size,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if req.Owner != nil {
		owner := *req.Owner
		attachment.Owner = &owner
	}

	if err := s.repository.CreateAttachment(ctx, attachment); err != nil {
		s.discardBlob(ctx, key)
		return nil, &AttachmentError{AttachmentID: attachment.ID, Op: "create", Err: err}
	}

	if err := s.eventSink.AttachmentCreated(ctx, attachment); err != nil {
		s.logger.WarnContext(ctx, "attachment created event failed", "id", attachment.ID, "error", err)
	}

	return attachment, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*Attachment, error) {
	return s.repository.GetAttachment(ctx, id)
}

func (s *service) FindByOwner(ctx context.Context, ownerType OwnerType, ownerID string) ([]*Attachment, error) {
	if err := (OwnerRef{Type: ownerType, ID: ownerID}).Validate(); err != nil {
		return nil, err
	}
	attachments, err := s.repository.ListAttachmentsByOwner(ctx, ownerType, ownerID)
	if err != nil {
		return nil, err
	}
	if attachments == nil {
		attachments = []*Attachment{}
	}
	return attachments, nil
}

func (s *service) Replace(ctx context.Context, req ReplaceAttachmentRequest) (*Attachment, error) {
	if strings.TrimSpace(req.OriginalName) == "" {
		return nil, ErrInvalidName
	}
	if req.Reader == nil {
		return nil, fmt.Errorf("reader is required")
	}

	attachment, err := s.repository.GetAttachment(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	key, size, err := s.writeBlob(ctx, req.OriginalName, now, req.Reader)
	if err != nil {
		return nil, err
	}

	previousPath := attachment.StoredPath
	attachment.StoredPath = key
	attachment.OriginalName = req.OriginalName
	attachment.DisplayName = path.Base(key)
	attachment.Extension = naming.Extension(key)
	attachment.SizeBytes = size
	attachment.UpdatedAt = now

	if err := s.repository.UpdateAttachment(ctx, attachment); err != nil {
		s.discardBlob(ctx, key)
		return nil, &AttachmentError{AttachmentID: attachment.ID, Op: "replace", Err: err}
	}

	if err := s.eventSink.AttachmentReplaced(ctx, attachment, previousPath); err != nil {
		s.logger.WarnContext(ctx, "attachment replaced event failed", "id", attachment.ID, "error", err)
	}

	return attachment, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	attachment, err := s.repository.GetAttachment(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repository.DeleteAttachment(ctx, id); err != nil {
		return &AttachmentError{AttachmentID: id, Op: "delete", Err: err}
	}

	if err := s.eventSink.AttachmentDeleted(ctx, attachment); err != nil {
		s.logger.WarnContext(ctx, "attachment deleted event failed", "id", id, "error", err)
	}
	return nil
}

func (s *service) Purge(ctx context.Context, id uuid.UUID) error {
	attachment, err := s.repository.GetAttachment(ctx, id)
	if err != nil {
		return err
	}
	if err := s.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.blobStore.Delete(ctx, attachment.StoredPath); err != nil && !errors.Is(err, ErrObjectNotFound) {
		return &StorageError{Key: attachment.StoredPath, Op: "delete", Err: err}
	}
	return nil
}

func (s *service) Open(ctx context.Context, id uuid.UUID) (io.ReadCloser, error) {
	attachment, err := s.repository.GetAttachment(ctx, id)
	if err != nil {
		return nil, err
	}
	rc, err := s.blobStore.Open(ctx, attachment.StoredPath)
	if err != nil {
		return nil, &StorageError{Key: attachment.StoredPath, Op: "open", Err: err}
	}
	return rc, nil
}

func (s *service) AllStoredPaths(ctx context.Context) (map[string]struct{}, error) {
	paths, err := s.repository.ListStoredPaths(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return set, nil
}

// writeBlob names and writes a new blob. A collision surfaces as
// *DuplicateKeyError; any other failure as *StorageWriteError.
func (s *service) writeBlob(ctx context.Context, originalName string, now time.Time, r io.Reader) (string, int64, error) {
	key := s.namer.Generate(originalName, now)
	size, err := s.blobStore.Write(ctx, key, r)
	if err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			return "", 0, err
		}
		return "", 0, &StorageWriteError{Key: key, Err: err}
	}
	return key, size, nil
}

// discardBlob removes a blob written by a call whose record never landed.
func (s *service) discardBlob(ctx context.Context, key string) {
	if err := s.blobStore.Delete(ctx, key); err != nil && !errors.Is(err, ErrObjectNotFound) {
		s.logger.WarnContext(ctx, "failed to discard blob after record failure", "key", key, "error", err)
	}
}
