package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/tendant/simple-attachment/pkg/simpleattachment"
)

// Repository implements simpleattachment.Repository using in-memory storage.
// Records are copied on the way in and out, so callers never share state
// with the store.
type Repository struct {
	mu          sync.RWMutex
	attachments map[uuid.UUID]*simpleattachment.Attachment
	byPath      map[string]uuid.UUID // stored_path -> attachment id
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		attachments: make(map[uuid.UUID]*simpleattachment.Attachment),
		byPath:      make(map[string]uuid.UUID),
	}
}

func (r *Repository) CreateAttachment(ctx context.Context, attachment *simpleattachment.Attachment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.attachments[attachment.ID]; exists {
		return simpleattachment.ErrDuplicateKey
	}
	if _, taken := r.byPath[attachment.StoredPath]; taken {
		return &simpleattachment.DuplicateKeyError{Key: attachment.StoredPath}
	}

	r.attachments[attachment.ID] = attachment.Clone()
	r.byPath[attachment.StoredPath] = attachment.ID
	return nil
}

func (r *Repository) GetAttachment(ctx context.Context, id uuid.UUID) (*simpleattachment.Attachment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, exists := r.attachments[id]
	if !exists {
		return nil, simpleattachment.ErrAttachmentNotFound
	}
	return a.Clone(), nil
}

func (r *Repository) UpdateAttachment(ctx context.Context, attachment *simpleattachment.Attachment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.attachments[attachment.ID]
	if !exists {
		return simpleattachment.ErrAttachmentNotFound
	}
	if owner, taken := r.byPath[attachment.StoredPath]; taken && owner != attachment.ID {
		return &simpleattachment.DuplicateKeyError{Key: attachment.StoredPath}
	}

	delete(r.byPath, current.StoredPath)
	r.attachments[attachment.ID] = attachment.Clone()
	r.byPath[attachment.StoredPath] = attachment.ID
	return nil
}

func (r *Repository) DeleteAttachment(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, exists := r.attachments[id]
	if !exists {
		return simpleattachment.ErrAttachmentNotFound
	}
	delete(r.byPath, a.StoredPath)
	delete(r.attachments, id)
	return nil
}

func (r *Repository) ListAttachmentsByOwner(ctx context.Context, ownerType simpleattachment.OwnerType, ownerID string) ([]*simpleattachment.Attachment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*simpleattachment.Attachment
	for _, a := range r.attachments {
		if a.Owner != nil && a.Owner.Type == ownerType && a.Owner.ID == ownerID {
			result = append(result, a.Clone())
		}
	}
	sortAttachments(result)
	return result, nil
}

func (r *Repository) ListAttachments(ctx context.Context, params simpleattachment.ListAttachmentsParams) ([]*simpleattachment.Attachment, error) {
	r.mu.RLock()
	all := make([]*simpleattachment.Attachment, 0, len(r.attachments))
	for _, a := range r.attachments {
		all = append(all, a.Clone())
	}
	r.mu.RUnlock()

	sortAttachments(all)

	if params.Offset > 0 {
		if params.Offset >= len(all) {
			return []*simpleattachment.Attachment{}, nil
		}
		all = all[params.Offset:]
	}
	if params.Limit > 0 && params.Limit < len(all) {
		all = all[:params.Limit]
	}
	return all, nil
}

func (r *Repository) ListStoredPaths(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	paths := make([]string, 0, len(r.byPath))
	for p := range r.byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

func sortAttachments(list []*simpleattachment.Attachment) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID.String() < list[j].ID.String()
	})
}

var _ simpleattachment.Repository = (*Repository)(nil)
