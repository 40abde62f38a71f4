package memory

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/tendant/simple-attachment/pkg/simpleattachment"
)

type object struct {
	data      []byte
	updatedAt time.Time
}

// Backend is an in-memory implementation of the simpleattachment.BlobStore interface
type Backend struct {
	mu      sync.RWMutex
	objects map[string]object
	clock   func() time.Time
}

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{
		objects: make(map[string]object),
		clock:   time.Now,
	}
}

// Write stores the reader's content under key unless the key is taken
func (b *Backend) Write(ctx context.Context, key string, r io.Reader) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[key]; exists {
		return 0, &simpleattachment.DuplicateKeyError{Key: key}
	}
	b.objects[key] = object{data: data, updatedAt: b.clock()}
	return int64(len(data)), nil
}

// Open returns a reader over the stored bytes
func (b *Backend) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[key]
	if !exists {
		return nil, simpleattachment.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, exists := b.objects[key]
	return exists, nil
}

func (b *Backend) SizeOf(ctx context.Context, key string) (int64, error) {
	meta, err := b.GetObjectMeta(ctx, key)
	if err != nil {
		return 0, err
	}
	return meta.Size, nil
}

// GetObjectMeta retrieves metadata for an object in memory
func (b *Backend) GetObjectMeta(ctx context.Context, key string) (*simpleattachment.ObjectMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[key]
	if !exists {
		return nil, simpleattachment.ErrObjectNotFound
	}

	return &simpleattachment.ObjectMeta{
		Key:         key,
		Size:        int64(len(obj.data)),
		ContentType: http.DetectContentType(obj.data),
		UpdatedAt:   obj.updatedAt,
	}, nil
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[key]; !exists {
		return simpleattachment.ErrObjectNotFound
	}
	delete(b.objects, key)
	return nil
}

func (b *Backend) ListAllKeys(ctx context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0, len(b.objects))
	for key := range b.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// Put seeds a blob with an explicit modification time, overwriting any
// existing content. Intended for tests and fixtures.
func (b *Backend) Put(key string, data []byte, updatedAt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = object{data: append([]byte(nil), data...), updatedAt: updatedAt}
}

var _ simpleattachment.BlobStore = (*Backend)(nil)
