// Package retry decorates a BlobStore with bounded exponential-backoff retries
// for transient backend failures.
package retry

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"time"

	"github.com/aws/smithy-go"
	"github.com/sethvargo/go-retry"
	"github.com/tendant/simple-attachment/pkg/simpleattachment"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 100 * time.Millisecond
)

// Config controls the retry policy
type Config struct {
	MaxRetries uint64        // Retries after the first attempt; 0 disables retrying
	BaseDelay  time.Duration // First backoff interval, doubled per attempt
}

// Store retries idempotent operations of the wrapped store. Write is never
// retried since a partially consumed reader cannot be replayed.
type Store struct {
	next simpleattachment.BlobStore
	cfg  Config
}

// Wrap returns next decorated with retries. A zero BaseDelay uses DefaultBaseDelay.
func Wrap(next simpleattachment.BlobStore, cfg Config) *Store {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	return &Store{next: next, cfg: cfg}
}

// Unwrap returns the decorated store
func (s *Store) Unwrap() simpleattachment.BlobStore {
	return s.next
}

func (s *Store) do(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(s.cfg.MaxRetries, retry.NewExponential(s.cfg.BaseDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil || !retryable(err) {
			return err
		}
		return retry.RetryableError(err)
	})
}

// retryable reports whether err may be transient. Domain outcomes and
// permission failures are final.
func retryable(err error) bool {
	switch {
	case errors.Is(err, simpleattachment.ErrObjectNotFound),
		errors.Is(err, simpleattachment.ErrDuplicateKey),
		errors.Is(err, fs.ErrPermission),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if _, final := finalAPICodes[apiErr.ErrorCode()]; final {
			return false
		}
	}
	return true
}

// finalAPICodes are object-store error codes that a retry cannot change
var finalAPICodes = map[string]struct{}{
	"AccessDenied":          {},
	"AllAccessDisabled":     {},
	"Forbidden":             {},
	"InvalidAccessKeyId":    {},
	"SignatureDoesNotMatch": {},
	"ExpiredToken":          {},
	"InvalidToken":          {},
	"NoSuchBucket":          {},
}

func (s *Store) Write(ctx context.Context, key string, r io.Reader) (int64, error) {
	return s.next.Write(ctx, key, r)
}

func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	var rc io.ReadCloser
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		rc, err = s.next.Open(ctx, key)
		return err
	})
	return rc, err
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		ok, err = s.next.Exists(ctx, key)
		return err
	})
	return ok, err
}

func (s *Store) SizeOf(ctx context.Context, key string) (int64, error) {
	var size int64
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		size, err = s.next.SizeOf(ctx, key)
		return err
	})
	return size, err
}

func (s *Store) GetObjectMeta(ctx context.Context, key string) (*simpleattachment.ObjectMeta, error) {
	var meta *simpleattachment.ObjectMeta
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		meta, err = s.next.GetObjectMeta(ctx, key)
		return err
	})
	return meta, err
}

// Delete retries transient failures. A retry that finds the object already
// gone after an earlier attempt failed mid-flight still reports ErrObjectNotFound.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.do(ctx, func(ctx context.Context) error {
		return s.next.Delete(ctx, key)
	})
}

func (s *Store) ListAllKeys(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		keys, err = s.next.ListAllKeys(ctx)
		return err
	})
	return keys, err
}

var _ simpleattachment.BlobStore = (*Store)(nil)
