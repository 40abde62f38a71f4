// Package reconcile removes blobs that no metadata record references.
//
// A run computes orphaned = present - referenced, where present is the full
// listing of the blob store and referenced is the union of every configured
// PathSource. Failing to build either set aborts the run before anything is
// deleted. Individual delete failures are recorded and the run continues.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tendant/simple-attachment/pkg/simpleattachment"
	"golang.org/x/sync/errgroup"
)

// Status is the per-path result of a run
type Status string

const (
	StatusWouldDelete Status = "would_delete"
	StatusDeleted     Status = "deleted"
	StatusFailed      Status = "failed"
	StatusSkipped     Status = "skipped"
)

// RunOptions configures a single run
type RunOptions struct {
	// DryRun reports orphans without deleting anything
	DryRun bool

	// Verbose logs every orphan, not only failures
	Verbose bool

	// MinAge skips orphans modified more recently than this, protecting blobs
	// whose record has not been committed yet. Zero disables the check.
	MinAge time.Duration
}

// Outcome is what happened to one orphaned path
type Outcome struct {
	Path      string    `json:"path"`
	Status    Status    `json:"status"`
	SizeBytes int64     `json:"size_bytes"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
	Error     string    `json:"error,omitempty"`

	err error
}

// Err returns the delete failure for a failed outcome
func (o Outcome) Err() error {
	return o.err
}

// Report summarizes a run
type Report struct {
	DryRun          bool      `json:"dry_run"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	ReferencedCount int       `json:"referenced_count"`
	PresentCount    int       `json:"present_count"`
	OrphanCount     int       `json:"orphan_count"`
	DeletedCount    int       `json:"deleted_count"`
	FailedCount     int       `json:"failed_count"`
	SkippedCount    int       `json:"skipped_count"`
	ReclaimedBytes  int64     `json:"reclaimed_bytes"`
	Outcomes        []Outcome `json:"outcomes"`
}

// Orphans returns the orphaned paths in sorted order
func (r *Report) Orphans() []string {
	paths := make([]string, len(r.Outcomes))
	for i, o := range r.Outcomes {
		paths[i] = o.Path
	}
	return paths
}

// Failures returns the per-path errors of the run
func (r *Report) Failures() []error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.err != nil && o.Status == StatusFailed {
			errs = append(errs, o.err)
		}
	}
	return errs
}

// Reconciler runs orphan reconciliation against one blob store
type Reconciler struct {
	store       simpleattachment.BlobStore
	sources     []simpleattachment.PathSource
	logger      *slog.Logger
	concurrency int
	clock       func() time.Time

	// dryRunOnly, when set, is why deleting runs are refused
	dryRunOnly string

	running sync.Mutex
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// WithConcurrency bounds the number of parallel deletes. Values below 1 mean 1.
func WithConcurrency(n int) Option {
	return func(r *Reconciler) {
		r.concurrency = n
	}
}

// WithClock sets the time source used for MinAge and report timestamps
func WithClock(clock func() time.Time) Option {
	return func(r *Reconciler) {
		r.clock = clock
	}
}

// WithDryRunOnly refuses every non-dry run with ErrReconcileUnsafe. Use it
// when the sources cannot be trusted to list every live path.
func WithDryRunOnly(reason string) Option {
	return func(r *Reconciler) {
		r.dryRunOnly = reason
	}
}

// New creates a Reconciler. At least one source is required, otherwise every
// blob would be an orphan.
func New(store simpleattachment.BlobStore, sources []simpleattachment.PathSource, options ...Option) (*Reconciler, error) {
	if store == nil {
		return nil, errors.New("blob store is required")
	}
	if len(sources) == 0 {
		return nil, errors.New("at least one path source is required")
	}

	r := &Reconciler{
		store:       store,
		sources:     append([]simpleattachment.PathSource(nil), sources...),
		logger:      slog.Default(),
		concurrency: 1,
		clock:       func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(r)
	}
	if r.concurrency < 1 {
		r.concurrency = 1
	}
	return r, nil
}

// Sources returns the names of the configured path sources
func (r *Reconciler) Sources() []string {
	names := make([]string, len(r.sources))
	for i, s := range r.sources {
		names[i] = s.Name()
	}
	return names
}

// Run performs one reconciliation pass. It returns an error when the
// referenced or present set cannot be built, when another run on this
// Reconciler is in progress, when a deleting run is refused, or when ctx is
// cancelled mid-run.
func (r *Reconciler) Run(ctx context.Context, opts RunOptions) (*Report, error) {
	if !opts.DryRun && r.dryRunOnly != "" {
		return nil, fmt.Errorf("%w: %s", simpleattachment.ErrReconcileUnsafe, r.dryRunOnly)
	}
	if !r.running.TryLock() {
		return nil, simpleattachment.ErrReconcileInProgress
	}
	defer r.running.Unlock()

	report := &Report{DryRun: opts.DryRun, StartedAt: r.clock()}

	referenced, count, err := r.referencedPaths(ctx)
	if err != nil {
		return nil, err
	}
	report.ReferencedCount = count

	present, err := r.store.ListAllKeys(ctx)
	if err != nil {
		return nil, &simpleattachment.StorageEnumerationError{Err: err}
	}
	report.PresentCount = len(present)

	orphans := Difference(present, referenced)
	report.OrphanCount = len(orphans)
	r.logger.InfoContext(ctx, "reconcile started",
		"dry_run", opts.DryRun,
		"referenced", report.ReferencedCount,
		"present", report.PresentCount,
		"orphans", report.OrphanCount)

	report.Outcomes = make([]Outcome, len(orphans))
	g := new(errgroup.Group)
	g.SetLimit(r.concurrency)
	for i, p := range orphans {
		g.Go(func() error {
			report.Outcomes[i] = r.process(ctx, p, opts)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range report.Outcomes {
		switch o.Status {
		case StatusDeleted:
			report.DeletedCount++
			report.ReclaimedBytes += o.SizeBytes
		case StatusWouldDelete:
			report.ReclaimedBytes += o.SizeBytes
		case StatusFailed:
			report.FailedCount++
		case StatusSkipped:
			report.SkippedCount++
		}
	}
	report.FinishedAt = r.clock()

	r.logger.InfoContext(ctx, "reconcile finished",
		"dry_run", opts.DryRun,
		"orphans", report.OrphanCount,
		"deleted", report.DeletedCount,
		"failed", report.FailedCount,
		"skipped", report.SkippedCount,
		"reclaimed_bytes", report.ReclaimedBytes)

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func (r *Reconciler) process(ctx context.Context, p string, opts RunOptions) Outcome {
	out := Outcome{Path: p}
	if err := ctx.Err(); err != nil {
		out.Status = StatusSkipped
		out.Error = err.Error()
		return out
	}

	meta, err := r.store.GetObjectMeta(ctx, p)
	if err == nil {
		out.SizeBytes = meta.Size
		out.UpdatedAt = meta.UpdatedAt
	} else {
		r.logger.DebugContext(ctx, "orphan metadata unavailable", "path", p, "error", err)
	}

	if opts.MinAge > 0 && out.UpdatedAt.IsZero() {
		out.Status = StatusSkipped
		out.Error = "modification time unknown"
		if err != nil {
			out.Error += ": " + err.Error()
		}
		if opts.Verbose {
			r.logger.InfoContext(ctx, "orphan age unknown, skipped", "path", p)
		}
		return out
	}
	if opts.MinAge > 0 && r.clock().Sub(out.UpdatedAt) < opts.MinAge {
		out.Status = StatusSkipped
		if opts.Verbose {
			r.logger.InfoContext(ctx, "orphan too recent, skipped", "path", p, "updated_at", out.UpdatedAt)
		}
		return out
	}

	if opts.DryRun {
		out.Status = StatusWouldDelete
		if opts.Verbose {
			r.logger.InfoContext(ctx, "[DRY-RUN] would delete orphan", "path", p, "size", out.SizeBytes)
		}
		return out
	}

	if err := r.store.Delete(ctx, p); err != nil {
		out.Status = StatusFailed
		out.err = &simpleattachment.PerPathDeleteError{Path: p, Err: err}
		out.Error = out.err.Error()
		r.logger.ErrorContext(ctx, "failed to delete orphan", "path", p, "error", err)
		return out
	}

	out.Status = StatusDeleted
	if opts.Verbose {
		r.logger.InfoContext(ctx, "deleted orphan", "path", p, "size", out.SizeBytes)
	}
	return out
}

// referencedPaths unions every source. Each path is recorded both as stored
// and in normalized form, and count is the number of distinct normalized
// paths. Any source failure is fatal since a partial referenced set would turn
// live blobs into orphans.
func (r *Reconciler) referencedPaths(ctx context.Context) (map[string]struct{}, int, error) {
	referenced := make(map[string]struct{})
	normalized := make(map[string]struct{})
	for _, src := range r.sources {
		paths, err := src.StoredPaths(ctx)
		if err != nil {
			return nil, 0, &simpleattachment.SourceError{Source: src.Name(), Err: err}
		}
		for _, p := range paths {
			if p != "" {
				referenced[p] = struct{}{}
			}
			if n := NormalizePath(p); n != "" {
				referenced[n] = struct{}{}
				normalized[n] = struct{}{}
			}
		}
	}
	return referenced, len(normalized), nil
}

// NormalizePath maps a stored path to the key form ListAllKeys returns.
// Empty and root-only values normalize to "".
func NormalizePath(p string) string {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	for {
		switch {
		case strings.HasPrefix(p, "/"):
			p = p[1:]
		case strings.HasPrefix(p, "./"):
			p = p[2:]
		default:
			if p == "" || p == "." {
				return ""
			}
			return path.Clean(p)
		}
	}
}

// Difference returns the sorted members of present that are not referenced.
// A key counts as referenced when either its exact form or its normalized
// form is in referenced. Returned keys are the exact listed keys.
func Difference(present []string, referenced map[string]struct{}) []string {
	orphans := make([]string, 0)
	seen := make(map[string]struct{}, len(present))
	for _, p := range present {
		if _, ok := referenced[p]; ok {
			continue
		}
		if _, ok := referenced[NormalizePath(p)]; ok {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		orphans = append(orphans, p)
	}
	sort.Strings(orphans)
	return orphans
}

func (o Outcome) String() string {
	if o.Error != "" {
		return fmt.Sprintf("%s %s: %s", o.Status, o.Path, o.Error)
	}
	return fmt.Sprintf("%s %s", o.Status, o.Path)
}
