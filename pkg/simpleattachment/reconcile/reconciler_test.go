package reconcile_test

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-attachment/pkg/simpleattachment"
	"github.com/tendant/simple-attachment/pkg/simpleattachment/reconcile"
	"github.com/tendant/simple-attachment/pkg/simpleattachment/storage/memory"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func seed(t *testing.T, keys ...string) *memory.Backend {
	t.Helper()
	store := memory.New()
	for _, k := range keys {
		store.Put(k, []byte("data:"+k), epoch)
	}
	return store
}

func snapshot(t *testing.T, store *memory.Backend) map[string]int64 {
	t.Helper()
	ctx := context.Background()
	keys, err := store.ListAllKeys(ctx)
	require.NoError(t, err)
	out := make(map[string]int64, len(keys))
	for _, k := range keys {
		size, err := store.SizeOf(ctx, k)
		require.NoError(t, err)
		out[k] = size
	}
	return out
}

func referenced(paths ...string) []simpleattachment.PathSource {
	return []simpleattachment.PathSource{reconcile.StaticSource{SourceName: "attachments", Paths: paths}}
}

// failingDeletes refuses to delete the listed keys.
type failingDeletes struct {
	*memory.Backend
	deny map[string]error
}

func (f *failingDeletes) Delete(ctx context.Context, key string) error {
	if err, ok := f.deny[key]; ok {
		return err
	}
	return f.Backend.Delete(ctx, key)
}

// brokenListing cannot enumerate and records whether Delete was reached.
type brokenListing struct {
	*memory.Backend
	deletes int
}

func (b *brokenListing) ListAllKeys(ctx context.Context) ([]string, error) {
	return nil, fmt.Errorf("open %s: %w", "/data", fs.ErrPermission)
}

func (b *brokenListing) Delete(ctx context.Context, key string) error {
	b.deletes++
	return b.Backend.Delete(ctx, key)
}

func TestReconciler_DeletesSingleOrphan(t *testing.T) {
	store := seed(t, "a/x.png", "a/y.pdf", "a/z.tmp")
	r, err := reconcile.New(store, referenced("a/x.png", "a/y.pdf"))
	require.NoError(t, err)

	report, err := r.Run(context.Background(), reconcile.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"a/z.tmp"}, report.Orphans())
	assert.Equal(t, 1, report.OrphanCount)
	assert.Equal(t, 1, report.DeletedCount)
	assert.Equal(t, 0, report.FailedCount)
	assert.Equal(t, 2, report.ReferencedCount)
	assert.Equal(t, 3, report.PresentCount)
	assert.Equal(t, int64(len("data:a/z.tmp")), report.ReclaimedBytes)

	remaining := snapshot(t, store)
	assert.Len(t, remaining, 2)
	assert.NotContains(t, remaining, "a/z.tmp")
}

func TestReconciler_NoOrphansWhenAllReferenced(t *testing.T) {
	store := seed(t, "a/x.png", "a/y.pdf")
	// Referenced paths may outnumber present blobs.
	r, err := reconcile.New(store, referenced("a/x.png", "a/y.pdf", "a/missing.doc"))
	require.NoError(t, err)

	report, err := r.Run(context.Background(), reconcile.RunOptions{})
	require.NoError(t, err)
	assert.Empty(t, report.Outcomes)
	assert.Equal(t, 0, report.DeletedCount)
	assert.Len(t, snapshot(t, store), 2)
}

func TestReconciler_Idempotent(t *testing.T) {
	store := seed(t, "a/x.png", "b/1.tmp", "b/2.tmp", "c/3.bin")
	r, err := reconcile.New(store, referenced("a/x.png"))
	require.NoError(t, err)
	ctx := context.Background()

	first, err := r.Run(ctx, reconcile.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, first.DeletedCount)

	second, err := r.Run(ctx, reconcile.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.OrphanCount)
	assert.Equal(t, 0, second.DeletedCount)
	assert.Equal(t, map[string]int64{"a/x.png": int64(len("data:a/x.png"))}, snapshot(t, store))
}

func TestReconciler_DryRunLeavesStorageUntouched(t *testing.T) {
	store := seed(t, "a/x.png", "a/y.pdf", "a/z.tmp", "old/q.txt")
	r, err := reconcile.New(store, referenced("a/x.png", "a/y.pdf"))
	require.NoError(t, err)
	ctx := context.Background()

	before := snapshot(t, store)
	dry, err := r.Run(ctx, reconcile.RunOptions{DryRun: true, Verbose: true})
	require.NoError(t, err)
	assert.Equal(t, before, snapshot(t, store))

	assert.True(t, dry.DryRun)
	assert.Equal(t, 0, dry.DeletedCount)
	for _, o := range dry.Outcomes {
		assert.Equal(t, reconcile.StatusWouldDelete, o.Status)
	}
	assert.Equal(t, int64(len("data:a/z.tmp")+len("data:old/q.txt")), dry.ReclaimedBytes)

	applied, err := r.Run(ctx, reconcile.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, dry.Orphans(), applied.Orphans())
	assert.Equal(t, dry.ReclaimedBytes, applied.ReclaimedBytes)
}

func TestReconciler_PerPathFailureDoesNotAbort(t *testing.T) {
	store := &failingDeletes{
		Backend: seed(t, "a/x.png", "b/1.tmp", "b/2.tmp", "b/3.tmp"),
		deny:    map[string]error{"b/2.tmp": fmt.Errorf("remove b/2.tmp: %w", fs.ErrPermission)},
	}
	r, err := reconcile.New(store, referenced("a/x.png"))
	require.NoError(t, err)

	report, err := r.Run(context.Background(), reconcile.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, report.OrphanCount)
	assert.Equal(t, 2, report.DeletedCount)
	assert.Equal(t, 1, report.FailedCount)

	failures := report.Failures()
	require.Len(t, failures, 1)
	var perPath *simpleattachment.PerPathDeleteError
	require.ErrorAs(t, failures[0], &perPath)
	assert.Equal(t, "b/2.tmp", perPath.Path)
	assert.ErrorIs(t, failures[0], fs.ErrPermission)

	assert.Equal(t, []string{"a/x.png", "b/2.tmp"}, keys(snapshot(t, store.Backend)))
}

func TestReconciler_EnumerationFailureIsFatal(t *testing.T) {
	store := &brokenListing{Backend: seed(t, "a/z.tmp")}
	r, err := reconcile.New(store, referenced())
	require.NoError(t, err)

	report, err := r.Run(context.Background(), reconcile.RunOptions{})
	require.Error(t, err)
	assert.Nil(t, report)

	var enumErr *simpleattachment.StorageEnumerationError
	assert.ErrorAs(t, err, &enumErr)
	assert.ErrorIs(t, err, fs.ErrPermission)
	assert.Equal(t, 0, store.deletes)
}

func TestReconciler_SourceFailureIsFatal(t *testing.T) {
	store := seed(t, "a/x.png", "a/z.tmp")
	boom := errors.New("connection refused")
	sources := []simpleattachment.PathSource{
		reconcile.StaticSource{SourceName: "attachments", Paths: []string{"a/x.png"}},
		reconcile.FuncSource{SourceName: "portfolio", Fn: func(ctx context.Context) ([]string, error) {
			return nil, boom
		}},
	}
	r, err := reconcile.New(store, sources)
	require.NoError(t, err)

	_, err = r.Run(context.Background(), reconcile.RunOptions{})
	var srcErr *simpleattachment.SourceError
	require.ErrorAs(t, err, &srcErr)
	assert.Equal(t, "portfolio", srcErr.Source)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, snapshot(t, store), 2)
}

func TestReconciler_UnionOfSources(t *testing.T) {
	store := seed(t, "attachments/a.png", "portfolio/p.jpg", "certificates/c.pdf", "tmp/orphan.bin")
	sources := []simpleattachment.PathSource{
		reconcile.StaticSource{SourceName: "attachments", Paths: []string{"attachments/a.png"}},
		reconcile.StaticSource{SourceName: "portfolio", Paths: []string{"/portfolio/p.jpg"}},
		reconcile.StaticSource{SourceName: "certificates", Paths: []string{" ./certificates/c.pdf ", ""}},
	}
	r, err := reconcile.New(store, sources)
	require.NoError(t, err)
	assert.Equal(t, []string{"attachments", "portfolio", "certificates"}, r.Sources())

	report, err := r.Run(context.Background(), reconcile.RunOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"tmp/orphan.bin"}, report.Orphans())
	assert.Equal(t, 3, report.ReferencedCount)
}

func TestReconciler_RejectsConcurrentRun(t *testing.T) {
	store := seed(t, "a/z.tmp")
	entered := make(chan struct{})
	release := make(chan struct{})
	src := reconcile.FuncSource{SourceName: "slow", Fn: func(ctx context.Context) ([]string, error) {
		close(entered)
		<-release
		return nil, nil
	}}
	r, err := reconcile.New(store, []simpleattachment.PathSource{src})
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := r.Run(context.Background(), reconcile.RunOptions{DryRun: true})
		assert.NoError(t, err)
	}()

	<-entered
	_, err = r.Run(context.Background(), reconcile.RunOptions{DryRun: true})
	assert.ErrorIs(t, err, simpleattachment.ErrReconcileInProgress)

	close(release)
	wg.Wait()
}

func TestReconciler_MinAgeSkipsRecentOrphans(t *testing.T) {
	now := epoch.Add(24 * time.Hour)
	store := memory.New()
	store.Put("old.tmp", []byte("old"), now.Add(-2*time.Hour))
	store.Put("new.tmp", []byte("new"), now.Add(-5*time.Minute))

	r, err := reconcile.New(store, referenced(), reconcile.WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	report, err := r.Run(context.Background(), reconcile.RunOptions{MinAge: time.Hour})
	require.NoError(t, err)
	assert.Equal(t, 1, report.DeletedCount)
	assert.Equal(t, 1, report.SkippedCount)
	assert.Equal(t, []string{"new.tmp"}, keys(snapshot(t, store)))
}

// metaless cannot report object metadata.
type metaless struct {
	*memory.Backend
}

func (m *metaless) GetObjectMeta(ctx context.Context, key string) (*simpleattachment.ObjectMeta, error) {
	return nil, errors.New("head object: timeout")
}

func TestReconciler_MinAgeSkipsUnknownAge(t *testing.T) {
	store := &metaless{Backend: seed(t, "a.tmp")}
	r, err := reconcile.New(store, referenced())
	require.NoError(t, err)

	report, err := r.Run(context.Background(), reconcile.RunOptions{MinAge: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, 0, report.DeletedCount)
	assert.Equal(t, 1, report.SkippedCount)
	assert.Contains(t, report.Outcomes[0].Error, "modification time unknown")
	assert.Equal(t, []string{"a.tmp"}, keys(snapshot(t, store.Backend)))

	// without an age threshold the missing metadata does not block deletion
	report, err = r.Run(context.Background(), reconcile.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.DeletedCount)
}

func TestReconciler_NonCanonicalKeysStayReferenced(t *testing.T) {
	store := seed(t, "docs//a.pdf", "b.png ", "x\\y.txt", "stray.tmp")
	r, err := reconcile.New(store, referenced("docs//a.pdf", "b.png ", "x\\y.txt"))
	require.NoError(t, err)

	report, err := r.Run(context.Background(), reconcile.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"stray.tmp"}, report.Orphans())
	assert.Equal(t, 3, report.ReferencedCount)
	assert.Equal(t, []string{"b.png ", "docs//a.pdf", "x\\y.txt"}, keys(snapshot(t, store)))
}

func TestReconciler_ListedKeyMatchesNormalizedReference(t *testing.T) {
	store := seed(t, "docs//a.pdf", "/b.png", "c.tmp")
	r, err := reconcile.New(store, referenced("docs/a.pdf", "b.png"))
	require.NoError(t, err)

	report, err := r.Run(context.Background(), reconcile.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"c.tmp"}, report.Orphans())
	assert.Equal(t, []string{"/b.png", "docs//a.pdf"}, keys(snapshot(t, store)))
}

func TestReconciler_DryRunOnlyRefusesDeletes(t *testing.T) {
	store := seed(t, "a/x.png", "a/z.tmp")
	r, err := reconcile.New(store, referenced("a/x.png"), reconcile.WithDryRunOnly("records are in memory"))
	require.NoError(t, err)

	_, err = r.Run(context.Background(), reconcile.RunOptions{})
	assert.ErrorIs(t, err, simpleattachment.ErrReconcileUnsafe)
	assert.Contains(t, err.Error(), "records are in memory")
	assert.Len(t, snapshot(t, store), 2)

	report, err := r.Run(context.Background(), reconcile.RunOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"a/z.tmp"}, report.Orphans())
	assert.Len(t, snapshot(t, store), 2)
}

func TestReconciler_ParallelDeletes(t *testing.T) {
	store := memory.New()
	var live []string
	for i := 0; i < 40; i++ {
		key := fmt.Sprintf("batch/%02d.tmp", i)
		store.Put(key, []byte("x"), epoch)
		if i%4 == 0 {
			live = append(live, key)
		}
	}

	r, err := reconcile.New(store, referenced(live...), reconcile.WithConcurrency(8))
	require.NoError(t, err)

	report, err := r.Run(context.Background(), reconcile.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 30, report.DeletedCount)
	assert.Equal(t, int64(30), report.ReclaimedBytes)
	assert.IsNonDecreasing(t, report.Orphans())
	assert.Equal(t, live, keys(snapshot(t, store)))
}

func TestReconciler_CancelledContext(t *testing.T) {
	store := seed(t, "a.tmp", "b.tmp")
	r, err := reconcile.New(store, referenced())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Run(ctx, reconcile.RunOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_Validation(t *testing.T) {
	_, err := reconcile.New(nil, referenced())
	assert.Error(t, err)

	_, err = reconcile.New(memory.New(), nil)
	assert.Error(t, err)
}

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"a/x.png":        "a/x.png",
		"/a/x.png":       "a/x.png",
		"./a/x.png":      "a/x.png",
		"  a//b/./c.txt": "a/b/c.txt",
		"a\\b\\c.txt":    "a/b/c.txt",
		"":               "",
		"/":              "",
		".":              "",
	}
	for in, want := range tests {
		assert.Equal(t, want, reconcile.NormalizePath(in), in)
	}
}

func TestDifference(t *testing.T) {
	ref := map[string]struct{}{"a": {}, "c": {}}
	assert.Equal(t, []string{"b", "d"}, reconcile.Difference([]string{"d", "a", "b", "c", "b"}, ref))
	assert.Empty(t, reconcile.Difference(nil, ref))

	// exact and normalized forms both count as referenced
	ref = map[string]struct{}{"a//b": {}, "c/d": {}}
	assert.Equal(t, []string{"e"}, reconcile.Difference([]string{"a//b", "./c/d", "e"}, ref))
}

func keys(m map[string]int64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
