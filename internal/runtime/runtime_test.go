package runtime

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	archivememory "github.com/JakeFAU/harvester/internal/archive/memory"
	clocksystem "github.com/JakeFAU/harvester/internal/clock/system"
	"github.com/JakeFAU/harvester/internal/convert"
	"github.com/JakeFAU/harvester/internal/document"
	"github.com/JakeFAU/harvester/internal/extract"
	"github.com/JakeFAU/harvester/internal/harvest"
	"github.com/JakeFAU/harvester/internal/hash/sha256"
	iduuid "github.com/JakeFAU/harvester/internal/id/uuid"
	"github.com/JakeFAU/harvester/internal/pipeline"
	publishermemory "github.com/JakeFAU/harvester/internal/publisher/memory"
	"github.com/JakeFAU/harvester/internal/session"
	"github.com/JakeFAU/harvester/internal/snapshot"
	"github.com/JakeFAU/harvester/internal/token"
)

// stubFetcher serves canned HTML keyed by URL. An optional gate blocks every
// fetch until the gate channel closes.
type stubFetcher struct {
	mu      sync.Mutex
	pages   map[string]string
	gate    chan struct{}
	started chan struct{}
	fetches int
}

func (f *stubFetcher) Fetch(ctx context.Context, req harvest.FetchRequest) (harvest.FetchResult, error) {
	f.mu.Lock()
	f.fetches++
	body, ok := f.pages[req.URL]
	started := f.started
	gate := f.gate
	f.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return harvest.FetchResult{}, ctx.Err()
		}
	}
	if !ok {
		return harvest.FetchResult{}, fmt.Errorf("no page for %s", req.URL)
	}
	return harvest.FetchResult{
		URL:         req.URL,
		FinalURL:    req.URL,
		StatusCode:  200,
		ContentType: "text/html",
		Body:        []byte(body),
	}, nil
}

func page(title, text string) string {
	return fmt.Sprintf("<html><head><title>%s</title></head><body><main><p>%s</p></main></body></html>", title, text)
}

func newTestRuntime(t *testing.T, fetcher harvest.Fetcher, store snapshot.Store) (*Runtime, *archivememory.Store, *publishermemory.Publisher) {
	t.Helper()

	writer, err := document.NewAtomicWriter(t.TempDir())
	require.NoError(t, err)

	arch := archivememory.New()
	pub := publishermemory.New()

	rt := New(Config{
		QueueCapacity: 8,
		Pipeline:      pipeline.Config{Workers: 2},
		TickEvery:     10 * time.Millisecond,
		PublishTopic:  "harvest-events",
		Session:       session.Config{},
	}, Deps{
		Fetcher:    fetcher,
		Extractor:  extract.New(),
		Converter:  convert.New(0, harvest.DefaultNormalizer{}),
		Tokens:     token.NewWhitespace(),
		Writer:     writer,
		Hasher:     sha256.New(),
		Clock:      clocksystem.New(),
		Normalizer: harvest.DefaultNormalizer{},
		Archive:    arch,
		Publisher:  pub,
		Snapshots:  store,
		IDs:        iduuid.New(),
		Logger:     zap.NewNop(),
	})
	t.Cleanup(func() {
		ctx, cancelFn := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelFn()
		_ = rt.Close(ctx)
	})
	return rt, arch, pub
}

func TestSubmitBeforeStart(t *testing.T) {
	t.Parallel()

	rt, _, _ := newTestRuntime(t, &stubFetcher{}, snapshot.NewMemoryStore())
	err := rt.SubmitURLs(context.Background(), "http://a.test/")
	require.ErrorIs(t, err, ErrNotStarted)
}

func TestEndToEndHarvest(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{pages: map[string]string{
		"http://a.test/": page("Alpha", "first page words"),
		"http://b.test/": page("Beta", "second page words"),
	}}
	store := snapshot.NewMemoryStore()
	rt, arch, pub := newTestRuntime(t, fetcher, store)

	ctx := context.Background()
	require.NoError(t, rt.Start(ctx))
	require.NoError(t, rt.SubmitURLs(ctx, "http://a.test/\nhttp://b.test/"))

	require.Eventually(t, func() bool {
		return rt.View().Counters.Succeeded == 2
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, rt.Stop(ctx))
	select {
	case <-rt.Finished():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish")
	}

	view := rt.View()
	require.Equal(t, session.StateFinished, view.State)
	require.Equal(t, 2, view.Counters.Accepted)

	content, ok := rt.ExportContent()
	require.True(t, ok)
	require.Equal(t, 2, strings.Count(content, "===== DOC START ====="))
	require.Contains(t, content, "url: http://a.test/")

	archived, ok := arch.Object("export.txt")
	require.True(t, ok)
	require.Equal(t, content, string(archived))
	_, ok = arch.Object("manifest.json")
	require.True(t, ok)

	saved, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, saved, 2)

	var events []string
	for _, msg := range pub.Messages() {
		require.Equal(t, "harvest-events", msg.Topic)
		body, isMap := msg.Payload.(map[string]any)
		require.True(t, isMap)
		events = append(events, body["event"].(string))
	}
	require.Contains(t, events, "session_started")
	require.Contains(t, events, "session_finished")
}

func TestRestoreSkipsDuplicateSubmission(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{pages: map[string]string{
		"http://new.test/": page("New", "fresh content here"),
	}}
	store := snapshot.NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), []harvest.CompletedJobSnapshot{{
		URL:      "http://old.test/",
		FinalURL: "http://old.test/",
		Title:    "Old",
		Tokens:   3,
		Bytes:    42,
		Filename: "old--deadbeef.md",
	}}))

	rt, _, _ := newTestRuntime(t, fetcher, store)
	ctx := context.Background()
	require.NoError(t, rt.Start(ctx))

	require.Eventually(t, func() bool {
		return rt.View().Counters.Restored == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, rt.SubmitURLs(ctx, "http://old.test/\nhttp://new.test/"))

	require.Eventually(t, func() bool {
		return rt.View().Counters.Succeeded == 1
	}, 5*time.Second, 10*time.Millisecond)

	view := rt.View()
	require.Equal(t, 1, view.Counters.DuplicatesSkipped)
	require.Equal(t, 1, view.Counters.Accepted)

	require.NoError(t, rt.Stop(ctx))
	select {
	case <-rt.Finished():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish")
	}

	// Restored documents already exist on disk, so only the fresh fetch is
	// re-exported.
	content, ok := rt.ExportContent()
	require.True(t, ok)
	require.Equal(t, 1, strings.Count(content, "===== DOC START ====="))
	require.Contains(t, content, "url: http://new.test/")
}

func TestStopCancelsQueuedJobs(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	fetcher := &stubFetcher{
		pages: map[string]string{
			"http://a.test/": page("A", "a"),
			"http://b.test/": page("B", "b"),
			"http://c.test/": page("C", "c"),
		},
		gate:    gate,
		started: make(chan struct{}, 3),
	}
	rt, _, _ := newTestRuntime(t, fetcher, snapshot.NewMemoryStore())

	ctx := context.Background()
	require.NoError(t, rt.Start(ctx))
	require.NoError(t, rt.SubmitURLs(ctx, "http://a.test/\nhttp://b.test/\nhttp://c.test/"))

	select {
	case <-fetcher.started:
	case <-time.After(5 * time.Second):
		t.Fatal("fetch never started")
	}

	require.NoError(t, rt.Stop(ctx))
	require.Eventually(t, func() bool {
		return rt.View().State == session.StateFinishing || rt.View().State == session.StateFinished
	}, 5*time.Second, 10*time.Millisecond)
	close(gate)

	select {
	case <-rt.Finished():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish")
	}

	view := rt.View()
	require.Equal(t, session.StateFinished, view.State)
	require.Equal(t, 3, view.Counters.Cancelled)
	require.Zero(t, view.Counters.Succeeded)
}

func TestFinishingBlocksNewSubmissions(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	fetcher := &stubFetcher{
		pages:   map[string]string{"http://a.test/": page("A", "a")},
		gate:    gate,
		started: make(chan struct{}, 1),
	}
	rt, _, _ := newTestRuntime(t, fetcher, snapshot.NewMemoryStore())

	ctx := context.Background()
	require.NoError(t, rt.Start(ctx))
	require.NoError(t, rt.SubmitURLs(ctx, "http://a.test/"))

	select {
	case <-fetcher.started:
	case <-time.After(5 * time.Second):
		t.Fatal("fetch never started")
	}

	require.NoError(t, rt.Stop(ctx))
	require.Eventually(t, func() bool {
		return rt.View().State == session.StateFinishing
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, rt.SubmitURLs(ctx, "http://late.test/"))
	require.Eventually(t, func() bool {
		return rt.View().Counters.Submitted == 1
	}, time.Second, 10*time.Millisecond)

	close(gate)
	select {
	case <-rt.Finished():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish")
	}
	require.Len(t, rt.View().Jobs, 1)
}
