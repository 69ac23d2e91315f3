package download_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volo-project/volo/internal/artifact"
	"github.com/volo-project/volo/internal/cache"
	"github.com/volo-project/volo/internal/download"
	"github.com/volo-project/volo/internal/engine"
	"github.com/volo-project/volo/internal/media"
	"github.com/volo-project/volo/internal/progress"
)

const testURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

// fakeEngine scripts a transfer: it emits the configured progress
// reports, optionally writes the artifact to disk, then returns the
// configured result or error.
type fakeEngine struct {
	mu       sync.Mutex
	reports  []engine.Progress
	result   *engine.FileResult
	err      error
	writes   bool
	retrieve int
}

func (fake *fakeEngine) Retrieve(_ context.Context, _ string, _ string, outputDir string, onProgress engine.ProgressFunc) (*engine.FileResult, error) {
	fake.mu.Lock()
	fake.retrieve++
	fake.mu.Unlock()

	for _, report := range fake.reports {
		onProgress(report)
	}

	if fake.err != nil {
		return nil, fake.err
	}

	if fake.writes {
		if err := os.WriteFile(filepath.Join(outputDir, fake.result.Filename), []byte("bytes"), 0o644); err != nil {
			return nil, err
		}
	}

	return fake.result, nil
}

func (fake *fakeEngine) retrieveCalls() int {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	return fake.retrieve
}

// memoryCache is an in-process ArtifactCache for tests.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string]cache.ArtifactEntry
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]cache.ArtifactEntry)}
}

func (m *memoryCache) key(videoID, formatID string) string { return videoID + ":" + formatID }

func (m *memoryCache) GetArtifact(_ context.Context, videoID, formatID string) (*cache.ArtifactEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[m.key(videoID, formatID)]
	if !ok {
		return nil, false
	}
	return &entry, true
}

func (m *memoryCache) PutArtifact(_ context.Context, videoID, formatID string, entry cache.ArtifactEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[m.key(videoID, formatID)] = entry
}

func (m *memoryCache) DeleteArtifact(_ context.Context, videoID, formatID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, m.key(videoID, formatID))
}

type harness struct {
	service   *download.Service
	registry  *progress.Registry
	artifacts *artifact.Store
	cache     *memoryCache
	cancel    context.CancelFunc
}

func newHarness(t *testing.T, fake *fakeEngine) *harness {
	t.Helper()

	store, err := artifact.NewStore(t.TempDir())
	require.NoError(t, err)

	registry := progress.NewRegistry()
	memCache := newMemoryCache()
	service := download.New(
		download.Config{OutputDir: store.Dir(), Workers: 2, QueueSize: 4, PublicFilesPath: "/api/volo/v1/files"},
		fake, registry, store, memCache,
	)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = service.Run(ctx) }()
	t.Cleanup(cancel)

	return &harness{service: service, registry: registry, artifacts: store, cache: memCache, cancel: cancel}
}

func collect(t *testing.T, sink *progress.ChannelSink, want int) []progress.Event {
	t.Helper()

	events := make([]progress.Event, 0, want)
	timeout := time.After(time.Second * 2)
	for len(events) < want {
		select {
		case ev := <-sink.Events():
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("timed out collecting events, got %d of %d: %#v", len(events), want, events)
		}
	}

	return events
}

func successfulEngine() *fakeEngine {
	return &fakeEngine{
		reports: []engine.Progress{
			{Percent: 0},
			{Percent: 33.3, SpeedBytesPerSec: 1024, EtaSeconds: 8},
			{Percent: 66.6, SpeedBytesPerSec: 2048, EtaSeconds: 4},
			{Percent: 100},
		},
		result: &engine.FileResult{Filename: "dQw4w9WgXcQ_22.mp4", Title: "video", VideoID: "dQw4w9WgXcQ", FormatID: "22"},
		writes: true,
	}
}

func TestDownload_SuccessStreamsOrderedProgressAndFinishes(t *testing.T) {
	h := newHarness(t, successfulEngine())

	sink := progress.NewChannelSink()
	h.registry.Attach("abc123", sink)

	result, err := h.service.Download(context.Background(), testURL, "22", "abc123")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "video.mp4", result.Filename)
	assert.Equal(t, "/api/volo/v1/files/dQw4w9WgXcQ_22.mp4?name=video.mp4", result.DownloadURL)

	// starting + 4 downloading + finished
	events := collect(t, sink, 6)
	assert.Equal(t, progress.StatusStarting, events[0].Status)

	lastPercent := float64(-1)
	terminals := 0
	for _, ev := range events {
		assert.GreaterOrEqual(t, ev.Percent, lastPercent, "percent must be non-decreasing")
		lastPercent = ev.Percent
		if ev.Terminal() {
			terminals++
		}
	}
	assert.Equal(t, 1, terminals, "exactly one terminal event")
	assert.Equal(t, progress.StatusFinished, events[len(events)-1].Status)
	assert.Equal(t, float64(100), events[len(events)-1].Percent)
}

func TestDownload_CompletesWithoutAnyListener(t *testing.T) {
	h := newHarness(t, successfulEngine())

	result, err := h.service.Download(context.Background(), testURL, "22", "nobody-listening")
	require.NoError(t, err)
	assert.Equal(t, "video.mp4", result.Filename)
}

func TestDownload_EngineFailure_SameReasonOnBothPaths(t *testing.T) {
	failure := fmt.Errorf("%w: HTTP Error 403: Forbidden", media.ErrUpstream)
	h := newHarness(t, &fakeEngine{
		reports: []engine.Progress{{Percent: 10, SpeedBytesPerSec: 512}},
		err:     failure,
	})

	sink := progress.NewChannelSink()
	h.registry.Attach("tok", sink)

	result, err := h.service.Download(context.Background(), testURL, "22", "tok")
	assert.Nil(t, result)
	require.Error(t, err)
	assert.ErrorIs(t, err, media.ErrUpstream)

	// starting + downloading + error
	events := collect(t, sink, 3)
	terminal := events[len(events)-1]
	assert.Equal(t, progress.StatusError, terminal.Status)
	assert.Equal(t, err.Error(), terminal.Detail, "HTTP caller and channel listener must agree on the reason")
}

func TestDownload_InvalidFormat_PropagatesBeforeTransfer(t *testing.T) {
	h := newHarness(t, &fakeEngine{err: fmt.Errorf("%w: format '9999' is not available for this url", media.ErrInvalidFormat)})

	_, err := h.service.Download(context.Background(), testURL, "9999", "tok")
	assert.ErrorIs(t, err, media.ErrInvalidFormat)
}

func TestDownload_MalformedURL_NeverCreatesJob(t *testing.T) {
	fake := successfulEngine()
	h := newHarness(t, fake)

	sink := progress.NewChannelSink()
	h.registry.Attach("tok", sink)

	_, err := h.service.Download(context.Background(), "not-a-url", "best", "tok")
	assert.ErrorIs(t, err, media.ErrInvalidURL)
	assert.Zero(t, fake.retrieveCalls())

	select {
	case ev := <-sink.Events():
		t.Fatalf("no events should be published for a rejected request, got %#v", ev)
	case <-time.After(time.Millisecond * 50):
	}
}

func TestDownload_RegressingEngineReportsAreSuppressed(t *testing.T) {
	fake := successfulEngine()
	fake.reports = []engine.Progress{{Percent: 50}, {Percent: 20}, {Percent: 80}}
	h := newHarness(t, fake)

	sink := progress.NewChannelSink()
	h.registry.Attach("tok", sink)

	_, err := h.service.Download(context.Background(), testURL, "22", "tok")
	require.NoError(t, err)

	// starting + 2 downloading (the 20% report is dropped) + finished
	events := collect(t, sink, 4)
	lastPercent := float64(-1)
	for _, ev := range events {
		assert.GreaterOrEqual(t, ev.Percent, lastPercent)
		lastPercent = ev.Percent
	}
}

func TestDownload_CacheHitSkipsEngine(t *testing.T) {
	fake := successfulEngine()
	h := newHarness(t, fake)

	// First download populates disk and cache.
	first, err := h.service.Download(context.Background(), testURL, "22", "t1")
	require.NoError(t, err)

	sink := progress.NewChannelSink()
	h.registry.Attach("t2", sink)

	second, err := h.service.Download(context.Background(), testURL, "22", "t2")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, fake.retrieveCalls(), "second request must be served from cache")

	// starting + finished, nothing in between
	events := collect(t, sink, 2)
	assert.Equal(t, progress.StatusStarting, events[0].Status)
	assert.Equal(t, progress.StatusFinished, events[1].Status)
	assert.Equal(t, float64(100), events[1].Percent)
}

func TestDownload_BestAliasIsCachedUnderBothKeys(t *testing.T) {
	fake := successfulEngine()
	h := newHarness(t, fake)

	_, err := h.service.Download(context.Background(), testURL, "best", "tok")
	require.NoError(t, err)

	_, ok := h.cache.GetArtifact(context.Background(), "dQw4w9WgXcQ", "22")
	assert.True(t, ok, "resolved format key must be cached")
	_, ok = h.cache.GetArtifact(context.Background(), "dQw4w9WgXcQ", "best")
	assert.True(t, ok, "'best' alias must be cached")

	_, err = h.service.Download(context.Background(), testURL, "best", "tok")
	require.NoError(t, err)
	assert.Equal(t, 1, fake.retrieveCalls())
}

func TestDownload_StaleCacheEntryIsEvicted(t *testing.T) {
	fake := successfulEngine()
	h := newHarness(t, fake)

	h.cache.PutArtifact(context.Background(), "dQw4w9WgXcQ", "22", cache.ArtifactEntry{
		Filename: "long-gone.mp4",
		Title:    "video",
	})

	result, err := h.service.Download(context.Background(), testURL, "22", "tok")
	require.NoError(t, err)
	assert.Equal(t, "video.mp4", result.Filename)
	assert.Equal(t, 1, fake.retrieveCalls(), "stale entry must fall through to the engine")

	entry, ok := h.cache.GetArtifact(context.Background(), "dQw4w9WgXcQ", "22")
	require.True(t, ok)
	assert.Equal(t, "dQw4w9WgXcQ_22.mp4", entry.Filename, "stale entry must be replaced by the fresh artifact")
}

func TestDownload_ConcurrentJobsMakeIndependentProgress(t *testing.T) {
	h := newHarness(t, successfulEngine())

	var wg sync.WaitGroup
	results := make([]*download.Result, 4)
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.service.Download(context.Background(), testURL, "22", fmt.Sprintf("tok-%d", i))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "video.mp4", results[i].Filename)
	}
}
