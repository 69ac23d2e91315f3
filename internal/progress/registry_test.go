package progress_test

import (
	"sync"
	"testing"

	"github.com/labstack/gommon/random"
	"github.com/stretchr/testify/assert"
	"github.com/volo-project/volo/internal/progress"
)

func drain(sink *progress.ChannelSink) []progress.Event {
	events := make([]progress.Event, 0)
	for {
		select {
		case ev := <-sink.Events():
			events = append(events, ev)
		default:
			return events
		}
	}
}

func TestPublish_NoSinkAttached_IsSilentNoop(t *testing.T) {
	registry := progress.NewRegistry()

	assert.NotPanics(t, func() {
		registry.Publish("never-attached", progress.Event{Status: progress.StatusDownloading, Percent: 50})
	})
	assert.False(t, registry.Attached("never-attached"))
}

func TestPublish_DeliversToAttachedSink(t *testing.T) {
	registry := progress.NewRegistry()
	token := random.String(12)

	sink := progress.NewChannelSink()
	registry.Attach(token, sink)

	registry.Publish(token, progress.Event{Status: progress.StatusStarting, Percent: 0})
	registry.Publish(token, progress.Event{Status: progress.StatusDownloading, Percent: 40})

	events := drain(sink)
	assert.Len(t, events, 2)
	assert.Equal(t, progress.StatusStarting, events[0].Status)
	assert.Equal(t, progress.StatusDownloading, events[1].Status)
	assert.Equal(t, float64(40), events[1].Percent)
}

func TestAttach_ReplacesExistingSink(t *testing.T) {
	registry := progress.NewRegistry()
	token := random.String(12)

	first := progress.NewChannelSink()
	second := progress.NewChannelSink()

	registry.Attach(token, first)
	registry.Publish(token, progress.Event{Status: progress.StatusStarting})

	registry.Attach(token, second)
	registry.Publish(token, progress.Event{Status: progress.StatusDownloading, Percent: 10})
	registry.Publish(token, progress.Event{Status: progress.StatusFinished, Percent: 100})

	firstEvents := drain(first)
	assert.Len(t, firstEvents, 1, "replaced sink must receive no further events")
	assert.Equal(t, progress.StatusStarting, firstEvents[0].Status)

	secondEvents := drain(second)
	assert.Len(t, secondEvents, 2)
	assert.Equal(t, progress.StatusFinished, secondEvents[1].Status)
}

func TestDetach_OnlyRemovesOwnSink(t *testing.T) {
	registry := progress.NewRegistry()
	token := random.String(12)

	first := progress.NewChannelSink()
	second := progress.NewChannelSink()

	registry.Attach(token, first)
	registry.Attach(token, second)

	// The stale connection detaching must not tear down its replacement.
	assert.False(t, registry.Detach(token, first))
	assert.True(t, registry.Attached(token))

	assert.True(t, registry.Detach(token, second))
	assert.False(t, registry.Attached(token))
}

func TestPublish_AfterDetach_IsDropped(t *testing.T) {
	registry := progress.NewRegistry()
	token := random.String(12)

	sink := progress.NewChannelSink()
	registry.Attach(token, sink)
	assert.True(t, registry.Detach(token, sink))

	registry.Publish(token, progress.Event{Status: progress.StatusFinished, Percent: 100})
	assert.Empty(t, drain(sink))
}

func TestPublish_FullSinkDoesNotBlock(t *testing.T) {
	registry := progress.NewRegistry()
	token := random.String(12)

	sink := progress.NewChannelSink()
	registry.Attach(token, sink)

	// Overflow the sink buffer; publish must stay non-blocking throughout.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			registry.Publish(token, progress.Event{Status: progress.StatusDownloading, Percent: float64(i) / 2})
		}
	}()

	<-done
	events := drain(sink)
	assert.NotEmpty(t, events)
	assert.Less(t, len(events), 200)
}

func TestRegistry_TokensAreIndependent(t *testing.T) {
	registry := progress.NewRegistry()

	var wg sync.WaitGroup
	sinks := make([]*progress.ChannelSink, 8)
	for i := range sinks {
		sinks[i] = progress.NewChannelSink()
	}

	for i, sink := range sinks {
		wg.Add(1)
		go func(token string, sink *progress.ChannelSink) {
			defer wg.Done()
			registry.Attach(token, sink)
			registry.Publish(token, progress.Event{Status: progress.StatusStarting})
			registry.Publish(token, progress.Event{Status: progress.StatusFinished, Percent: 100})
		}(random.String(8)+string(rune('a'+i)), sink)
	}

	wg.Wait()
	for _, sink := range sinks {
		events := drain(sink)
		assert.Len(t, events, 2)
		assert.Equal(t, progress.StatusStarting, events[0].Status)
		assert.Equal(t, progress.StatusFinished, events[1].Status)
	}
}

func TestEvent_Terminal(t *testing.T) {
	assert.False(t, progress.Event{Status: progress.StatusStarting}.Terminal())
	assert.False(t, progress.Event{Status: progress.StatusDownloading}.Terminal())
	assert.True(t, progress.Event{Status: progress.StatusFinished}.Terminal())
	assert.True(t, progress.Event{Status: progress.StatusError}.Terminal())
}
