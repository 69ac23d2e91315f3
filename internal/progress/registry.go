package progress

import (
	"sync"

	"github.com/volo-project/volo/pkg/logger"
)

var log = logger.Get("Progress")

// Registry is the process-wide table correlating an opaque client
// token with the live sink for that token's listener. It is the only
// shared mutable state in the core: producers (download jobs) publish
// into it, transports (websocket connections) attach and detach, and
// neither side ever holds a reference to the other.
//
// Delivery is best-effort and unbuffered: publishing to a token with
// no attached sink is a silent no-op, and a listener attaching late
// only sees events emitted after it attached.
type Registry struct {
	mu    sync.Mutex
	sinks map[string]Sink
}

func NewRegistry() *Registry {
	return &Registry{sinks: make(map[string]Sink)}
}

// Attach registers the sink for the given token, replacing any prior
// sink registered under the same token. Replacement is deliberate
// (last-writer-wins): tokens are client generated and reconnects under
// the same token are expected, so a collision is not an error. The
// replaced sink simply receives no further events.
func (registry *Registry) Attach(token string, sink Sink) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if _, ok := registry.sinks[token]; ok {
		log.Debugf("Replacing existing sink for token '%s'\n", token)
	}

	registry.sinks[token] = sink
}

// Detach removes the registration for the token, but only if the
// provided sink is still the current one. The identity check stops a
// closing transport from tearing down the sink of a connection that
// replaced it. Returns true if a registration was removed.
func (registry *Registry) Detach(token string, sink Sink) bool {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if current, ok := registry.sinks[token]; ok && current == sink {
		delete(registry.sinks, token)
		return true
	}

	return false
}

// Publish delivers the event to the sink attached for the token, if
// any. It never blocks: absent sinks drop the event silently, and a
// sink whose buffer is full drops it too (progress is a liveness aid,
// not a log). Publishing for distinct tokens only contends on the
// table lock for the duration of the map lookup.
func (registry *Registry) Publish(token string, event Event) {
	registry.mu.Lock()
	sink, ok := registry.sinks[token]
	if ok && !sink.Deliver(event) {
		log.Verbosef("Dropped %s event for token '%s' (sink not keeping up)\n", event.Status, token)
	}
	registry.mu.Unlock()
}

// Attached reports whether a sink is currently registered for the token.
func (registry *Registry) Attached(token string) bool {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	_, ok := registry.sinks[token]
	return ok
}
