package progress

// Sink is a handle capable of delivering an Event to one remote
// listener. Deliver must never block; implementations report a dropped
// event by returning false.
type Sink interface {
	Deliver(Event) bool
}

// ChannelSink is the standard Sink implementation: a buffered channel
// drained by whatever owns the listener's transport (the websocket
// write pump, or a test). When the buffer is full events are dropped
// rather than ever blocking the publishing job.
type ChannelSink struct {
	events chan Event
}

const defaultSinkBuffer = 16

func NewChannelSink() *ChannelSink {
	return &ChannelSink{events: make(chan Event, defaultSinkBuffer)}
}

func (sink *ChannelSink) Deliver(event Event) bool {
	select {
	case sink.events <- event:
		return true
	default:
		return false
	}
}

// Events exposes the receive side of the sink for the transport
// pump to drain.
func (sink *ChannelSink) Events() <-chan Event {
	return sink.events
}

// Close closes the underlying channel so a draining pump can exit. It
// must only be called once the sink has been detached from the registry
// (or replaced), as delivering to a closed sink panics.
func (sink *ChannelSink) Close() {
	close(sink.events)
}
