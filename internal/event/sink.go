package event

// Sink receives emitted records. Emit is called synchronously from inside
// engine operations, after state has been committed; implementations must
// return quickly and must never call back into the engine.
type Sink interface {
	Emit(Record)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) Emit(Record) {}

// Fanout forwards each record to every child sink in order.
type Fanout []Sink

func (f Fanout) Emit(r Record) {
	for _, s := range f {
		s.Emit(r)
	}
}

// ChannelSink bridges the engine to a worker goroutine through a buffered
// channel. Sends are non-blocking: the event log is observational, so a slow
// consumer costs dropped records (counted via OnDrop), never a stalled
// engine.
type ChannelSink struct {
	ch     chan Record
	onDrop func()
}

func NewChannelSink(capacity int, onDrop func()) *ChannelSink {
	return &ChannelSink{
		ch:     make(chan Record, capacity),
		onDrop: onDrop,
	}
}

func (s *ChannelSink) Emit(r Record) {
	select {
	case s.ch <- r:
	default:
		if s.onDrop != nil {
			s.onDrop()
		}
	}
}

// Records exposes the consumer side of the channel.
func (s *ChannelSink) Records() <-chan Record {
	return s.ch
}

// Close closes the channel; Emit must not be called afterwards.
func (s *ChannelSink) Close() {
	close(s.ch)
}
