// Package inspect carries captured relay traffic to diagnostic sinks.
package inspect

// Event describes one chunk captured on the inbound leg of a relay.
type Event struct {
	ConnID  uint32 // relay connection id
	Payload []byte // the chunk exactly as read from the client socket
	Text    string // decoded length-prefixed string, when the chunk held one
	Err     error  // decode failure, when it did not
}

// Sink consumes captured events. Capture runs synchronously on the relay's
// capture path, so implementations must return promptly and must not mutate
// the payload.
type Sink interface {
	Capture(ev Event)
}

// MultiSink fans captured events out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) Capture(ev Event) {
	for _, s := range m {
		s.Capture(ev)
	}
}
