package inspect

import (
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/beats-dh/proxy/internal/util"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// subscriberBuffer is the per-subscriber outbox capacity. A subscriber that
// falls this far behind starts missing events.
const subscriberBuffer = 64

// feedEvent is the JSON document broadcast to feed subscribers.
type feedEvent struct {
	Conn string `json:"conn"`
	Size int    `json:"size"`
	Hex  string `json:"hex"`
	Text string `json:"text,omitempty"`
	Err  string `json:"error,omitempty"`
}

// Feed is a Sink that broadcasts captured events to WebSocket subscribers
// on the /feed endpoint. Slow subscribers drop events; they never stall the
// relay.
type Feed struct {
	listener net.Listener

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	conn  *websocket.Conn
	inbox chan feedEvent
	done  chan struct{}
	once  sync.Once
}

// NewFeed creates a feed with no subscribers. Call Start before use.
func NewFeed() *Feed {
	return &Feed{subs: make(map[*subscriber]struct{})}
}

// Start begins serving the feed endpoint on addr and returns the bound
// address (useful with a ":0" port).
func (f *Feed) Start(addr string) (string, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to start feed server: %w", err)
	}
	f.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/feed", f.handleWS)

	go func() {
		_ = http.Serve(listener, mux)
	}()

	return listener.Addr().String(), nil
}

func (f *Feed) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	sub := &subscriber{
		conn:  conn,
		inbox: make(chan feedEvent, subscriberBuffer),
		done:  make(chan struct{}),
	}
	f.mu.Lock()
	f.subs[sub] = struct{}{}
	f.mu.Unlock()
	util.LogInfo("feed subscriber connected from %s", conn.RemoteAddr())

	go f.writeLoop(sub)
	go f.readLoop(sub)
}

// writeLoop serializes all writes to one subscriber.
func (f *Feed) writeLoop(sub *subscriber) {
	for {
		select {
		case ev := <-sub.inbox:
			if err := sub.conn.WriteJSON(ev); err != nil {
				f.drop(sub)
				return
			}
		case <-sub.done:
			return
		}
	}
}

// readLoop discards inbound frames and detects the subscriber going away.
func (f *Feed) readLoop(sub *subscriber) {
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			f.drop(sub)
			return
		}
	}
}

// drop unregisters a subscriber and closes its connection. Safe to call
// multiple times.
func (f *Feed) drop(sub *subscriber) {
	sub.once.Do(func() {
		f.mu.Lock()
		delete(f.subs, sub)
		f.mu.Unlock()
		close(sub.done)
		sub.conn.Close()
		util.LogDebug("feed subscriber %s disconnected", sub.conn.RemoteAddr())
	})
}

// Capture broadcasts the event to every subscriber. A subscriber with a
// full outbox misses this event rather than blocking the capture path.
func (f *Feed) Capture(ev Event) {
	wire := feedEvent{
		Conn: fmt.Sprintf("%08x", ev.ConnID),
		Size: len(ev.Payload),
		Hex:  hex.EncodeToString(ev.Payload),
		Text: ev.Text,
	}
	if ev.Err != nil {
		wire.Err = ev.Err.Error()
	}

	f.mu.Lock()
	subs := make([]*subscriber, 0, len(f.subs))
	for sub := range f.subs {
		subs = append(subs, sub)
	}
	f.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.inbox <- wire:
		default:
		}
	}
}

// Close shuts down the listener and disconnects every subscriber.
func (f *Feed) Close() {
	if f.listener != nil {
		f.listener.Close()
	}

	f.mu.Lock()
	subs := make([]*subscriber, 0, len(f.subs))
	for sub := range f.subs {
		subs = append(subs, sub)
	}
	f.mu.Unlock()

	for _, sub := range subs {
		f.drop(sub)
	}
}
