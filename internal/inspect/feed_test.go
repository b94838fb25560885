package inspect_test

import (
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/beats-dh/proxy/internal/inspect"
)

// wireEvent mirrors the JSON document the feed broadcasts.
type wireEvent struct {
	Conn string `json:"conn"`
	Size int    `json:"size"`
	Hex  string `json:"hex"`
	Text string `json:"text"`
	Err  string `json:"error"`
}

// TestFeedBroadcast verifies that a subscribed WebSocket client receives
// captured events as JSON documents, including the decode-error
// pass-through.
func TestFeedBroadcast(t *testing.T) {
	feed := inspect.NewFeed()
	addr, err := feed.Start("127.0.0.1:0")
	if err != nil {
		t.Fatalf("feed start: %v", err)
	}
	defer feed.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/feed", nil)
	if err != nil {
		t.Fatalf("dial feed: %v", err)
	}
	defer conn.Close()

	got := make(chan wireEvent, 1)
	go func() {
		var ev wireEvent
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&ev); err == nil {
			got <- ev
		}
	}()

	// The subscriber registers shortly after the dial handshake; publish
	// until the first event comes back.
	payload := []byte{0x05, 0x00, 'h', 'e', 'l', 'l', 'o'}
	deadline := time.After(5 * time.Second)
	for {
		feed.Capture(inspect.Event{ConnID: 0xDEADBEEF, Payload: payload, Text: "hello"})

		select {
		case ev := <-got:
			if ev.Conn != "deadbeef" {
				t.Errorf("conn id: got %q, want %q", ev.Conn, "deadbeef")
			}
			if ev.Size != len(payload) {
				t.Errorf("size: got %d, want %d", ev.Size, len(payload))
			}
			if ev.Hex != hex.EncodeToString(payload) {
				t.Errorf("hex: got %q, want %q", ev.Hex, hex.EncodeToString(payload))
			}
			if ev.Text != "hello" {
				t.Errorf("text: got %q, want %q", ev.Text, "hello")
			}
			if ev.Err != "" {
				t.Errorf("unexpected error field: %q", ev.Err)
			}

			// Registration is settled; exercise the error pass-through.
			// Earlier duplicates may still sit in the outbox, skip past them.
			feed.Capture(inspect.Event{ConnID: 0x1, Payload: []byte{0xFF}, Err: errors.New("boom")})
			for {
				var ev2 wireEvent
				conn.SetReadDeadline(time.Now().Add(5 * time.Second))
				if err := conn.ReadJSON(&ev2); err != nil {
					t.Fatalf("read error event: %v", err)
				}
				if ev2.Err == "" {
					continue
				}
				if ev2.Err != "boom" {
					t.Errorf("error field: got %q, want %q", ev2.Err, "boom")
				}
				if ev2.Conn != "00000001" {
					t.Errorf("conn id: got %q, want %q", ev2.Conn, "00000001")
				}
				return
			}

		case <-deadline:
			t.Fatal("no event received from the feed")

		case <-time.After(50 * time.Millisecond):
			// Not registered yet; publish again.
		}
	}
}

// TestFeedSlowSubscriber verifies that a subscriber that never reads cannot
// stall the capture path: publishing far more events than the outbox holds
// must return promptly.
func TestFeedSlowSubscriber(t *testing.T) {
	feed := inspect.NewFeed()
	addr, err := feed.Start("127.0.0.1:0")
	if err != nil {
		t.Fatalf("feed start: %v", err)
	}
	defer feed.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/feed", nil)
	if err != nil {
		t.Fatalf("dial feed: %v", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10000; i++ {
			feed.Capture(inspect.Event{ConnID: uint32(i), Payload: []byte{1, 2, 3}})
		}
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Capture blocked on a slow subscriber")
	}
}

// TestMultiSink verifies fan-out order and payload sharing.
func TestMultiSink(t *testing.T) {
	var first, second []inspect.Event
	sinks := inspect.MultiSink{
		sinkFunc(func(ev inspect.Event) { first = append(first, ev) }),
		sinkFunc(func(ev inspect.Event) { second = append(second, ev) }),
	}

	ev := inspect.Event{ConnID: 42, Payload: []byte("chunk"), Text: "chunk"}
	sinks.Capture(ev)

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("fan-out counts: got %d and %d, want 1 and 1", len(first), len(second))
	}
	if first[0].ConnID != 42 || second[0].ConnID != 42 {
		t.Error("event fields lost in fan-out")
	}
}

// sinkFunc adapts a function to the Sink interface.
type sinkFunc func(inspect.Event)

func (f sinkFunc) Capture(ev inspect.Event) { f(ev) }
