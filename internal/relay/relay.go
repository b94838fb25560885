// Package relay implements the transparent observing TCP relay: an accept
// loop that pairs every client connection with a backend connection and
// forwards bytes verbatim in both directions, inspecting inbound traffic
// on the way through.
package relay

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/beats-dh/proxy/internal/inspect"
	"github.com/beats-dh/proxy/internal/protocol"
	"github.com/beats-dh/proxy/internal/util"
)

// queueSize is the forwarding queue capacity. A full queue blocks inbound
// capture, bounding how far it can outrun the backend write path.
const queueSize = 32

// Relay holds the complete lifecycle state for one client connection: the
// two sockets and the bounded FIFO queue between them.
type Relay struct {
	// Identity
	id uint32

	// Lifecycle
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	// Sockets
	client  net.Conn // accepted inbound connection
	backend net.Conn // dialed outbound connection

	// Forwarding
	queue chan []byte
	sink  inspect.Sink
}

// Handle dials the backend and relays traffic for one client connection
// until either side closes or ctx is cancelled. It returns after the whole
// pipeline has shut down and both sockets are closed. A backend dial
// failure closes the client connection and is returned immediately.
func Handle(ctx context.Context, id uint32, client net.Conn, targetAddr string, sink inspect.Sink) error {
	backend, err := net.Dial("tcp", targetAddr)
	if err != nil {
		client.Close()
		return fmt.Errorf("backend dial %s failed: %w", targetAddr, err)
	}
	util.LogInfo("[%08x] connected to backend %s", id, targetAddr)

	rctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r := &Relay{
		id:      id,
		ctx:     rctx,
		cancel:  cancel,
		client:  client,
		backend: backend,
		queue:   make(chan []byte, queueSize),
		sink:    sink,
	}

	util.Stats.AddConn()
	defer util.Stats.RemoveConn()

	r.run()
	return nil
}

// run starts the three pipeline units and waits for all of them. The first
// unit to fail triggers the shared shutdown, which unblocks the others; a
// clean end of the inbound stream flushes the queue first.
func (r *Relay) run() {
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		r.captureClient()
	}()
	go func() {
		defer wg.Done()
		r.relayBackend()
	}()
	go func() {
		defer wg.Done()
		r.drainQueue()
	}()

	wg.Wait()
	util.LogInfo("[%08x] relay closed", r.id)
}

// ---------------------------------------------------------------------------
// Client → queue (with inspection)
// ---------------------------------------------------------------------------

// captureClient reads raw chunks from the client socket, inspects each one
// and enqueues the original bytes for forwarding. It uses a blocking Read;
// shutdown() closes the socket to unblock it. On exit it closes the queue,
// letting the drain unit flush whatever is already buffered.
func (r *Relay) captureClient() {
	defer close(r.queue)

	buf := make([]byte, protocol.MaxSize)
	for {
		n, err := r.client.Read(buf)

		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			util.Stats.AddInbound(n)

			r.inspectChunk(chunk)

			select {
			case r.queue <- chunk:
			case <-r.ctx.Done():
				return
			}
		}

		if err != nil {
			select {
			case <-r.ctx.Done():
				// Already shutting down; nothing worth logging.
			default:
				util.LogDebug("[%08x] client read ended: %v", r.id, err)
			}
			return
		}
	}
}

// inspectChunk parses a chunk for diagnostics: append it to a fresh
// message, rewind, attempt to decode a length-prefixed string, and hand the
// outcome to the sink. Inspection is diagnostic, not load-bearing; its
// failures never stop the chunk from being forwarded.
func (r *Relay) inspectChunk(chunk []byte) {
	ev := inspect.Event{ConnID: r.id, Payload: chunk}

	msg := protocol.NewMessage()
	if err := msg.AddBytes(chunk); err != nil {
		ev.Err = err
	} else {
		msg.Rewind()
		ev.Text, ev.Err = msg.GetString()
	}

	r.sink.Capture(ev)
}

// ---------------------------------------------------------------------------
// Backend → client (verbatim)
// ---------------------------------------------------------------------------

// relayBackend copies the backend's byte stream verbatim back to the
// client. No inspection, no queue.
func (r *Relay) relayBackend() {
	defer r.shutdown()

	buf := make([]byte, protocol.MaxSize)
	for {
		n, err := r.backend.Read(buf)

		if n > 0 {
			if _, werr := r.client.Write(buf[:n]); werr != nil {
				select {
				case <-r.ctx.Done():
				default:
					util.LogDebug("[%08x] client write error: %v", r.id, werr)
				}
				return
			}
			util.Stats.AddOutbound(n)
		}

		if err != nil {
			select {
			case <-r.ctx.Done():
				// Already shutting down; nothing worth logging.
			default:
				util.LogDebug("[%08x] backend read ended: %v", r.id, err)
			}
			return
		}
	}
}

// ---------------------------------------------------------------------------
// Queue → backend
// ---------------------------------------------------------------------------

// drainQueue pops chunks in FIFO order and writes them to the backend.
// Single producer, single consumer: relative chunk order is preserved
// end-to-end. When the capture unit closes the queue, the drain finishes
// the remaining chunks before shutting the relay down.
func (r *Relay) drainQueue() {
	defer r.shutdown()

	for {
		select {
		case chunk, ok := <-r.queue:
			if !ok {
				return
			}
			if _, err := r.backend.Write(chunk); err != nil {
				select {
				case <-r.ctx.Done():
				default:
					util.LogDebug("[%08x] backend write error: %v", r.id, err)
				}
				return
			}
		case <-r.ctx.Done():
			return
		}
	}
}

// shutdown consolidates all teardown actions behind sync.Once so that
// whichever unit exits first releases both sockets exactly once. Closing
// the sockets unblocks the blocking reads in the sibling units.
func (r *Relay) shutdown() {
	r.closeOnce.Do(func() {
		r.cancel()
		r.client.Close()
		r.backend.Close()
		util.LogDebug("[%08x] relay shutdown complete", r.id)
	})
}
