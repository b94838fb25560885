package relay

import (
	"context"
	"fmt"
	"net"

	"github.com/beats-dh/proxy/internal/inspect"
	"github.com/beats-dh/proxy/internal/util"
)

// ListenAndServe accepts client connections on listenAddr and relays each
// one to targetAddr until ctx is cancelled. Every accepted connection gets
// its own relay goroutine; accept concurrency is unbounded. A bind failure
// is returned immediately.
func ListenAndServe(ctx context.Context, listenAddr, targetAddr string, sink inspect.Sink) error {
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", listenAddr, err)
	}

	// Close the listener when context is done so Accept() returns an error.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	util.LogSuccess("relaying %s -> %s", listenAddr, targetAddr)

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil // normal shutdown
			default:
				return fmt.Errorf("accept error: %w", err)
			}
		}

		id := util.ConnID(conn)
		util.LogInfo("[%08x] new connection from %s", id, conn.RemoteAddr())

		go func() {
			if err := Handle(ctx, id, conn, targetAddr, sink); err != nil {
				util.LogError("[%08x] %v", id, err)
			}
		}()
	}
}
