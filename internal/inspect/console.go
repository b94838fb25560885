package inspect

import (
	"encoding/hex"

	"github.com/beats-dh/proxy/internal/util"
)

// ConsoleSink renders captured chunks through the process logger: a one-line
// summary per chunk at info level, the decoded text and the full hex dump at
// debug level.
type ConsoleSink struct{}

func NewConsoleSink() *ConsoleSink { return &ConsoleSink{} }

func (*ConsoleSink) Capture(ev Event) {
	util.LogInfo("[%08x] captured %d bytes from client", ev.ConnID, len(ev.Payload))
	if ev.Err != nil {
		util.LogDebug("[%08x] inspect: %v", ev.ConnID, ev.Err)
	} else if ev.Text != "" {
		util.LogDebug("[%08x] decoded string: %q", ev.ConnID, ev.Text)
	}
	util.LogDebug("[%08x] hex dump:\n%s", ev.ConnID, hex.Dump(ev.Payload))
}
