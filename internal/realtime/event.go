// Package realtime is the presence registry and socket transport.
//
// A user may hold several connections; events are addressed to users, never to
// connections. Inbound frames are handed to a Dispatcher in arrival order.
package realtime

import (
	"encoding/json"
	"fmt"
)

// Event is an outbound frame: {"op": "...", "d": {...}, "seq": n}.
// Seq increases per hub so clients can spot gaps.
type Event struct {
	Op   string `json:"op"`
	Data any    `json:"d,omitempty"`
	Seq  int64  `json:"seq,omitempty"`
}

// Inbound is a client frame. Data stays raw until the dispatcher knows the op.
type Inbound struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"d,omitempty"`
	Seq  int64           `json:"seq,omitempty"`
}

const (
	OpHeartbeat    = "heartbeat"
	OpHeartbeatAck = "heartbeat_ack"
)

// Decode unmarshals an inbound payload into T.
func Decode[T any](in Inbound) (T, error) {
	var out T
	if len(in.Data) == 0 {
		return out, fmt.Errorf("realtime: %s: empty payload", in.Op)
	}
	if err := json.Unmarshal(in.Data, &out); err != nil {
		return out, fmt.Errorf("realtime: %s: %w", in.Op, err)
	}
	return out, nil
}
