package push

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// recordSeparator terminates every message of the SignalR JSON protocol.
const recordSeparator = 0x1e

// Hub message types.
const (
	msgInvocation   = 1
	msgStreamItem   = 2
	msgCompletion   = 3
	msgPing         = 6
	msgClose        = 7
	handshakeFormat = `{"protocol":"json","version":1}`
)

// Server-to-client hub methods.
const (
	targetReceived = "ReceiveNotification"
	targetRemoved  = "RemovedNotification"
	targetRead     = "NotificationRead"
	targetUpdated  = "UpdateNotification"

	// Client-to-server.
	targetMarkAsRead = "MarkAsRead"
)

// hubMessage is the union of the message shapes this client handles.
type hubMessage struct {
	Type           int               `json:"type"`
	Target         string            `json:"target,omitempty"`
	InvocationID   string            `json:"invocationId,omitempty"`
	Arguments      []json.RawMessage `json:"arguments,omitempty"`
	Error          string            `json:"error,omitempty"`
	AllowReconnect bool              `json:"allowReconnect,omitempty"`
}

type handshakeResponse struct {
	Error string `json:"error,omitempty"`
}

// splitRecords returns the complete records in data. The SignalR JSON
// protocol allows several records per frame; a trailing partial record is
// returned as rest.
func splitRecords(data []byte) (records [][]byte, rest []byte) {
	for {
		i := bytes.IndexByte(data, recordSeparator)
		if i < 0 {
			return records, data
		}
		if i > 0 {
			records = append(records, data[:i])
		}
		data = data[i+1:]
	}
}

func encodeRecord(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(data, recordSeparator), nil
}

// invocation builds a non-blocking invocation: no invocationId, so the
// server sends no completion.
func invocation(target string, args ...any) (hubMessage, error) {
	raw := make([]json.RawMessage, 0, len(args))
	for _, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return hubMessage{}, fmt.Errorf("encoding %s argument: %w", target, err)
		}
		raw = append(raw, b)
	}
	return hubMessage{Type: msgInvocation, Target: target, Arguments: raw}, nil
}

// CloseError is returned when the server ends the connection with a
// Close message.
type CloseError struct {
	Message        string
	AllowReconnect bool
}

func (e *CloseError) Error() string {
	if e.Message == "" {
		return "hub closed connection"
	}
	return "hub closed connection: " + e.Message
}
