package channel

import (
	"encoding/json"
	"strings"
)

// Event names spoken on the channel.
const (
	// EventJoinRoom is sent with the room id as data. The backend does not
	// acknowledge it.
	EventJoinRoom = "joinRoom"
	// EventChatMessage carries an OutgoingMessage when sent and a single
	// Message when received.
	EventChatMessage = "chatMessage"
	// EventRoomMessages carries a room's whole history, bare or wrapped.
	EventRoomMessages = "roomMessages"
)

// Envelope is the JSON frame exchanged on the channel. Peers may put several
// envelopes in one WebSocket message, separated by newlines.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Handler receives the data of one incoming event.
type Handler func(data json.RawMessage)

func encodeEnvelope(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
