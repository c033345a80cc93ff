package websocket

import (
	"bytes"
	"encoding/json"
)

// CommandKind identifies a client-to-server control frame.
type CommandKind int

const (
	// CommandUnknown covers malformed or unrecognised frames. They are ignored.
	CommandUnknown CommandKind = iota
	// CommandPing is the literal text frame "ping".
	CommandPing
	// CommandSubscribe adds a stream scope to the session.
	CommandSubscribe
	// CommandUnsubscribe removes a stream scope from the session.
	CommandUnsubscribe
)

func (k CommandKind) String() string {
	switch k {
	case CommandPing:
		return "ping"
	case CommandSubscribe:
		return "subscribe"
	case CommandUnsubscribe:
		return "unsubscribe"
	default:
		return "unknown"
	}
}

// Command is a parsed control frame.
type Command struct {
	Kind     CommandKind
	StreamID string
}

// Literal heartbeat frames.
var (
	pingFrame = []byte("ping")
	pongFrame = []byte("pong")
)

// controlFrame is the JSON shape of subscribe/unsubscribe requests and their acks.
type controlFrame struct {
	Type     string `json:"type"`
	StreamID string `json:"stream_id"`
}

// ParseCommand decodes one inbound text frame. It never fails: anything that
// is not a heartbeat or a well-formed command with a stream id is CommandUnknown.
func ParseCommand(data []byte) Command {
	if bytes.Equal(data, pingFrame) {
		return Command{Kind: CommandPing}
	}

	var frame controlFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return Command{Kind: CommandUnknown}
	}
	if frame.StreamID == "" {
		return Command{Kind: CommandUnknown}
	}
	switch frame.Type {
	case "subscribe":
		return Command{Kind: CommandSubscribe, StreamID: frame.StreamID}
	case "unsubscribe":
		return Command{Kind: CommandUnsubscribe, StreamID: frame.StreamID}
	default:
		return Command{Kind: CommandUnknown}
	}
}

// ackFrame builds the reply to a subscribe or unsubscribe command.
func ackFrame(kind CommandKind, streamID string) []byte {
	typ := "subscribed"
	if kind == CommandUnsubscribe {
		typ = "unsubscribed"
	}
	data, _ := json.Marshal(controlFrame{Type: typ, StreamID: streamID})
	return data
}
