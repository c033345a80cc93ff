package livechat

import "encoding/json"

// Direction tells whether a message went from the platform to the bot or back.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
	DirectionUnknown  Direction = "unknown"
)

// ParseDirection maps free-form input onto a Direction. Anything unrecognized is DirectionUnknown.
func ParseDirection(s string) Direction {
	switch Direction(s) {
	case DirectionIncoming, DirectionOutgoing:
		return Direction(s)
	default:
		return DirectionUnknown
	}
}

// KindMessage is the only record kind the relay produces.
const KindMessage = "message"

// WireMessage is the canonical record stored in the replay buffer and pushed to clients.
// Optional strings are empty when unknown and encode as JSON null.
type WireMessage struct {
	Kind           string
	Direction      Direction
	SenderType     string
	IsBot          bool
	MessageID      string
	StreamID       string
	Platform       string
	UserID         string
	UserNickname   string
	Content        string
	DisplayMessage string
	Timestamp      float64 // unix seconds; zero means unknown
	IsEmoji        bool
	IsPicID        bool
	ReplyToID      string
	GroupID        string
	GroupName      string
}

// wireJSON is the on-the-wire shape of WireMessage.
type wireJSON struct {
	Type           string    `json:"type"`
	Direction      Direction `json:"direction"`
	SenderType     string    `json:"sender_type"`
	IsBot          bool      `json:"is_bot"`
	MessageID      *string   `json:"message_id"`
	StreamID       *string   `json:"stream_id"`
	Platform       *string   `json:"platform"`
	UserID         *string   `json:"user_id"`
	UserNickname   *string   `json:"user_nickname"`
	Content        string    `json:"content"`
	DisplayMessage string    `json:"display_message"`
	Timestamp      *float64  `json:"timestamp"`
	IsEmoji        bool      `json:"is_emoji"`
	IsPicID        bool      `json:"is_picid"`
	ReplyToID      *string   `json:"reply_to_id"`
	GroupID        *string   `json:"group_id"`
	GroupName      *string   `json:"group_name"`
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// MarshalJSON emits every field, using null for unknown optional values.
func (m WireMessage) MarshalJSON() ([]byte, error) {
	kind := m.Kind
	if kind == "" {
		kind = KindMessage
	}
	out := wireJSON{
		Type:           kind,
		Direction:      m.Direction,
		SenderType:     m.SenderType,
		IsBot:          m.IsBot,
		MessageID:      nullable(m.MessageID),
		StreamID:       nullable(m.StreamID),
		Platform:       nullable(m.Platform),
		UserID:         nullable(m.UserID),
		UserNickname:   nullable(m.UserNickname),
		Content:        m.Content,
		DisplayMessage: m.DisplayMessage,
		IsEmoji:        m.IsEmoji,
		IsPicID:        m.IsPicID,
		ReplyToID:      nullable(m.ReplyToID),
		GroupID:        nullable(m.GroupID),
		GroupName:      nullable(m.GroupName),
	}
	if m.Timestamp != 0 {
		ts := m.Timestamp
		out.Timestamp = &ts
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the shape produced by MarshalJSON. Used by clients such as `relay tail`.
func (m *WireMessage) UnmarshalJSON(data []byte) error {
	var in wireJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*m = WireMessage{
		Kind:           in.Type,
		Direction:      in.Direction,
		SenderType:     in.SenderType,
		IsBot:          in.IsBot,
		MessageID:      deref(in.MessageID),
		StreamID:       deref(in.StreamID),
		Platform:       deref(in.Platform),
		UserID:         deref(in.UserID),
		UserNickname:   deref(in.UserNickname),
		Content:        in.Content,
		DisplayMessage: in.DisplayMessage,
		IsEmoji:        in.IsEmoji,
		IsPicID:        in.IsPicID,
		ReplyToID:      deref(in.ReplyToID),
		GroupID:        deref(in.GroupID),
		GroupName:      deref(in.GroupName),
	}
	if in.Timestamp != nil {
		m.Timestamp = *in.Timestamp
	}
	return nil
}
