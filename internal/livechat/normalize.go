package livechat

import "fmt"

// Normalize converts any Source into a WireMessage. It never fails: unknown
// shapes degrade to a record whose content is the stringified value.
//
// direction and senderType come from the caller because the same payload
// shape is used for both directions.
func Normalize(src Source, streamID string, direction Direction, senderType string) WireMessage {
	msg := WireMessage{
		Kind:       KindMessage,
		Direction:  direction,
		SenderType: senderType,
		IsBot:      direction == DirectionOutgoing,
	}

	switch s := src.(type) {
	case TypedRecord:
		normalizeRecord(&msg, s, streamID)
	case *TypedRecord:
		if s == nil {
			msg.StreamID = streamID
			msg.Content = "<nil>"
			break
		}
		normalizeRecord(&msg, *s, streamID)
	case Envelope:
		normalizeEnvelope(&msg, s, streamID)
	case *Envelope:
		if s == nil {
			msg.StreamID = streamID
			msg.Content = "<nil>"
			break
		}
		normalizeEnvelope(&msg, *s, streamID)
	case Opaque:
		msg.StreamID = streamID
		msg.Content = stringify(s.Value)
	default:
		msg.StreamID = streamID
		msg.Content = stringify(src)
	}
	return msg
}

func normalizeRecord(msg *WireMessage, r TypedRecord, streamID string) {
	msg.MessageID = r.MessageID
	msg.StreamID = streamID
	if msg.StreamID == "" {
		msg.StreamID = r.ChatID
	}
	if r.Chat != nil {
		msg.Platform = r.Chat.Platform
	}
	if r.User != nil {
		msg.UserID = r.User.UserID
		msg.UserNickname = r.User.UserNickname
	}
	if r.Group != nil {
		msg.GroupID = r.Group.GroupID
		msg.GroupName = r.Group.GroupName
	}
	msg.Content = r.ProcessedPlainText
	msg.DisplayMessage = r.DisplayMessage
	msg.Timestamp = r.Time
	msg.IsEmoji = r.IsEmoji
	msg.IsPicID = r.IsPicID
	msg.ReplyToID = r.ReplyTo
}

func normalizeEnvelope(msg *WireMessage, e Envelope, streamID string) {
	info := e.MessageInfo
	content := PlainContent(e.MessageSegment)

	msg.MessageID = info.MessageID
	msg.StreamID = streamID
	msg.Platform = info.Platform
	if msg.Platform == "" {
		msg.Platform = e.Platform
	}
	if info.UserInfo != nil {
		msg.UserID = info.UserInfo.UserID
		msg.UserNickname = info.UserInfo.UserNickname
	}
	if info.GroupInfo != nil {
		msg.GroupID = info.GroupInfo.GroupID
		msg.GroupName = info.GroupInfo.GroupName
	}
	msg.Content = content
	msg.DisplayMessage = content
	msg.Timestamp = info.Time
	msg.ReplyToID = ReplyTarget(e.MessageSegment)
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return "<nil>"
	case string:
		return val
	case []byte:
		return string(val)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}
