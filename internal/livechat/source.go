package livechat

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Source is one of the three message shapes the host hands to the relay:
// TypedRecord, Envelope or Opaque. The set is closed.
type Source interface {
	isSource()
}

// ChatInfo describes the chat a stored message belongs to.
type ChatInfo struct {
	Platform string `json:"platform"`
}

// UserInfo identifies a message sender.
type UserInfo struct {
	UserID       string `json:"user_id"`
	UserNickname string `json:"user_nickname"`
}

// GroupInfo carries group context for group chats.
type GroupInfo struct {
	GroupID   string `json:"group_id"`
	GroupName string `json:"group_name"`
}

// TypedRecord is the host's stored-message record with structured sub-objects.
type TypedRecord struct {
	MessageID          string     `json:"message_id"`
	ChatID             string     `json:"chat_id"`
	Chat               *ChatInfo  `json:"chat_info,omitempty"`
	User               *UserInfo  `json:"user_info,omitempty"`
	Group              *GroupInfo `json:"group_info,omitempty"`
	ProcessedPlainText string     `json:"processed_plain_text"`
	DisplayMessage     string     `json:"display_message"`
	Time               float64    `json:"time"`
	IsEmoji            bool       `json:"is_emoji"`
	IsPicID            bool       `json:"is_picid"`
	ReplyTo            string     `json:"reply_to"`
}

// MessageInfo is the header of a generic envelope.
type MessageInfo struct {
	MessageID string     `json:"message_id"`
	Platform  string     `json:"platform"`
	Time      float64    `json:"time"`
	UserInfo  *UserInfo  `json:"user_info,omitempty"`
	GroupInfo *GroupInfo `json:"group_info,omitempty"`
}

// Envelope is the generic wire envelope used by platform adapters.
type Envelope struct {
	MessageInfo    MessageInfo `json:"message_info"`
	Platform       string      `json:"platform,omitempty"`
	MessageSegment Segments    `json:"message_segment"`
}

// Opaque wraps any value the relay has no structured knowledge of.
type Opaque struct {
	Value any
}

func (TypedRecord) isSource() {}
func (Envelope) isSource()    {}
func (Opaque) isSource()      {}

// Segment types understood by the normalizer.
const (
	SegmentText    = "text"
	SegmentImage   = "image"
	SegmentEmoji   = "emoji"
	SegmentVoice   = "voice"
	SegmentVideo   = "video"
	SegmentFile    = "file"
	SegmentAt      = "at"
	SegmentReply   = "reply"
	SegmentSeglist = "seglist"
)

// Segment is one typed piece of an envelope body. Data is kept raw because its
// shape depends on Type: a string for text and reply, an object for at, a list for seglist.
type Segment struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewSegment builds a segment from a Go value. Values that cannot be encoded yield an empty payload.
func NewSegment(segType string, data any) Segment {
	if data == nil {
		return Segment{Type: segType}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Segment{Type: segType}
	}
	return Segment{Type: segType, Data: raw}
}

// TextSegment is shorthand for a text segment.
func TextSegment(text string) Segment {
	return NewSegment(SegmentText, text)
}

// ReplySegment is shorthand for a reply segment quoting messageID.
func ReplySegment(messageID string) Segment {
	return NewSegment(SegmentReply, messageID)
}

// SeglistSegment nests segments in order.
func SeglistSegment(children ...Segment) Segment {
	if children == nil {
		children = []Segment{}
	}
	return NewSegment(SegmentSeglist, children)
}

// Segments is the body of an envelope. On the wire it is either a single
// segment object or a list of segments; both decode to a slice.
type Segments []Segment

// UnmarshalJSON accepts an object, a list, or null.
func (s *Segments) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*s = nil
		return nil
	}

	switch trimmed[0] {
	case '{':
		var one Segment
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return fmt.Errorf("decode segment: %w", err)
		}
		*s = Segments{one}
	case '[':
		many, err := decodeSegmentList(trimmed)
		if err != nil {
			return err
		}
		*s = many
	default:
		return fmt.Errorf("decode segments: unexpected token %q", trimmed[0])
	}
	return nil
}

// decodeSegmentList decodes a JSON list of segments, skipping elements that are not objects.
func decodeSegmentList(data json.RawMessage) (Segments, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode segment list: %w", err)
	}
	out := make(Segments, 0, len(items))
	for _, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) == 0 || item[0] != '{' {
			continue
		}
		var seg Segment
		if err := json.Unmarshal(item, &seg); err != nil {
			continue
		}
		out = append(out, seg)
	}
	return out, nil
}
