package livechat

import (
	"encoding/json"
	"strings"
)

// Placeholders substituted for non-text segments in plain content.
var segmentPlaceholders = map[string]string{
	SegmentImage: "[图片]",
	SegmentEmoji: "[表情]",
	SegmentVoice: "[语音]",
	SegmentVideo: "[视频]",
	SegmentFile:  "[文件]",
}

// PlainContent flattens segments into display text. Text data is concatenated
// without separators, media segments become placeholders and seglists recurse in order.
func PlainContent(segs Segments) string {
	var b strings.Builder
	for _, seg := range segs {
		writeSegment(&b, seg)
	}
	return b.String()
}

func writeSegment(b *strings.Builder, seg Segment) {
	switch seg.Type {
	case SegmentText:
		b.WriteString(segmentText(seg.Data))
	case SegmentAt:
		b.WriteString("@")
		b.WriteString(atName(seg.Data))
	case SegmentSeglist:
		for _, child := range seglistChildren(seg.Data) {
			writeSegment(b, child)
		}
	default:
		if placeholder, ok := segmentPlaceholders[seg.Type]; ok {
			b.WriteString(placeholder)
		}
	}
}

// ReplyTarget returns the id quoted by the first reply segment, looking at the
// top level and one level into seglists. A reply without a usable id yields "".
func ReplyTarget(segs Segments) string {
	for _, seg := range segs {
		switch seg.Type {
		case SegmentReply:
			return stringData(seg.Data)
		case SegmentSeglist:
			for _, child := range seglistChildren(seg.Data) {
				if child.Type == SegmentReply {
					return stringData(child.Data)
				}
			}
		}
	}
	return ""
}

// segmentText accepts either a bare string or an object with a "text" field.
func segmentText(data json.RawMessage) string {
	if s, ok := asString(data); ok {
		return s
	}
	var obj struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		return obj.Text
	}
	return ""
}

func atName(data json.RawMessage) string {
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return ""
	}
	return obj.Name
}

func seglistChildren(data json.RawMessage) Segments {
	if len(data) == 0 {
		return nil
	}
	children, err := decodeSegmentList(data)
	if err != nil {
		return nil
	}
	return children
}

// stringData returns reply payloads verbatim. Numeric ids are kept in their JSON text form.
func stringData(data json.RawMessage) string {
	if s, ok := asString(data); ok {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		return n.String()
	}
	return ""
}

func asString(data json.RawMessage) (string, bool) {
	if len(data) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return "", false
	}
	return s, true
}
