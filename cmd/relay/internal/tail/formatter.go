package tail

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/nfrund/liverelay/internal/livechat"
	"gopkg.in/yaml.v3"
)

var (
	timeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	incomingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	outgoingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")).
			Bold(true)

	streamStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62"))

	senderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255")).
			Bold(true)
)

// Formatter writes one relayed message to the terminal.
type Formatter interface {
	Format(msg livechat.WireMessage) error
}

// NewFormatter returns the formatter for format: text, json or yaml.
func NewFormatter(w io.Writer, format string) (Formatter, error) {
	switch format {
	case "", "text":
		return &textFormatter{w: w}, nil
	case "json":
		return &jsonFormatter{enc: json.NewEncoder(w)}, nil
	case "yaml":
		return &yamlFormatter{enc: yaml.NewEncoder(w)}, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q, use text, json or yaml", format)
	}
}

type textFormatter struct {
	w io.Writer
}

func (f *textFormatter) Format(msg livechat.WireMessage) error {
	_, err := fmt.Fprintf(f.w, "%s %s %s %s %s\n",
		timeStyle.Render(clock(msg.Timestamp)),
		arrow(msg.Direction),
		streamStyle.Render("["+orDash(msg.StreamID)+"]"),
		senderStyle.Render(sender(msg)+":"),
		msg.Content,
	)
	return err
}

func clock(ts float64) string {
	if ts == 0 {
		return "--:--:--"
	}
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).Format(time.TimeOnly)
}

func arrow(d livechat.Direction) string {
	switch d {
	case livechat.DirectionIncoming:
		return incomingStyle.Render("<-")
	case livechat.DirectionOutgoing:
		return outgoingStyle.Render("->")
	default:
		return "  "
	}
}

// sender picks the most readable name available for the message author.
func sender(msg livechat.WireMessage) string {
	if msg.UserNickname != "" {
		return msg.UserNickname
	}
	if msg.UserID != "" {
		return msg.UserID
	}
	return msg.SenderType
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

type jsonFormatter struct {
	enc *json.Encoder
}

func (f *jsonFormatter) Format(msg livechat.WireMessage) error {
	return f.enc.Encode(msg)
}

type yamlFormatter struct {
	enc *yaml.Encoder
}

// Format goes through the JSON form so YAML keys match the wire field names.
func (f *yamlFormatter) Format(msg livechat.WireMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	return f.enc.Encode(doc)
}
