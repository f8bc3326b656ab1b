package typex

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"typex-bridge/internal/domain"
)

// Chunk modes.
const (
	ChunkModeLength  = "length"
	ChunkModeNewline = "newline"
)

// DefaultTextChunkLimit is the outbound chunk size in characters.
const DefaultTextChunkLimit = 2000

var (
	channelPrefixRe = regexp.MustCompile(`(?i)^typex:`)
	kindPrefixRe    = regexp.MustCompile(`(?i)^(group|chat|user|dm):`)
)

// NormalizeTarget strips the channel prefix and a kind prefix from a target.
func NormalizeTarget(raw string) string {
	s := strings.TrimSpace(channelPrefixRe.ReplaceAllString(strings.TrimSpace(raw), ""))
	return strings.TrimSpace(kindPrefixRe.ReplaceAllString(s, ""))
}

// ChunkText splits text into pieces of at most limit runes. In length mode
// it prefers to break at a newline, then a space. In newline mode every line
// is its own chunk (blank lines dropped), and long lines are split by length.
func ChunkText(text string, limit int, mode string) []string {
	if limit <= 0 {
		limit = DefaultTextChunkLimit
	}
	if text == "" {
		return nil
	}

	if mode == ChunkModeNewline {
		var out []string
		for _, line := range strings.Split(text, "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			out = append(out, chunkByLength(line, limit)...)
		}
		return out
	}
	return chunkByLength(text, limit)
}

func chunkByLength(text string, limit int) []string {
	var out []string
	for utf8.RuneCountInString(text) > limit {
		cut := byteOffset(text, limit)
		window := text[:cut]
		switch {
		case text[cut] == ' ' || text[cut] == '\n':
		case strings.LastIndexByte(window, '\n') > 0:
			cut = strings.LastIndexByte(window, '\n') + 1
		case strings.LastIndexByte(window, ' ') > 0:
			cut = strings.LastIndexByte(window, ' ') + 1
		}
		if piece := strings.TrimRight(text[:cut], " \n"); piece != "" {
			out = append(out, piece)
		}
		text = strings.TrimLeft(text[cut:], " \n")
	}
	if strings.TrimSpace(text) != "" {
		out = append(out, text)
	}
	return out
}

// byteOffset returns the byte index of the n-th rune.
func byteOffset(s string, n int) int {
	i := 0
	for pos := range s {
		if i == n {
			return pos
		}
		i++
	}
	return len(s)
}

// Sender is the send half of the Client.
type Sender interface {
	Send(ctx context.Context, content any, msgType domain.MessageType) (domain.SendResult, error)
}

// DeliveryResult is what an outbound send reports back to the host.
type DeliveryResult struct {
	Channel   string `json:"channel"`
	MessageID string `json:"message_id"`
	ChatID    string `json:"chat_id"`
}

// Outbound sends host-initiated text and media through a Sender.
type Outbound struct {
	sender Sender
	limit  int
	mode   string
}

// NewOutbound creates an Outbound with the given chunking.
func NewOutbound(sender Sender, limit int, mode string) *Outbound {
	if mode == "" {
		mode = ChunkModeLength
	}
	return &Outbound{sender: sender, limit: limit, mode: mode}
}

// SendText sends text in chunks, in order. The result carries the id of the
// last chunk sent.
func (o *Outbound) SendText(ctx context.Context, to, text string) (DeliveryResult, error) {
	res := DeliveryResult{Channel: domain.ChannelID, MessageID: "unknown", ChatID: NormalizeTarget(to)}
	for _, chunk := range ChunkText(text, o.limit, o.mode) {
		sent, err := o.sender.Send(ctx, chunk, domain.MessageTypeText)
		if err != nil {
			return res, err
		}
		if sent.MessageID != "" {
			res.MessageID = sent.MessageID
		}
	}
	return res, nil
}

// SendMedia sends the caption (if any) and then the media URL as its own message.
func (o *Outbound) SendMedia(ctx context.Context, to, text, mediaURL string) (DeliveryResult, error) {
	res, err := o.SendText(ctx, to, text)
	if err != nil || strings.TrimSpace(mediaURL) == "" {
		return res, err
	}
	sent, err := o.sender.Send(ctx, mediaURL, domain.MessageTypeText)
	if err != nil {
		return res, err
	}
	if sent.MessageID != "" {
		res.MessageID = sent.MessageID
	}
	return res, nil
}
