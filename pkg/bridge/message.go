package bridge

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"
)

// Frame layout: kind(1) | flags(1) | length(2, big-endian) | payload.
const (
	FrameSize  = 512
	headerSize = 4
	MaxPayload = FrameSize - headerSize
)

// FlagTruncated is set when a non-token payload was cut at MaxPayload.
const FlagTruncated byte = 1 << 0

// Frame is the fixed-size unit carried by the bridge.
type Frame [FrameSize]byte

// Kind identifies a bridge message.
type Kind byte

const (
	// KindToken carries a fragment of reply text.
	KindToken Kind = iota + 1
	// KindStreamEnd marks a reply that finished normally.
	KindStreamEnd
	// KindError ends a reply with a user-facing failure message.
	KindError
	// KindModelListItem carries one model id.
	KindModelListItem
	// KindModelListEnd follows the last model id.
	KindModelListEnd
	// KindModelListError reports a failed model listing.
	KindModelListError
)

func (k Kind) String() string {
	switch k {
	case KindToken:
		return "Token"
	case KindStreamEnd:
		return "StreamEnd"
	case KindError:
		return "Error"
	case KindModelListItem:
		return "ModelListItem"
	case KindModelListEnd:
		return "ModelListEnd"
	case KindModelListError:
		return "ModelListError"
	default:
		return fmt.Sprintf("Kind(%d)", byte(k))
	}
}

// Message is a decoded bridge event.
type Message struct {
	Kind Kind
	Text string
	// Truncated reports that Text lost its tail to the payload limit.
	Truncated bool
}

// Token returns a Token message.
func Token(text string) Message { return Message{Kind: KindToken, Text: text} }

// StreamEnd returns a StreamEnd message.
func StreamEnd() Message { return Message{Kind: KindStreamEnd} }

// Error returns an Error message.
func Error(text string) Message { return Message{Kind: KindError, Text: text} }

// ModelListItem returns a ModelListItem message.
func ModelListItem(name string) Message { return Message{Kind: KindModelListItem, Text: name} }

// ModelListEnd returns a ModelListEnd message.
func ModelListEnd() Message { return Message{Kind: KindModelListEnd} }

// ModelListError returns a ModelListError message.
func ModelListError(text string) Message { return Message{Kind: KindModelListError, Text: text} }

// ErrMalformedFrame is returned by Decode for a frame with an unknown kind or
// an impossible length.
var ErrMalformedFrame = errors.New("bridge: malformed frame")

// Encode converts a message into one or more frames. Token text longer than
// MaxPayload is split into consecutive frames; any other kind is truncated.
// Splits and cuts always land on a UTF-8 boundary.
func Encode(m Message) []Frame {
	if m.Kind == KindToken && len(m.Text) > MaxPayload {
		var frames []Frame
		rest := m.Text
		for len(rest) > 0 {
			n := cut(rest)
			frames = append(frames, frame(m.Kind, 0, rest[:n]))
			rest = rest[n:]
		}
		return frames
	}

	var flags byte
	text := m.Text
	if m.Truncated {
		flags |= FlagTruncated
	}
	if len(text) > MaxPayload {
		text = text[:cut(text)]
		flags |= FlagTruncated
	}
	return []Frame{frame(m.Kind, flags, text)}
}

// Decode converts a frame back into a message.
func Decode(f Frame) (Message, error) {
	k := Kind(f[0])
	if k < KindToken || k > KindModelListError {
		return Message{}, fmt.Errorf("%w: unknown kind %d", ErrMalformedFrame, f[0])
	}
	n := int(binary.BigEndian.Uint16(f[2:4]))
	if n > MaxPayload {
		return Message{}, fmt.Errorf("%w: payload length %d", ErrMalformedFrame, n)
	}
	return Message{
		Kind:      k,
		Text:      string(f[headerSize : headerSize+n]),
		Truncated: f[1]&FlagTruncated != 0,
	}, nil
}

func frame(k Kind, flags byte, payload string) Frame {
	var f Frame
	f[0] = byte(k)
	f[1] = flags
	binary.BigEndian.PutUint16(f[2:4], uint16(len(payload)))
	copy(f[headerSize:], payload)
	return f
}

// cut returns the largest prefix length <= MaxPayload that ends on a rune
// boundary. Invalid UTF-8 falls back to a byte cut.
func cut(s string) int {
	if len(s) <= MaxPayload {
		return len(s)
	}
	n := MaxPayload
	for n > MaxPayload-utf8.UTFMax && !utf8.RuneStart(s[n]) {
		n--
	}
	if !utf8.RuneStart(s[n]) {
		return MaxPayload
	}
	return n
}
