package control

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Kind tells requests and responses apart on the wire.
type Kind uint32

const (
	// KindRequest frames carry a [Request] from tgbotctl to the daemon.
	KindRequest Kind = 1
	// KindResponse frames carry a [Response] back.
	KindResponse Kind = 2

	// frameHeaderSize is a 4-byte little-endian kind followed by a 4-byte
	// little-endian payload length.
	frameHeaderSize = 8

	// MaxPayloadSize is the maximum allowed JSON payload size (64 KB).
	MaxPayloadSize = 64 << 10
)

// ErrPayloadTooLarge is returned when a frame payload exceeds MaxPayloadSize.
var ErrPayloadTooLarge = errors.New("payload too large")

// ///////////////////////////////////////////////
// Encoding
// ///////////////////////////////////////////////

// EncodeFrame builds a frame: [4-byte LE kind][4-byte LE length][payload].
func EncodeFrame(kind Kind, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}
	frame := make([]byte, frameHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(frame[0:4], uint32(kind))
	binary.LittleEndian.PutUint32(frame[4:8], uint32(len(payload)))
	copy(frame[8:], payload)
	return frame, nil
}

// WriteMessage marshals v as JSON and writes it to w as a single frame.
func WriteMessage(w io.Writer, kind Kind, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", kind, err)
	}
	frame, err := EncodeFrame(kind, payload)
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("writing %s: %w", kind, err)
	}
	return nil
}

// ///////////////////////////////////////////////
// Decoding
// ///////////////////////////////////////////////

// DecodeFrame reads a single frame from reader.
// It handles partial reads via io.ReadFull.
func DecodeFrame(reader io.Reader) (kind Kind, payload []byte, err error) {
	header := make([]byte, frameHeaderSize)
	if _, err = io.ReadFull(reader, header); err != nil {
		return 0, nil, fmt.Errorf("reading frame header: %w", err)
	}

	kind = Kind(binary.LittleEndian.Uint32(header[0:4]))
	length := binary.LittleEndian.Uint32(header[4:8])

	if length > MaxPayloadSize {
		return 0, nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, length, MaxPayloadSize)
	}

	payload = make([]byte, length)
	if _, err = io.ReadFull(reader, payload); err != nil {
		return 0, nil, fmt.Errorf("reading frame payload: %w", err)
	}

	return kind, payload, nil
}

// ReadMessage reads one frame of the wanted kind and unmarshals it into v.
func ReadMessage(r io.Reader, want Kind, v any) error {
	kind, payload, err := DecodeFrame(r)
	if err != nil {
		return err
	}
	if kind != want {
		return fmt.Errorf("unexpected frame kind %s, want %s", kind, want)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("parsing %s: %w", kind, err)
	}
	return nil
}

// String returns the lower-case kind name.
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	default:
		return fmt.Sprintf("kind(%d)", uint32(k))
	}
}
