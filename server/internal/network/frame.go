package network

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/xtr3m3nerd/DinoJam2/server/internal/protocol"
)

const (
	// MaxMessageSize is the largest frame body accepted from a peer.
	MaxMessageSize = 64 * 1024
	// LengthPrefixSize is the size in bytes of the uint32 length prefix.
	LengthPrefixSize = 4
)

// ErrFrameTooLarge is returned when a peer announces a frame above MaxMessageSize.
var ErrFrameTooLarge = errors.New("network: frame exceeds MaxMessageSize")

// A frame body is one channel byte followed by the payload. On stream
// transports the body is preceded by its big-endian uint32 length; message
// transports (WebSocket) carry the body as one binary message.

// EncodeBody prepends the channel byte to payload.
func EncodeBody(ch protocol.Channel, payload []byte) []byte {
	body := make([]byte, 0, 1+len(payload))
	body = append(body, byte(ch))
	return append(body, payload...)
}

// DecodeBody splits a frame body into channel and payload.
func DecodeBody(body []byte) (protocol.Channel, []byte, error) {
	if len(body) == 0 {
		return 0, nil, errors.New("network: empty frame body")
	}
	return protocol.Channel(body[0]), body[1:], nil
}

// WriteFrame writes one length-prefixed frame.
func WriteFrame(w io.Writer, ch protocol.Channel, payload []byte) error {
	body := EncodeBody(ch, payload)
	if len(body) > MaxMessageSize {
		return ErrFrameTooLarge
	}
	buf := make([]byte, LengthPrefixSize, LengthPrefixSize+len(body))
	binary.BigEndian.PutUint32(buf, uint32(len(body)))
	_, err := w.Write(append(buf, body...))
	return err
}

// ReadFrame reads one length-prefixed frame. Zero-length frames are skipped.
func ReadFrame(r io.Reader) (protocol.Channel, []byte, error) {
	lenBuf := make([]byte, LengthPrefixSize)
	for {
		if _, err := io.ReadFull(r, lenBuf); err != nil {
			return 0, nil, err
		}
		n := binary.BigEndian.Uint32(lenBuf)
		if n == 0 {
			continue
		}
		if n > MaxMessageSize {
			return 0, nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
		}
		body := make([]byte, n)
		if _, err := io.ReadFull(r, body); err != nil {
			return 0, nil, err
		}
		return DecodeBody(body)
	}
}
