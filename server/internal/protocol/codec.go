package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/xtr3m3nerd/DinoJam2/server/internal/model"
)

// ErrMalformed is returned for any payload that is not a valid encoding.
var ErrMalformed = errors.New("protocol: malformed message")

// MaxNameLength bounds string fields on the wire.
const MaxNameLength = 256

const (
	tagBeginGame byte = iota + 1
	tagEndGame
	tagPlayerJoined
	tagPlayerDisconnected
	tagBuildUnit
	tagMoveUnit
	tagEndTurn
)

const (
	reasonPlayerLeft byte = iota + 1
	reasonPlayerWon
)

// Encode serializes an event: one tag byte followed by the variant's fields,
// fixed-width big-endian numbers and uint32-length-prefixed strings.
func Encode(e Event) ([]byte, error) {
	w := &writer{}
	switch ev := e.(type) {
	case BeginGame:
		w.u8(tagBeginGame)
		w.u64(uint64(ev.GoesFirst))
	case EndGame:
		w.u8(tagEndGame)
		switch r := ev.Reason.(type) {
		case PlayerLeft:
			w.u8(reasonPlayerLeft)
			w.u64(uint64(r.PlayerID))
		case PlayerWon:
			w.u8(reasonPlayerWon)
			w.u64(uint64(r.Winner))
		default:
			return nil, fmt.Errorf("protocol: unknown end reason %T", ev.Reason)
		}
	case PlayerJoined:
		w.u8(tagPlayerJoined)
		w.u64(uint64(ev.PlayerID))
		if err := w.str(ev.Name); err != nil {
			return nil, err
		}
	case PlayerDisconnected:
		w.u8(tagPlayerDisconnected)
		w.u64(uint64(ev.PlayerID))
	case BuildUnit:
		w.u8(tagBuildUnit)
		w.u64(uint64(ev.PlayerID))
		w.u32(ev.At)
		w.u32(uint32(ev.UnitKind))
	case MoveUnit:
		w.u8(tagMoveUnit)
		w.u64(uint64(ev.PlayerID))
		w.u32(ev.From)
		w.u32(ev.To)
	case EndTurn:
		w.u8(tagEndTurn)
		w.u64(uint64(ev.PlayerID))
	default:
		return nil, fmt.Errorf("protocol: cannot encode %T", e)
	}
	return w.buf, nil
}

// Decode parses a payload produced by Encode. Any unknown tag, short buffer,
// invalid string or trailing byte yields ErrMalformed.
func Decode(b []byte) (Event, error) {
	r := &reader{buf: b}
	tag := r.u8()
	var e Event
	switch tag {
	case tagBeginGame:
		e = BeginGame{GoesFirst: model.PlayerID(r.u64())}
	case tagEndGame:
		switch r.u8() {
		case reasonPlayerLeft:
			e = EndGame{Reason: PlayerLeft{PlayerID: model.PlayerID(r.u64())}}
		case reasonPlayerWon:
			e = EndGame{Reason: PlayerWon{Winner: model.PlayerID(r.u64())}}
		default:
			r.fail()
		}
	case tagPlayerJoined:
		id := model.PlayerID(r.u64())
		e = PlayerJoined{PlayerID: id, Name: r.str()}
	case tagPlayerDisconnected:
		e = PlayerDisconnected{PlayerID: model.PlayerID(r.u64())}
	case tagBuildUnit:
		id := model.PlayerID(r.u64())
		at := r.u32()
		e = BuildUnit{PlayerID: id, At: at, UnitKind: model.UnitKind(r.u32())}
	case tagMoveUnit:
		id := model.PlayerID(r.u64())
		from := r.u32()
		e = MoveUnit{PlayerID: id, From: from, To: r.u32()}
	case tagEndTurn:
		e = EndTurn{PlayerID: model.PlayerID(r.u64())}
	default:
		r.fail()
	}
	if err := r.finish(); err != nil {
		return nil, err
	}
	return e, nil
}

// EncodeHandshake builds the payload a client sends when it connects.
func EncodeHandshake(protocolID uint64, name string) ([]byte, error) {
	w := &writer{}
	w.u64(protocolID)
	if err := w.str(name); err != nil {
		return nil, err
	}
	return w.buf, nil
}

// DecodeHandshake returns the protocol id and player name of a handshake.
func DecodeHandshake(b []byte) (uint64, string, error) {
	r := &reader{buf: b}
	id := r.u64()
	name := r.str()
	if err := r.finish(); err != nil {
		return 0, "", err
	}
	return id, name, nil
}

// EncodeWelcome builds the control message telling a peer its player id.
func EncodeWelcome(id model.PlayerID) []byte {
	w := &writer{}
	w.u64(uint64(id))
	return w.buf
}

// DecodeWelcome parses a welcome control message.
func DecodeWelcome(b []byte) (model.PlayerID, error) {
	r := &reader{buf: b}
	id := r.u64()
	if err := r.finish(); err != nil {
		return 0, err
	}
	return model.PlayerID(id), nil
}

type writer struct {
	buf []byte
}

func (w *writer) u8(v byte) { w.buf = append(w.buf, v) }
func (w *writer) u32(v uint32) { w.buf = binary.BigEndian.AppendUint32(w.buf, v) }
func (w *writer) u64(v uint64) { w.buf = binary.BigEndian.AppendUint64(w.buf, v) }

func (w *writer) str(s string) error {
	if len(s) > MaxNameLength {
		return fmt.Errorf("protocol: string of %d bytes exceeds %d", len(s), MaxNameLength)
	}
	if !utf8.ValidString(s) {
		return errors.New("protocol: string is not valid UTF-8")
	}
	w.u32(uint32(len(s)))
	w.buf = append(w.buf, s...)
	return nil
}

// reader records the first failure and turns every later read into a no-op.
type reader struct {
	buf    []byte
	off    int
	failed bool
}

func (r *reader) fail() { r.failed = true }

func (r *reader) take(n int) []byte {
	if r.failed || len(r.buf)-r.off < n {
		r.failed = true
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() byte {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) u32() uint32 {
	if b := r.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (r *reader) u64() uint64 {
	if b := r.take(8); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

func (r *reader) str() string {
	n := r.u32()
	if r.failed || n > MaxNameLength {
		r.failed = true
		return ""
	}
	b := r.take(int(n))
	if r.failed || !utf8.Valid(b) {
		r.failed = true
		return ""
	}
	return string(b)
}

func (r *reader) finish() error {
	if r.failed {
		return ErrMalformed
	}
	if r.off != len(r.buf) {
		return fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(r.buf)-r.off)
	}
	return nil
}
