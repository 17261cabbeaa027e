package protocol

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestEncodeLayout(t *testing.T) {
	t.Run("MoveUnit", func(t *testing.T) {
		b, err := Encode(MoveUnit{PlayerID: 0x0102, From: 3, To: 11})
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		want := []byte{
			tagMoveUnit,
			0, 0, 0, 0, 0, 0, 0x01, 0x02,
			0, 0, 0, 3,
			0, 0, 0, 11,
		}
		if !bytes.Equal(b, want) {
			t.Errorf("Encode = %v, want %v", b, want)
		}
	})

	t.Run("PlayerJoinedLengthPrefixesName", func(t *testing.T) {
		b, err := Encode(PlayerJoined{PlayerID: 7, Name: "Bob"})
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		want := []byte{tagPlayerJoined, 0, 0, 0, 0, 0, 0, 0, 7, 0, 0, 0, 3, 'B', 'o', 'b'}
		if !bytes.Equal(b, want) {
			t.Errorf("Encode = %v, want %v", b, want)
		}
	})

	t.Run("EndGameReason", func(t *testing.T) {
		b, err := Encode(EndGame{Reason: PlayerWon{Winner: 2}})
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		if b[0] != tagEndGame || b[1] != reasonPlayerWon || len(b) != 10 {
			t.Errorf("unexpected encoding %v", b)
		}
	})
}

func TestDecodeEveryVariant(t *testing.T) {
	events := []Event{
		BeginGame{GoesFirst: 2},
		EndGame{Reason: PlayerLeft{PlayerID: 1}},
		EndGame{Reason: PlayerWon{Winner: 2}},
		PlayerJoined{PlayerID: 1, Name: "Alice"},
		PlayerJoined{PlayerID: 3, Name: ""},
		PlayerDisconnected{PlayerID: 1},
		BuildUnit{PlayerID: 1, At: 5, UnitKind: 2},
		MoveUnit{PlayerID: 2, From: 63, To: 0},
		EndTurn{PlayerID: 2},
	}
	for _, e := range events {
		b, err := Encode(e)
		if err != nil {
			t.Fatalf("Encode(%v): %v", e, err)
		}
		got, err := Decode(b)
		if err != nil {
			t.Fatalf("Decode(%v): %v", e, err)
		}
		if got != e {
			t.Errorf("Decode = %#v, want %#v", got, e)
		}
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	valid, _ := Encode(BuildUnit{PlayerID: 1, At: 5, UnitKind: 0})
	longName := append([]byte{tagPlayerJoined, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0x10, 0}, bytes.Repeat([]byte{'a'}, 4096)...)

	tests := []struct {
		name    string
		payload []byte
	}{
		{"Empty", nil},
		{"UnknownTag", []byte{0xFF, 0, 0}},
		{"ZeroTag", []byte{0}},
		{"Truncated", valid[:len(valid)-1]},
		{"Trailing", append(append([]byte{}, valid...), 0)},
		{"UnknownReason", []byte{tagEndGame, 9, 0, 0, 0, 0, 0, 0, 0, 1}},
		{"NameTooLong", longName},
		{"NameLengthPastEnd", []byte{tagPlayerJoined, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 9, 'a'}},
		{"InvalidUTF8", []byte{tagPlayerJoined, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 1, 0xFF}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e, err := Decode(tc.payload)
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("Decode error = %v, want ErrMalformed", err)
			}
			if e != nil {
				t.Errorf("Decode returned event %v alongside an error", e)
			}
		})
	}
}

func TestEncodeRejectsOversizeName(t *testing.T) {
	if _, err := Encode(PlayerJoined{PlayerID: 1, Name: strings.Repeat("x", MaxNameLength+1)}); err == nil {
		t.Error("expected an error for an oversize name")
	}
}

func TestHandshake(t *testing.T) {
	b, err := EncodeHandshake(ProtocolID, "Alice")
	if err != nil {
		t.Fatalf("EncodeHandshake: %v", err)
	}
	id, name, err := DecodeHandshake(b)
	if err != nil {
		t.Fatalf("DecodeHandshake: %v", err)
	}
	if id != ProtocolID || name != "Alice" {
		t.Errorf("DecodeHandshake = (%d, %q), want (%d, %q)", id, name, ProtocolID, "Alice")
	}

	if _, _, err := DecodeHandshake(b[:6]); !errors.Is(err, ErrMalformed) {
		t.Errorf("short handshake error = %v, want ErrMalformed", err)
	}
}

func TestWelcome(t *testing.T) {
	b := EncodeWelcome(42)
	if len(b) != 8 {
		t.Fatalf("welcome is %d bytes, want 8", len(b))
	}
	if id, err := DecodeWelcome(b); err != nil || id != 42 {
		t.Errorf("DecodeWelcome = (%d, %v)", id, err)
	}
	if _, err := DecodeWelcome(append(b, 0)); !errors.Is(err, ErrMalformed) {
		t.Errorf("trailing byte error = %v, want ErrMalformed", err)
	}
}

func TestActingPlayer(t *testing.T) {
	if id, ok := ActingPlayer(MoveUnit{PlayerID: 4}); !ok || id != 4 {
		t.Errorf("ActingPlayer(MoveUnit) = (%d, %v)", id, ok)
	}
	if _, ok := ActingPlayer(PlayerJoined{PlayerID: 4}); ok {
		t.Error("PlayerJoined must not have an acting player")
	}
}

func TestDescribe(t *testing.T) {
	d := Describe(EndGame{Reason: PlayerWon{Winner: 9}})
	if d["type"] != "EndGame" || d["reason"] != "PlayerWon" {
		t.Errorf("Describe = %v", d)
	}
}
