package main

import (
	"encoding/binary"
	"math"
	"unicode/utf8"

	"github.com/rotisserie/eris"
)

// MessageKind is the first byte of every packet
type MessageKind uint8

// Client -> Server
const (
	MsgJoin           MessageKind = 1 // STRING lobby code, may be empty
	MsgJoinPreference MessageKind = 2 // INT_ARRAY [private, bots]
	MsgMove           MessageKind = 3 // FLOAT_ARRAY [x, y, bodyRot, headRot, vx, vy]
	MsgShoot          MessageKind = 4 // HEADER_ONLY
	MsgVote           MessageKind = 5 // NUMBER option index
	MsgChat           MessageKind = 6 // STRING
	MsgLeave          MessageKind = 7 // HEADER_ONLY
	MsgIdentify       MessageKind = 8 // STRING token
	MsgName           MessageKind = 9 // STRING
)

// Server -> Client
const (
	MsgYourID           MessageKind = 32 // NUMBER
	MsgAlert            MessageKind = 33 // STRING
	MsgLobbyState       MessageKind = 34 // INT_ARRAY [state, players, min, max]
	MsgCountdown        MessageKind = 35 // NUMBER seconds left
	MsgVoteOptions      MessageKind = 36 // STRING titles separated by '\n'
	MsgVoteTally        MessageKind = 37 // INT_ARRAY tallies, random option last
	MsgChatRelay        MessageKind = 38 // STRING
	MsgArena            MessageKind = 39 // FLOAT_ARRAY [w, h, ox0, oy0, ...]
	MsgArenaTitle       MessageKind = 40 // STRING
	MsgPlayerJoined     MessageKind = 41 // EXTRA(id) [team]
	MsgPlayerLeft       MessageKind = 42 // NUMBER id
	MsgMovement         MessageKind = 43 // EXTRA(id) [x, y, bodyRot, headRot, vx, vy]
	MsgSpawn            MessageKind = 44 // EXTRA(id) [team, x, y, protectionSeconds]
	MsgHealth           MessageKind = 45 // EXTRA(id) [health, shield]
	MsgDeath            MessageKind = 46 // INT_ARRAY [victim, killer]
	MsgProjectileAdd    MessageKind = 47 // EXTRA(shooter) [id, x, y, dx, dy]
	MsgProjectileRemove MessageKind = 48 // FLOAT_ARRAY [id]
	MsgPush             MessageKind = 49 // EXTRA(id) [dx, dy]
	MsgLives            MessageKind = 50 // NUMBER
	MsgSpectate         MessageKind = 51 // HEADER_ONLY
	MsgMatchEnd         MessageKind = 52 // INT_ARRAY [winner, killsA, killsB]
	MsgStats            MessageKind = 53 // INT_ARRAY [shots, hits, kills, deaths]
	MsgOutOfBounds      MessageKind = 54 // FLOAT_ARRAY [x, y] last accepted position
	MsgProtection       MessageKind = 55 // EXTRA(id) [active]
	MsgIdentified       MessageKind = 56 // STRING external id
	MsgLobbyCode        MessageKind = 57 // STRING private lobby code
)

// PayloadType is the second byte of every packet
type PayloadType uint8

const (
	PayloadNumber PayloadType = iota
	PayloadString
	PayloadIntArray
	PayloadFloatArray
	PayloadFloatArrayExtra
	PayloadHeaderOnly
)

// Packet is one decoded wire message. Only the field matching Type is used.
type Packet struct {
	Kind   MessageKind
	Type   PayloadType
	Number uint8
	Text   string
	Ints   []uint8
	Floats []float32
	Extra  uint8
}

func NumberPacket(kind MessageKind, n uint8) Packet {
	return Packet{Kind: kind, Type: PayloadNumber, Number: n}
}

func StringPacket(kind MessageKind, s string) Packet {
	return Packet{Kind: kind, Type: PayloadString, Text: s}
}

func IntsPacket(kind MessageKind, ints ...uint8) Packet {
	return Packet{Kind: kind, Type: PayloadIntArray, Ints: ints}
}

func FloatsPacket(kind MessageKind, floats ...float32) Packet {
	return Packet{Kind: kind, Type: PayloadFloatArray, Floats: floats}
}

// FloatsExtraPacket prefixes the float array with one extra header byte,
// usually the id of the player the floats describe.
func FloatsExtraPacket(kind MessageKind, extra uint8, floats ...float32) Packet {
	return Packet{Kind: kind, Type: PayloadFloatArrayExtra, Extra: extra, Floats: floats}
}

func HeaderPacket(kind MessageKind) Packet {
	return Packet{Kind: kind, Type: PayloadHeaderOnly}
}

// Encode serializes the packet. Floats are little-endian float32.
func (p Packet) Encode() []byte {
	switch p.Type {
	case PayloadNumber:
		return []byte{byte(p.Kind), byte(p.Type), p.Number}
	case PayloadString:
		b := make([]byte, 2, 2+len(p.Text))
		b[0], b[1] = byte(p.Kind), byte(p.Type)
		return append(b, p.Text...)
	case PayloadIntArray:
		b := make([]byte, 2, 2+len(p.Ints))
		b[0], b[1] = byte(p.Kind), byte(p.Type)
		return append(b, p.Ints...)
	case PayloadFloatArray:
		b := make([]byte, 2+4*len(p.Floats))
		b[0], b[1] = byte(p.Kind), byte(p.Type)
		putFloats(b[2:], p.Floats)
		return b
	case PayloadFloatArrayExtra:
		b := make([]byte, 3+4*len(p.Floats))
		b[0], b[1], b[2] = byte(p.Kind), byte(p.Type), p.Extra
		putFloats(b[3:], p.Floats)
		return b
	default:
		return []byte{byte(p.Kind), byte(PayloadHeaderOnly)}
	}
}

func putFloats(dst []byte, floats []float32) {
	for i, f := range floats {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(f))
	}
}

func readFloats(src []byte) ([]float32, error) {
	if len(src)%4 != 0 {
		return nil, eris.Wrapf(ErrMalformedPacket, "float payload of %d bytes", len(src))
	}
	out := make([]float32, len(src)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
	return out, nil
}

// DecodePacket parses one wire message
func DecodePacket(b []byte) (Packet, error) {
	if len(b) < 2 {
		return Packet{}, eris.Wrapf(ErrMalformedPacket, "packet of %d bytes", len(b))
	}
	p := Packet{Kind: MessageKind(b[0]), Type: PayloadType(b[1])}
	payload := b[2:]
	switch p.Type {
	case PayloadNumber:
		if len(payload) != 1 {
			return Packet{}, eris.Wrapf(ErrMalformedPacket, "number payload of %d bytes", len(payload))
		}
		p.Number = payload[0]
	case PayloadString:
		if !utf8.Valid(payload) {
			return Packet{}, eris.Wrap(ErrMalformedPacket, "string payload is not utf-8")
		}
		p.Text = string(payload)
	case PayloadIntArray:
		p.Ints = append([]uint8(nil), payload...)
	case PayloadFloatArray:
		floats, err := readFloats(payload)
		if err != nil {
			return Packet{}, err
		}
		p.Floats = floats
	case PayloadFloatArrayExtra:
		if len(payload) < 1 {
			return Packet{}, eris.Wrap(ErrMalformedPacket, "missing extra header byte")
		}
		p.Extra = payload[0]
		floats, err := readFloats(payload[1:])
		if err != nil {
			return Packet{}, err
		}
		p.Floats = floats
	case PayloadHeaderOnly:
		if len(payload) != 0 {
			return Packet{}, eris.Wrapf(ErrMalformedPacket, "header-only packet with %d payload bytes", len(payload))
		}
	default:
		return Packet{}, eris.Wrapf(ErrMalformedPacket, "unknown payload type %d", p.Type)
	}
	return p, nil
}

// isInbound reports whether kind is a client -> server message
func (k MessageKind) isInbound() bool {
	return k >= MsgJoin && k <= MsgName
}
