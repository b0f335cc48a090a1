// Package v720 implements the Naxclow V720/A9 camera wire protocol:
// a 20 byte little-endian header followed by a JSON payload on the control
// plane or raw media bytes on the streaming plane.
package v720

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

const HeaderSize = 20

// Max payload the device is ever seen to send. Anything bigger is a broken
// or hostile header, not a frame worth buffering for.
const MaxPayload = 1 << 20

// stream and datagram commands
const (
	CmdJSON         uint16 = 0
	CmdVideo        uint16 = 1
	CmdAudio        uint16 = 6
	CmdKeepalive    uint16 = 99
	CmdHeartbeat    uint16 = 100
	CmdUDPKeepalive uint16 = 102 // datagram keepalive, alternative format
)

// CmdConfirm is the datagram retransmission confirmation. It does not fit
// the regular header (32-bit command field, no flags), see MarshalConfirm.
const CmdConfirm uint32 = 605

// fragment roles (message flag field)
const (
	FlagStart    byte = 250
	FlagContinue byte = 251
	FlagEnd      byte = 252
	FlagNone     byte = 255
)

// JSON control codes (inner "code" field of CmdJSON payloads)
const (
	CodeNatRequest   = 11 // server -> camera, over stream
	CodeNatComplete  = 12 // camera -> server, over stream
	CodeUDPProbe     = 20 // camera -> server, over datagram
	CodeUDPProbeAck  = 21
	CodeProbeRequest = 50
	CodeProbeReply   = 51
	CodeDeviceStatus = 53
	CodeRegister     = 100
	CodeRegisterAck  = 101
	CodeSnapshot     = 201
	CodeSnapshotAck  = 202
	CodeForward      = 301
)

// 301-family content codes, taken from a real-device traffic capture
const (
	ContentStop     = 0
	ContentLive     = 3
	ContentBaseInfo = 4
	ContentSnapshot = 5
	ContentRetrans  = 298
)

var (
	ErrNeedMore = errors.New("v720: need more bytes")
	ErrHeader   = errors.New("v720: malformed header")

	// ErrUnknownCommand is returned by UnmarshalConfirm for a datagram
	// whose command field is not 605. Unknown commands on the regular
	// header path are a dispatch concern, not a decode error.
	ErrUnknownCommand = errors.New("v720: unknown command")
)

// DefaultForwardID is the idle forward identifier both sides use outside of
// relayed sessions.
var DefaultForwardID = [8]byte{'0', '0', '0', '0', '0', '0', '0', '0'}

type Header struct {
	Length    uint32 // payload length, not counting the header itself
	Cmd       uint16
	Flag      byte
	Deal      byte
	ForwardID [8]byte
	PkgID     uint32
}

func (h *Header) Marshal() []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b, h.Length)
	binary.LittleEndian.PutUint16(b[4:], h.Cmd)
	b[6] = h.Flag
	b[7] = h.Deal
	copy(b[8:], h.ForwardID[:])
	binary.LittleEndian.PutUint32(b[16:], h.PkgID)
	return b
}

func ParseHeader(b []byte) (*Header, error) {
	if len(b) < HeaderSize {
		return nil, ErrNeedMore
	}
	h := &Header{
		Length: binary.LittleEndian.Uint32(b),
		Cmd:    binary.LittleEndian.Uint16(b[4:]),
		Flag:   b[6],
		Deal:   b[7],
		PkgID:  binary.LittleEndian.Uint32(b[16:]),
	}
	copy(h.ForwardID[:], b[8:16])
	if h.Length > MaxPayload {
		return nil, fmt.Errorf("%w: length=%d", ErrHeader, h.Length)
	}
	return h, nil
}

// Message is one decoded protocol unit. Payload holds JSON bytes for
// CmdJSON and raw media bytes for fragment commands.
type Message struct {
	Header  Header
	Payload []byte
}

// Unmarshal decodes one message from the head of b and reports how many
// bytes it consumed. ErrNeedMore means the caller should buffer and retry
// once more bytes arrive, not fail the connection.
func Unmarshal(b []byte) (*Message, int, error) {
	h, err := ParseHeader(b)
	if err != nil {
		return nil, 0, err
	}
	total := HeaderSize + int(h.Length)
	if len(b) < total {
		return nil, 0, ErrNeedMore
	}
	msg := &Message{Header: *h}
	if h.Length > 0 {
		msg.Payload = make([]byte, h.Length)
		copy(msg.Payload, b[HeaderSize:total])
	}
	return msg, total, nil
}

// Marshal produces the full wire form. Output is deterministic: same
// logical content, same bytes.
func (m *Message) Marshal() []byte {
	h := m.Header
	h.Length = uint32(len(m.Payload))
	return append(h.Marshal(), m.Payload...)
}

// JSON wraps an already-serialized JSON body into a CmdJSON message.
func JSON(body []byte) *Message {
	return &Message{
		Header:  Header{Cmd: CmdJSON, Flag: FlagNone, ForwardID: DefaultForwardID},
		Payload: body,
	}
}

// MarshalJSON serializes v and wraps it into a CmdJSON wire message.
func MarshalJSON(v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return JSON(body).Marshal(), nil
}

// Code extracts the control code from a JSON payload. The device pads some
// payloads with leading NUL bytes, strip them before decoding.
func Code(payload []byte) (int, error) {
	var v struct {
		Code *int `json:"code"`
	}
	if err := json.Unmarshal(TrimPayload(payload), &v); err != nil {
		return 0, err
	}
	if v.Code == nil {
		return 0, errors.New("v720: json payload without code")
	}
	return *v.Code, nil
}

func TrimPayload(payload []byte) []byte {
	return bytes.TrimLeft(payload, "\x00")
}

// registrationAckBody is 28 bytes so the whole ack lands on exactly 48.
// The camera firmware checks the size, not just the content.
const registrationAckBody = `{"code": 101, "status": 200}`

// RegistrationAck is the fixed 48-byte reply to a code 100 registration.
var RegistrationAck = JSON([]byte(registrationAckBody)).Marshal()

// KeepaliveAck is the fixed 20-byte reply to a CmdKeepalive message:
// an empty header with command 99 and flag 255.
var KeepaliveAck = (&Header{Cmd: CmdKeepalive, Flag: FlagNone}).Marshal()

// MarshalConfirm builds the retransmission confirmation datagram:
// u32 total length of the remainder, u32 command 605, 8-byte device
// identifier, one u32 per received package identifier. All little-endian.
func MarshalConfirm(forwardID [8]byte, ids []uint32) []byte {
	n := 4 + 8 + len(ids)*4
	b := make([]byte, 8, 8+n)
	binary.LittleEndian.PutUint32(b, uint32(n))
	binary.LittleEndian.PutUint32(b[4:], CmdConfirm)
	b = append(b, forwardID[:]...)
	for _, id := range ids {
		b = binary.LittleEndian.AppendUint32(b, id)
	}
	return b
}

// UnmarshalConfirm parses a confirmation datagram back into its identifier
// list. The server never receives these, it exists for tests and tooling.
func UnmarshalConfirm(b []byte) (forwardID [8]byte, ids []uint32, err error) {
	if len(b) < 16 {
		err = ErrNeedMore
		return
	}
	n := binary.LittleEndian.Uint32(b)
	if int(n) != len(b)-4 || n%4 != 0 {
		err = fmt.Errorf("%w: confirm length=%d", ErrHeader, n)
		return
	}
	if cmd := binary.LittleEndian.Uint32(b[4:]); cmd != CmdConfirm {
		err = fmt.Errorf("%w: confirm cmd=%d", ErrUnknownCommand, cmd)
		return
	}
	copy(forwardID[:], b[8:16])
	for b = b[16:]; len(b) >= 4; b = b[4:] {
		ids = append(ids, binary.LittleEndian.Uint32(b))
	}
	return
}
