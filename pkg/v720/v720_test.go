package v720

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderRoundtrip(t *testing.T) {
	h := &Header{Cmd: CmdVideo, Flag: FlagStart, ForwardID: DefaultForwardID, PkgID: 42}
	h.Length = 7

	b := h.Marshal()
	require.Len(t, b, HeaderSize)

	h2, err := ParseHeader(b)
	require.NoError(t, err)
	require.Equal(t, h, h2)
}

func TestUnmarshalNeedMore(t *testing.T) {
	msg := JSON([]byte(`{"code":100,"uid":"X001"}`))
	b := msg.Marshal()

	// nothing decodable until header and full payload arrived
	for i := 0; i < len(b); i++ {
		_, _, err := Unmarshal(b[:i])
		require.ErrorIs(t, err, ErrNeedMore, "cut at %d", i)
	}

	got, n, err := Unmarshal(b)
	require.NoError(t, err)
	require.Equal(t, len(b), n)
	require.Equal(t, msg.Payload, got.Payload)
	require.Equal(t, CmdJSON, got.Header.Cmd)
}

func TestUnmarshalTrailingBytes(t *testing.T) {
	first := JSON([]byte(`{"code":50}`)).Marshal()
	second := KeepaliveAck

	b := append(append([]byte(nil), first...), second...)
	msg, n, err := Unmarshal(b)
	require.NoError(t, err)
	require.Equal(t, len(first), n)
	require.Equal(t, []byte(`{"code":50}`), msg.Payload)

	msg, n, err = Unmarshal(b[n:])
	require.NoError(t, err)
	require.Equal(t, len(second), n)
	require.Equal(t, CmdKeepalive, msg.Header.Cmd)
	require.Empty(t, msg.Payload)
}

func TestMalformedHeader(t *testing.T) {
	h := &Header{Length: MaxPayload + 1, Cmd: CmdVideo}
	_, err := ParseHeader(h.Marshal())
	require.ErrorIs(t, err, ErrHeader)
}

// The camera firmware verifies these sizes on the wire. Any change here is
// a protocol-breaking bug.
func TestFixedAckSizes(t *testing.T) {
	require.Len(t, RegistrationAck, 48)
	require.Len(t, KeepaliveAck, 20)

	// both must be stable across calls and decodable
	msg, n, err := Unmarshal(RegistrationAck)
	require.NoError(t, err)
	require.Equal(t, 48, n)
	code, err := Code(msg.Payload)
	require.NoError(t, err)
	require.Equal(t, CodeRegisterAck, code)

	ka, n, err := Unmarshal(KeepaliveAck)
	require.NoError(t, err)
	require.Equal(t, 20, n)
	require.Equal(t, CmdKeepalive, ka.Header.Cmd)
	require.Equal(t, FlagNone, ka.Header.Flag)
	require.Equal(t,
		[]byte{0, 0, 0, 0, 99, 0, 255, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
		KeepaliveAck)
}

func TestCodeWithNulPadding(t *testing.T) {
	code, err := Code([]byte("\x00\x00{\"code\":12}"))
	require.NoError(t, err)
	require.Equal(t, CodeNatComplete, code)

	_, err = Code([]byte(`{"status":200}`))
	require.Error(t, err)
}

func TestConfirmRoundtrip(t *testing.T) {
	ids := []uint32{1, 7, 3, 0xDEADBEEF}
	b := MarshalConfirm(DefaultForwardID, ids)
	require.Len(t, b, 16+4*len(ids))

	fwd, got, err := UnmarshalConfirm(b)
	require.NoError(t, err)
	require.Equal(t, DefaultForwardID, fwd)
	require.Equal(t, ids, got)
}

func TestConfirmWrongCommand(t *testing.T) {
	b := MarshalConfirm(DefaultForwardID, []uint32{1, 2})
	binary.LittleEndian.PutUint32(b[4:], 604)

	_, _, err := UnmarshalConfirm(b)
	require.ErrorIs(t, err, ErrUnknownCommand)
}

func TestConfirmEmpty(t *testing.T) {
	b := MarshalConfirm(DefaultForwardID, nil)
	require.Len(t, b, 16)

	_, ids, err := UnmarshalConfirm(b)
	require.NoError(t, err)
	require.Empty(t, ids)
}
