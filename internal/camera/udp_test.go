package camera

import (
	"net"
	"testing"
	"time"

	"github.com/naxcloud/naxcloud/internal/sessions"
	"github.com/naxcloud/naxcloud/pkg/v720"
	"github.com/stretchr/testify/require"
)

type nopConn struct{}

func (nopConn) Write(b []byte) (int, error) { return len(b), nil }
func (nopConn) Close() error                { return nil }

func listenUDP(t *testing.T) *net.UDPConn {
	t.Helper()
	pc, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close() })
	return pc
}

func readDatagram(t *testing.T, pc *net.UDPConn) []byte {
	t.Helper()
	_ = pc.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 8192)
	n, _, err := pc.ReadFromUDP(buf)
	require.NoError(t, err)
	return buf[:n]
}

func readJSONCode(t *testing.T, pc *net.UDPConn) (int, []byte) {
	t.Helper()
	b := readDatagram(t, pc)
	msg, _, err := v720.Unmarshal(b)
	require.NoError(t, err)
	require.Equal(t, v720.CmdJSON, msg.Header.Cmd)
	code, err := v720.Code(msg.Payload)
	require.NoError(t, err)
	return code, msg.Payload
}

// camSession installs a session that GetByAddr resolves for datagrams
// from 127.0.0.1 and walks it to NatComplete.
func camSession(t *testing.T, deviceID string) *sessions.Session {
	t.Helper()
	ses := sessions.Default.Upsert(deviceID, nopConn{},
		&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000})
	require.True(t, ses.Event(sessions.EventRegister))
	require.True(t, ses.Event(sessions.EventNatRequest))
	require.True(t, ses.Event(sessions.EventNatComplete))
	return ses
}

func marshalJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := v720.MarshalJSON(v)
	require.NoError(t, err)
	return b
}

func TestUDPProbe(t *testing.T) {
	sessions.Default = sessions.NewRegistry()
	server, cam := listenUDP(t), listenUDP(t)
	camAddr := cam.LocalAddr().(*net.UDPAddr)

	ses := camSession(t, "dev1")

	handleDatagram(server, marshalJSON(t, v720.UDPProbe{Code: v720.CodeUDPProbe}), camAddr)

	code, payload := readJSONCode(t, cam)
	require.Equal(t, v720.CodeUDPProbeAck, code)

	var ack v720.UDPProbeAck
	require.NoError(t, unmarshalJSON(payload, &ack))
	require.Equal(t, "127.0.0.1", ack.IP)

	require.Equal(t, camAddr.String(), ses.UDPAddr().String())
}

func TestProbeExchangeRounds(t *testing.T) {
	sessions.Default = sessions.NewRegistry()
	server, cam := listenUDP(t), listenUDP(t)
	camAddr := cam.LocalAddr().(*net.UDPAddr)

	ses := camSession(t, "dev1")

	reply := marshalJSON(t, v720.ProbeReply{Code: v720.CodeProbeReply, Status: 1})

	for round := 1; round <= sessions.ProbeRounds; round++ {
		handleDatagram(server, reply, camAddr)

		code, _ := readJSONCode(t, cam)
		require.Equal(t, v720.CodeProbeRequest, code)

		if round < sessions.ProbeRounds {
			require.Equal(t, sessions.StateProbe, ses.State())
		}
	}

	require.Equal(t, sessions.StateStreaming, ses.State())
}

func TestFragmentConfirmFlow(t *testing.T) {
	sessions.Default = sessions.NewRegistry()
	server, cam := listenUDP(t), listenUDP(t)
	camAddr := cam.LocalAddr().(*net.UDPAddr)

	camSession(t, "dev1")

	frames, cancel := subscribe("dev1")
	defer cancel()

	send := func(pkgID uint32, flag byte, data string) {
		msg := &v720.Message{
			Header:  v720.Header{Cmd: v720.CmdVideo, Flag: flag, PkgID: pkgID},
			Payload: []byte(data),
		}
		handleDatagram(server, msg.Marshal(), camAddr)
	}

	// first frame ends with an empty confirmation
	send(1, v720.FlagStart, "ff")
	send(2, v720.FlagEnd, "d8")

	_, ids, err := v720.UnmarshalConfirm(readDatagram(t, cam))
	require.NoError(t, err)
	require.Empty(t, ids)

	select {
	case frame := <-frames:
		require.Equal(t, []byte("ffd8"), frame.Data)
	case <-time.After(time.Second):
		t.Fatal("no frame from sink")
	}

	// second frame flushes the accumulated package ids
	send(3, v720.FlagStart, "ff")
	send(4, v720.FlagContinue, "00")
	send(5, v720.FlagEnd, "d9")

	_, ids, err = v720.UnmarshalConfirm(readDatagram(t, cam))
	require.NoError(t, err)
	require.Equal(t, []uint32{3, 4, 5}, ids)

	select {
	case frame := <-frames:
		require.Equal(t, []byte("ff00d9"), frame.Data)
	case <-time.After(time.Second):
		t.Fatal("no frame from sink")
	}
}

func TestFragmentWithoutSession(t *testing.T) {
	sessions.Default = sessions.NewRegistry()
	server, cam := listenUDP(t), listenUDP(t)
	camAddr := cam.LocalAddr().(*net.UDPAddr)

	msg := &v720.Message{
		Header:  v720.Header{Cmd: v720.CmdVideo, Flag: v720.FlagStart, PkgID: 1},
		Payload: []byte("ff"),
	}
	handleDatagram(server, msg.Marshal(), camAddr)

	_ = cam.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := cam.ReadFromUDP(make([]byte, 64))
	require.Error(t, err) // nothing is sent back
}

// A UDP heartbeat is answered with an empty confirmation, not JSON.
func TestUDPHeartbeat(t *testing.T) {
	sessions.Default = sessions.NewRegistry()
	server, cam := listenUDP(t), listenUDP(t)
	camAddr := cam.LocalAddr().(*net.UDPAddr)

	ses := camSession(t, "dev1")

	hb := (&v720.Header{Cmd: v720.CmdHeartbeat}).Marshal()
	handleDatagram(server, hb, camAddr)

	fwd, ids, err := v720.UnmarshalConfirm(readDatagram(t, cam))
	require.NoError(t, err)
	require.Equal(t, v720.DefaultForwardID, fwd)
	require.Empty(t, ids)

	require.Equal(t, camAddr.String(), ses.UDPAddr().String())
}

// The alternative keepalive (cmd 102) gets the code 101 JSON reply.
func TestUDPKeepaliveAlt(t *testing.T) {
	sessions.Default = sessions.NewRegistry()
	server, cam := listenUDP(t), listenUDP(t)
	camAddr := cam.LocalAddr().(*net.UDPAddr)

	camSession(t, "dev1")

	ka := (&v720.Header{Cmd: v720.CmdUDPKeepalive}).Marshal()
	handleDatagram(server, ka, camAddr)

	code, _ := readJSONCode(t, cam)
	require.Equal(t, v720.CodeRegisterAck, code)
}

func TestTruncatedDatagramIgnored(t *testing.T) {
	sessions.Default = sessions.NewRegistry()
	server, cam := listenUDP(t), listenUDP(t)
	camAddr := cam.LocalAddr().(*net.UDPAddr)

	camSession(t, "dev1")

	// header claims more payload than the datagram carries
	h := &v720.Header{Length: 100, Cmd: v720.CmdVideo, Flag: v720.FlagStart, PkgID: 1}
	handleDatagram(server, h.Marshal(), camAddr)

	_ = cam.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := cam.ReadFromUDP(make([]byte, 64))
	require.Error(t, err)
}
