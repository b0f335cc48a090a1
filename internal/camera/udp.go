package camera

import (
	"encoding/json"
	"net"
	"strconv"
	"sync/atomic"

	"github.com/naxcloud/naxcloud/internal/metrics"
	"github.com/naxcloud/naxcloud/internal/sessions"
	"github.com/naxcloud/naxcloud/pkg/v720"
)

var udpLocalPort atomic.Uint32

func udpPort() uint16 {
	return uint16(udpLocalPort.Load())
}

func udpListen(address string) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		log.Error().Err(err).Msg("[camera] udp resolve")
		return
	}
	pc, err := net.ListenUDP("udp", addr)
	if err != nil {
		log.Error().Err(err).Msg("[camera] udp listen")
		return
	}

	udpLocalPort.Store(uint32(pc.LocalAddr().(*net.UDPAddr).Port))

	log.Info().Str("addr", address).Msg("[camera] udp listen")

	buf := make([]byte, 8192)
	for {
		n, src, err := pc.ReadFromUDP(buf)
		if err != nil {
			log.Error().Err(err).Msg("[camera] udp read")
			return
		}
		handleDatagram(pc, buf[:n], src)
	}
}

// handleDatagram demuxes one datagram. There is no device id on this
// path, only the source address, so the registry resolves by host.
func handleDatagram(pc *net.UDPConn, b []byte, src *net.UDPAddr) {
	h, err := v720.ParseHeader(b)
	if err != nil || v720.HeaderSize+int(h.Length) > len(b) {
		metrics.Malformed.Inc()
		log.Debug().Stringer("addr", src).Int("len", len(b)).Msg("[camera] bad datagram")
		return
	}
	payload := b[v720.HeaderSize : v720.HeaderSize+int(h.Length)]

	ses := sessions.Default.GetByAddr(src)

	switch h.Cmd {
	case v720.CmdJSON:
		handleProbe(pc, ses, payload, src)

	case v720.CmdVideo, v720.CmdAudio:
		if ses == nil {
			log.Debug().Stringer("addr", src).Msg("[camera] fragment without session")
			return
		}
		ses.SetUDPAddr(src)
		metrics.FragmentsReceived.Inc()

		frame, confirm := ses.Fragment(h, payload)
		if confirm != nil {
			if _, err = pc.WriteToUDP(confirm, src); err != nil {
				log.Debug().Err(err).Msg("[camera] confirm")
			} else {
				metrics.ConfirmsSent.Inc()
			}
		}
		if frame != nil {
			metrics.FramesAssembled.Inc()
			publish(ses.DeviceID(), frame)
		}

	case v720.CmdHeartbeat:
		// answered with an empty confirmation, per the vendor capture
		if ses != nil {
			ses.SetUDPAddr(src)
			ses.Touch()
		}
		if _, err = pc.WriteToUDP(v720.MarshalConfirm(v720.DefaultForwardID, nil), src); err != nil {
			log.Debug().Err(err).Stringer("addr", src).Msg("[camera] heartbeat confirm")
		}

	case v720.CmdUDPKeepalive:
		if ses != nil {
			ses.Touch()
		}
		sendJSONTo(pc, src, map[string]int{"code": v720.CodeRegisterAck})

	default:
		log.Debug().Uint16("cmd", h.Cmd).Stringer("addr", src).
			Msg("[camera] unhandled datagram")
	}
}

func handleProbe(pc *net.UDPConn, ses *sessions.Session, payload []byte, src *net.UDPAddr) {
	code, err := v720.Code(payload)
	if err != nil {
		metrics.Malformed.Inc()
		return
	}

	switch code {
	case v720.CodeUDPProbe:
		if ses != nil {
			ses.SetUDPAddr(src)
			ses.Touch()
		}
		sendJSONTo(pc, src, v720.UDPProbeAck{
			Code: v720.CodeUDPProbeAck,
			IP:   advertisedHost(src),
			Port: udpPort(),
		})

	case v720.CodeProbeReply:
		if ses == nil {
			log.Debug().Stringer("addr", src).Msg("[camera] probe reply without session")
			return
		}
		ses.SetUDPAddr(src)
		ses.Touch()
		ses.Event(sessions.EventProbe)

		sendJSONTo(pc, src, v720.ProbeRequest{Code: v720.CodeProbeRequest})

		if round, done := ses.ProbeRound(); done {
			if ses.Event(sessions.EventStream) {
				log.Info().Str("device", ses.DeviceID()).Msg("[camera] streaming")
			}
		} else {
			log.Debug().Int("round", round).Str("device", ses.DeviceID()).
				Msg("[camera] probe exchange")
		}

	default:
		log.Debug().Int("code", code).Stringer("addr", src).
			Msg("[camera] unhandled datagram code")
	}
}

func sendJSONTo(pc *net.UDPConn, dst *net.UDPAddr, v any) {
	b, err := v720.MarshalJSON(v)
	if err != nil {
		log.Debug().Err(err).Msg("[camera] marshal")
		return
	}
	if _, err = pc.WriteToUDP(b, dst); err != nil {
		log.Debug().Err(err).Stringer("addr", dst).Msg("[camera] udp write")
	}
}

func unmarshalJSON(payload []byte, v any) error {
	return json.Unmarshal(v720.TrimPayload(payload), v)
}

// advertisedHost is the address cameras should stream to: the configured
// one, or the local interface address that routes to the camera.
func advertisedHost(remote net.Addr) string {
	if cfg.Mod.Host != "" || remote == nil {
		return cfg.Mod.Host
	}
	conn, err := net.Dial("udp", remote.String())
	if err != nil {
		return ""
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}

func joinHostPort(host string, port uint16) string {
	return net.JoinHostPort(host, strconv.Itoa(int(port)))
}
