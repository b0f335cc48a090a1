package camera

import (
	"errors"
	"net"

	"github.com/naxcloud/naxcloud/internal/metrics"
	"github.com/naxcloud/naxcloud/internal/sessions"
	"github.com/naxcloud/naxcloud/pkg/v720"
)

func tcpListen(address string) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		log.Error().Err(err).Msg("[camera] listen")
		return
	}

	log.Info().Str("addr", address).Msg("[camera] listen")

	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Error().Err(err).Msg("[camera] accept")
			return
		}
		go handleConn(conn)
	}
}

// handleConn owns one control connection. The session appears only after
// the camera sends its code 100 registration; everything before that is
// answered on the bare connection.
func handleConn(conn net.Conn) {
	var ses *sessions.Session

	// an I/O failure disconnects the session but keeps it in the table;
	// the janitor evicts it after the retain window
	defer func() {
		if ses != nil {
			ses.Close()
		} else {
			_ = conn.Close()
		}
	}()

	var buf []byte
	rd := make([]byte, 4096)
	var malformed int

	for {
		n, err := conn.Read(rd)
		if err != nil {
			log.Debug().Err(err).Stringer("addr", conn.RemoteAddr()).Msg("[camera] read")
			return
		}
		buf = append(buf, rd[:n]...)

		for len(buf) > 0 {
			msg, consumed, err := v720.Unmarshal(buf)
			if errors.Is(err, v720.ErrNeedMore) {
				break
			}
			if err != nil {
				metrics.Malformed.Inc()
				if malformed++; malformed > cfg.Mod.MaxErrors {
					log.Warn().Stringer("addr", conn.RemoteAddr()).
						Msg("[camera] too many malformed messages")
					return
				}
				buf = buf[1:] // resync one byte at a time
				continue
			}
			buf = buf[consumed:]
			ses = handleMessage(conn, ses, msg)
		}
	}
}

func handleMessage(conn net.Conn, ses *sessions.Session, msg *v720.Message) *sessions.Session {
	switch msg.Header.Cmd {
	case v720.CmdJSON:
		return handleControl(conn, ses, msg.Payload)

	case v720.CmdKeepalive:
		if ses != nil {
			ses.Touch()
		}
		if _, err := conn.Write(v720.KeepaliveAck); err != nil {
			log.Debug().Err(err).Msg("[camera] keepalive ack")
		}

	case v720.CmdHeartbeat:
		if ses != nil {
			ses.Touch()
		}

	default:
		log.Debug().Uint16("cmd", msg.Header.Cmd).Msg("[camera] unhandled command")
	}
	return ses
}

func handleControl(conn net.Conn, ses *sessions.Session, payload []byte) *sessions.Session {
	code, err := v720.Code(payload)
	if err != nil {
		metrics.Malformed.Inc()
		log.Debug().Err(err).Msg("[camera] bad json payload")
		return ses
	}

	if ses != nil {
		ses.Touch()
	}

	switch code {
	case v720.CodeRegister:
		var reg v720.Registration
		if err = unmarshalJSON(payload, &reg); err != nil {
			break
		}
		if ses != nil && ses.DeviceID() == reg.UID {
			// repeat registration on the same connection, keep the session
			err = reRegister(ses)
			break
		}
		return register(conn, &reg)

	case v720.CodeNatComplete:
		if ses == nil {
			break
		}
		var nat v720.NatComplete
		if err = unmarshalJSON(payload, &nat); err != nil {
			break
		}
		natComplete(ses, &nat)

	case v720.CodeSnapshot:
		if ses == nil {
			break
		}
		err = sendJSON(ses, v720.SnapshotAck{Code: v720.CodeSnapshotAck, Status: 200})

	case v720.CodeForward:
		if ses == nil {
			break
		}
		err = forwardEcho(ses, payload)

	case v720.CodeDeviceStatus:
		// status ack, liveness already updated

	default:
		log.Debug().Int("code", code).Msg("[camera] unhandled control code")
	}

	if err != nil {
		log.Debug().Err(err).Int("code", code).Msg("[camera] control")
	}
	return ses
}

// register installs the session and starts NAT traversal: the fixed
// 48-byte ack first, then the code 11 request pointing the camera at our
// datagram listener.
func register(conn net.Conn, reg *v720.Registration) *sessions.Session {
	log.Info().Str("device", reg.UID).Stringer("addr", conn.RemoteAddr()).
		Msg("[camera] register")

	ses := sessions.Default.Upsert(reg.UID, conn, conn.RemoteAddr())
	ses.SetToken(reg.Token)
	ses.Event(sessions.EventRegister)

	if err := ses.Write(v720.RegistrationAck); err != nil {
		log.Debug().Err(err).Msg("[camera] registration ack")
		return ses
	}

	if err := sendNatRequest(ses, conn.RemoteAddr()); err != nil {
		log.Debug().Err(err).Msg("[camera] nat request")
		return ses
	}
	ses.Event(sessions.EventNatRequest)
	return ses
}

func reRegister(ses *sessions.Session) error {
	ses.Event(sessions.EventRegister)
	if err := ses.Write(v720.RegistrationAck); err != nil {
		return err
	}
	if err := sendNatRequest(ses, nil); err != nil {
		return err
	}
	ses.Event(sessions.EventNatRequest)
	return nil
}

func sendNatRequest(ses *sessions.Session, remote net.Addr) error {
	return sendJSON(ses, v720.NatRequest{
		Code:       v720.CodeNatRequest,
		CliTarget:  cfg.Mod.Target,
		CliToken:   cfg.Mod.Token,
		CliIP:      "255.255.255.255",
		CliPort:    0,
		CliNatIP:   advertisedHost(remote),
		CliNatPort: udpPort(),
	})
}

// natComplete records the camera's address pair and pushes the streaming
// initiation sequence: device status 53 followed by the 301/298 and 301/4
// forwards, as seen in the vendor traffic.
func natComplete(ses *sessions.Session, nat *v720.NatComplete) {
	ses.SetNatPair(
		joinHostPort(nat.DevIP, nat.DevPort),
		joinHostPort(nat.DevNatIP, nat.DevNatPort),
	)
	if !ses.Event(sessions.EventNatComplete) {
		log.Debug().Str("device", ses.DeviceID()).Str("state", ses.State()).
			Msg("[camera] unexpected nat completion")
		return
	}

	if err := sendJSON(ses, v720.DeviceStatus{Code: v720.CodeDeviceStatus, Status: 1}); err != nil {
		log.Debug().Err(err).Msg("[camera] device status")
		return
	}
	if err := sendForward(ses, v720.ContentRetrans); err != nil {
		log.Debug().Err(err).Msg("[camera] forward")
		return
	}
	if err := sendForward(ses, v720.ContentBaseInfo); err != nil {
		log.Debug().Err(err).Msg("[camera] forward")
	}
}

// forwardEcho advances the 301 handshake. The camera echoes each forward
// back; the base info echo asks for live mode, the live echo for the
// closing stop, and the stop echo means media is about to flow.
func forwardEcho(ses *sessions.Session, payload []byte) error {
	var fwd v720.Forward
	if err := unmarshalJSON(payload, &fwd); err != nil {
		return err
	}
	content, err := v720.Code(fwd.Content)
	if err != nil {
		return err
	}

	switch content {
	case v720.ContentRetrans:
		// no response expected

	case v720.ContentBaseInfo:
		return sendForward(ses, v720.ContentLive)

	case v720.ContentLive:
		return sendForward(ses, v720.ContentStop)

	case v720.ContentStop:
		log.Info().Str("device", ses.DeviceID()).Msg("[camera] initiation complete")

	case v720.ContentSnapshot:
		log.Debug().Str("device", ses.DeviceID()).Msg("[camera] snapshot requested")

	default:
		log.Debug().Int("content", content).Msg("[camera] unhandled forward echo")
	}
	return nil
}

func sendForward(ses *sessions.Session, content int) error {
	fwd, err := v720.NewForward(cfg.Mod.Target, map[string]int{"code": content})
	if err != nil {
		return err
	}
	return sendJSON(ses, fwd)
}

func sendJSON(ses *sessions.Session, v any) error {
	b, err := v720.MarshalJSON(v)
	if err != nil {
		return err
	}
	return ses.Write(b)
}
