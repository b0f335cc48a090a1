package v720

import "encoding/json"

// Control plane payloads. Field names follow the device firmware, they are
// part of the wire format.

// Registration - code 100, camera -> server after the HTTP config check.
type Registration struct {
	Code   int    `json:"code"`
	UID    string `json:"uid"`
	Token  string `json:"token"`
	Domain string `json:"domain"`
}

// NatRequest - code 11, server -> camera over the stream transport.
// Announces where the server wants to receive datagrams.
type NatRequest struct {
	Code       int    `json:"code"`
	CliTarget  string `json:"cliTarget"`
	CliToken   string `json:"cliToken"`
	CliIP      string `json:"cliIp"`
	CliPort    uint16 `json:"cliPort"`
	CliNatIP   string `json:"cliNatIp"`
	CliNatPort uint16 `json:"cliNatPort"`
}

// NatComplete - code 12, camera -> server over the stream transport.
// Reports the camera's own and NAT-observed address pair.
type NatComplete struct {
	Code       int    `json:"code"`
	DevIP      string `json:"devIp"`
	DevPort    uint16 `json:"devPort"`
	DevNatIP   string `json:"devNatIp"`
	DevNatPort uint16 `json:"devNatPort"`
	CliTarget  string `json:"cliTarget"`
	CliToken   string `json:"cliToken"`
}

// UDPProbe - code 20, camera -> server over the datagram transport.
type UDPProbe struct {
	Code int `json:"code"`
}

// UDPProbeAck - code 21, tells the camera which address and port to
// stream to.
type UDPProbeAck struct {
	Code int    `json:"code"`
	IP   string `json:"ip"`
	Port uint16 `json:"port"`
}

// ProbeRequest - code 50, server -> camera reachability probe.
type ProbeRequest struct {
	Code int `json:"code"`
}

// ProbeReply - code 51, camera -> server.
type ProbeReply struct {
	Code      int    `json:"code"`
	DevTarget string `json:"devTarget"`
	Status    int    `json:"status"`
}

// DeviceStatus - code 53, server -> camera before the 301 sequence.
type DeviceStatus struct {
	Code   int `json:"code"`
	Status int `json:"status"`
}

// Snapshot - code 201, camera -> server on the stream transport.
type Snapshot struct {
	Code int    `json:"code"`
	UID  string `json:"uid"`
}

// SnapshotAck - code 202.
type SnapshotAck struct {
	Code   int `json:"code"`
	Status int `json:"status"`
}

// Forward - code 301 envelope relayed to the device firmware. Content
// codes were inferred from traffic capture (see ContentLive and friends).
type Forward struct {
	Code    int             `json:"code"`
	Target  string          `json:"target"`
	Content json.RawMessage `json:"content"`
}

func NewForward(target string, content any) (*Forward, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	return &Forward{Code: CodeForward, Target: target, Content: raw}, nil
}

// ConfigCheckRequest is the body of the vendor HTTP registration endpoint
// the camera calls before opening the stream transport.
type ConfigCheckRequest struct {
	DevicesCode string `json:"devicesCode"`
	Random      string `json:"random"`
	Token       string `json:"token"`
}

type ConfigCheckResponse struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    ConfigData `json:"data"`
}

type ConfigData struct {
	TCPPort  uint16 `json:"tcpPort"`
	UID      string `json:"uid"`
	IsBind   string `json:"isBind"`
	Domain   string `json:"domain"`
	Host     string `json:"host"`
	CurrTime string `json:"currTime"`
	PWD      string `json:"pwd"`
	Version  string `json:"version,omitempty"`
}
