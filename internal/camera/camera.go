// Package camera runs the two protocol listeners the V720 firmware talks
// to: a TCP control transport and a UDP media transport, both on port
// 6123 by the vendor's convention.
package camera

import (
	"github.com/naxcloud/naxcloud/internal/api"
	"github.com/naxcloud/naxcloud/internal/app"
	"github.com/naxcloud/naxcloud/pkg/v720"
	"github.com/rs/zerolog"
)

var log zerolog.Logger

var cfg struct {
	Mod struct {
		Listen    string `yaml:"listen"`     // TCP control transport
		UDPListen string `yaml:"udp_listen"` // UDP media transport
		Host      string `yaml:"host"`       // address advertised to cameras, autodetected when empty
		Target    string `yaml:"target"`     // forward target id, from traffic capture
		Token     string `yaml:"token"`      // client token, from traffic capture
		SinkSize  int    `yaml:"sink_size"`  // frame fanout buffer
		MaxErrors int    `yaml:"max_errors"` // malformed messages before a connection is dropped
	} `yaml:"camera"`
}

func Init() {
	cfg.Mod.Listen = ":6123"
	cfg.Mod.UDPListen = ":6123"
	cfg.Mod.Target = "00112233445566778899aabbccddeeff"
	cfg.Mod.Token = "deadc0de"
	cfg.Mod.SinkSize = 64
	cfg.Mod.MaxErrors = 8

	app.LoadConfig(&cfg)

	log = app.GetLogger("camera")

	initSink(cfg.Mod.SinkSize)

	api.HandleFunc("api/ws", apiWS)
	api.HandleFunc("api/snapshot", apiSnapshot)
	api.HandleFunc("api/streaming/start", controlHandler(v720.ContentLive))
	api.HandleFunc("api/streaming/stop", controlHandler(v720.ContentStop))

	go tcpListen(cfg.Mod.Listen)
	go udpListen(cfg.Mod.UDPListen)
}
