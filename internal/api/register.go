package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/naxcloud/naxcloud/internal/app"
	"github.com/naxcloud/naxcloud/pkg/v720"
)

// Vendor bootstrap endpoints. Fresh cameras resolve the vendor domain to
// this server and expect these exact paths before they will open the
// stream transport.
func initRegister() {
	var cfg struct {
		Mod struct {
			Domain  string `yaml:"domain"`
			Host    string `yaml:"host"`
			TCPPort uint16 `yaml:"tcp_port"`
			Pwd     string `yaml:"pwd"`
		} `yaml:"register"`
	}

	cfg.Mod.Domain = "v720.naxclow.com"
	cfg.Mod.TCPPort = 6123
	cfg.Mod.Pwd = "deadbeef"

	app.LoadConfig(&cfg)

	register = cfg.Mod

	HandleFunc("/app/api/ApiServer/getA9ConfCheck", confCheckHandler)
	HandleFunc("/app/api/ApiSysDevicesBatch/registerDevices", batchRegisterHandler)
	HandleFunc("/app/api/ApiSysDevicesBatch/confirm", batchConfirmHandler)
}

var register struct {
	Domain  string `yaml:"domain"`
	Host    string `yaml:"host"`
	TCPPort uint16 `yaml:"tcp_port"`
	Pwd     string `yaml:"pwd"`
}

// confCheckHandler answers the camera's "which server do I stream to"
// question with our own address instead of the vendor cloud.
func confCheckHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	uid := query.Get("devicesCode")

	log.Debug().Str("uid", uid).Str("random", query.Get("random")).
		Msg("[api] conf check")

	host := register.Host
	if host == "" {
		host = localHost(r)
	}

	ResponseJSON(w, v720.ConfigCheckResponse{
		Code:    200,
		Message: "OK",
		Data: v720.ConfigData{
			TCPPort:  register.TCPPort,
			UID:      uid,
			IsBind:   "8",
			Domain:   register.Domain,
			Host:     host,
			CurrTime: strconv.FormatInt(time.Now().Unix(), 10),
			PWD:      register.Pwd,
		},
	})
}

// batchRegisterHandler assigns a device id to an unprovisioned camera,
// derived from the camera's random the same way the cloud does.
func batchRegisterHandler(w http.ResponseWriter, r *http.Request) {
	random := r.URL.Query().Get("random")
	if len(random) < 4 {
		http.Error(w, "bad random", http.StatusBadRequest)
		return
	}

	uid := "0800c001" + strings.ToUpper(random[:4])

	log.Info().Str("uid", uid).Msg("[api] batch register")

	ResponseJSON(w, map[string]any{
		"code": 200, "message": "OK", "data": uid,
	})
}

func batchConfirmHandler(w http.ResponseWriter, r *http.Request) {
	log.Debug().Str("uid", r.URL.Query().Get("devicesCode")).
		Msg("[api] batch confirm")

	ResponseJSON(w, map[string]any{
		"code": 200, "message": "OK", "data": nil,
	})
}

// localHost is the server address the camera reached us on, which is the
// address it can stream to.
func localHost(r *http.Request) string {
	if addr, ok := r.Context().Value(http.LocalAddrContextKey).(net.Addr); ok {
		if host, _, err := net.SplitHostPort(addr.String()); err == nil {
			return host
		}
	}
	return ""
}
