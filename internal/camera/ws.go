package camera

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/naxcloud/naxcloud/internal/sessions"
)

var wsUp = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the dashboard may be served from another host
	},
}

// apiWS streams completed frames for one camera over a websocket, one
// binary message per frame.
func apiWS(w http.ResponseWriter, r *http.Request) {
	src := r.URL.Query().Get("src")
	if sessions.Default.Get(src) == nil {
		http.Error(w, "no such session", http.StatusNotFound)
		return
	}

	ws, err := wsUp.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("[camera] ws upgrade")
		return
	}
	defer ws.Close()

	frames, cancel := subscribe(src)
	defer cancel()

	// drain control frames so pings and close are processed
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case frame := <-frames:
			_ = ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err = ws.WriteMessage(websocket.BinaryMessage, frame.Data); err != nil {
				log.Debug().Err(err).Str("src", src).Msg("[camera] ws write")
				return
			}
		case <-done:
			return
		}
	}
}
