package sessions

import (
	"net/http"

	"github.com/naxcloud/naxcloud/internal/api"
)

func apiSessions(w http.ResponseWriter, r *http.Request) {
	api.ResponseJSON(w, Default.List())
}

// apiFrame serves the latest complete video frame of one camera. The
// device streams MJPEG, so a frame is a ready-to-serve JPEG.
func apiFrame(w http.ResponseWriter, r *http.Request) {
	src := r.URL.Query().Get("src")
	s := Default.Get(src)
	if s == nil {
		http.Error(w, "no such session", http.StatusNotFound)
		return
	}

	frame := s.LatestFrame()
	if frame == nil {
		http.Error(w, "no frame yet", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	_, _ = w.Write(frame)
}
