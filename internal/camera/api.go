package camera

import (
	"net/http"

	"github.com/naxcloud/naxcloud/internal/api"
	"github.com/naxcloud/naxcloud/internal/sessions"
	"github.com/naxcloud/naxcloud/pkg/v720"
)

// On-demand camera control. The NAT-completion sequence starts the feed
// automatically; these endpoints let the dashboard drive the same 301
// forwards by hand.

func sessionFromQuery(w http.ResponseWriter, r *http.Request) *sessions.Session {
	ses := sessions.Default.Get(r.URL.Query().Get("src"))
	if ses == nil {
		http.Error(w, "no such session", http.StatusNotFound)
	}
	return ses
}

func controlHandler(content int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ses := sessionFromQuery(w, r)
		if ses == nil {
			return
		}
		if err := sendForward(ses, content); err != nil {
			api.Error(w, err)
			return
		}
		api.ResponseJSON(w, map[string]any{
			"code": 200, "device_id": ses.DeviceID(),
		})
	}
}

// apiSnapshot asks the camera for a still image (forward 301/5). The
// result arrives as a regular frame, readable from /api/frame.jpeg.
func apiSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "", http.StatusBadRequest)
		return
	}
	controlHandler(v720.ContentSnapshot)(w, r)
}
