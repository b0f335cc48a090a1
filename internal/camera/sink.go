package camera

import (
	"sync"

	"github.com/naxcloud/naxcloud/internal/metrics"
	"github.com/naxcloud/naxcloud/pkg/v720"
)

// The sink decouples the datagram receive loop from frame consumers.
// Publishing never blocks: a full buffer drops the frame and counts it,
// a stalled websocket must not stall the camera.

type sinkFrame struct {
	deviceID string
	frame    *v720.Frame
}

var sink struct {
	mu   sync.Mutex
	subs map[chan *v720.Frame]string // subscriber -> device id
	ch   chan sinkFrame
}

func initSink(size int) {
	sink.subs = map[chan *v720.Frame]string{}
	sink.ch = make(chan sinkFrame, size)
	go fanout()
}

func publish(deviceID string, frame *v720.Frame) {
	select {
	case sink.ch <- sinkFrame{deviceID, frame}:
	default:
		metrics.FramesDropped.Inc()
	}
}

func fanout() {
	for msg := range sink.ch {
		sink.mu.Lock()
		for sub, deviceID := range sink.subs {
			if deviceID != msg.deviceID {
				continue
			}
			select {
			case sub <- msg.frame:
			default:
				metrics.FramesDropped.Inc()
			}
		}
		sink.mu.Unlock()
	}
}

// subscribe returns a channel of completed frames for one device and a
// cancel func. The channel is never closed, cancel just detaches it.
func subscribe(deviceID string) (<-chan *v720.Frame, func()) {
	sub := make(chan *v720.Frame, 8)

	sink.mu.Lock()
	sink.subs[sub] = deviceID
	sink.mu.Unlock()

	return sub, func() {
		sink.mu.Lock()
		delete(sink.subs, sub)
		sink.mu.Unlock()
	}
}
