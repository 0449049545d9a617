package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_connections_opened_total",
		Help: "Sockets accepted after a successful handshake.",
	})
	connectionsClosed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_connections_closed_total",
		Help: "Sockets torn down.",
	})
	eventsIn = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_events_in_total",
		Help: "Inbound client events by name.",
	}, []string{"event"})
	eventsOut = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_events_out_total",
		Help: "Frames delivered to sockets by event name.",
	}, []string{"event"})
	droppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_dropped_frames_total",
		Help: "Frames dropped because a socket's send buffer was full.",
	})
)
