// internal/metrics/metrics.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sua-org/nursecall-bus/internal/camera"
)

// Resultado de cada datagrama recebido.
const (
	ResultOK          = "ok"
	ResultDecodeError = "decode_error"
	ResultStoreError  = "store_error"
)

// Metrics guarda os contadores do processo num registry próprio.
type Metrics struct {
	Registry *prometheus.Registry

	Packets         *prometheus.CounterVec
	Events          *prometheus.CounterVec
	Unresolved      *prometheus.CounterVec
	Sessions        *prometheus.CounterVec
	Snapshots       *prometheus.CounterVec
	Frames          *prometheus.CounterVec
	Reconnects      *prometheus.CounterVec
	SubscriberDrops *prometheus.CounterVec
	FeedSkips       *prometheus.CounterVec
	VideoParts      *prometheus.CounterVec
	Handling        prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nursecall_packets_total", Help: "UDP datagrams received, by result.",
		}, []string{"result"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nursecall_events_total", Help: "Events persisted, by event type.",
		}, []string{"event_type"}),
		Unresolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nursecall_unresolved_total", Help: "Events stored without room or bed.",
		}, []string{"entity"}),
		Sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nursecall_call_session_transitions_total", Help: "Call session transitions.",
		}, []string{"transition"}),
		Snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nursecall_snapshots_total", Help: "Alert snapshots uploaded, by result.",
		}, []string{"result"}),
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nursecall_camera_frames_total", Help: "Frames produced per room.",
		}, []string{"room"}),
		Reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nursecall_camera_reconnects_total", Help: "Camera reconnect attempts per room.",
		}, []string{"room"}),
		SubscriberDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nursecall_subscriber_drops_total", Help: "Live feed subscribers dropped, by reason.",
		}, []string{"reason"}),
		FeedSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nursecall_feed_skipped_messages_total", Help: "Live feed messages lost by pinned subscribers (MQTT mirror), by reason.",
		}, []string{"reason"}),
		VideoParts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nursecall_video_parts_total", Help: "MJPEG parts written, by kind.",
		}, []string{"kind"}),
		Handling: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nursecall_packet_handling_seconds",
			Help:    "Time from datagram receipt to broadcast.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	m.Registry.MustRegister(
		m.Packets, m.Events, m.Unresolved, m.Sessions, m.Snapshots,
		m.Frames, m.Reconnects, m.SubscriberDrops, m.FeedSkips, m.VideoParts, m.Handling,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// FrameProduced e Reconnect fazem de Metrics um camera.Observer.
func (m *Metrics) FrameProduced(room string) { m.Frames.WithLabelValues(room).Inc() }
func (m *Metrics) Reconnect(room string)     { m.Reconnects.WithLabelValues(room).Inc() }

func (m *Metrics) SubscriberDropped(reason string) {
	m.SubscriberDrops.WithLabelValues(reason).Inc()
}

func (m *Metrics) MessageSkipped(reason string) {
	m.FeedSkips.WithLabelValues(reason).Inc()
}

func (m *Metrics) VideoPart(placeholder bool) {
	kind := "frame"
	if placeholder {
		kind = "placeholder"
	}
	m.VideoParts.WithLabelValues(kind).Inc()
}

// WatchStreams registra um coletor com o estado atual dos streams.
func (m *Metrics) WatchStreams(list func() []camera.StreamInfo) {
	m.Registry.MustRegister(&streamCollector{list: list})
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

var (
	streamUpDesc = prometheus.NewDesc(
		"nursecall_camera_up", "1 when the stream has produced at least one frame.", []string{"room", "kind"}, nil,
	)
	streamStateDesc = prometheus.NewDesc(
		"nursecall_camera_streams", "Streams grouped by state.", []string{"state"}, nil,
	)
	streamAgeDesc = prometheus.NewDesc(
		"nursecall_camera_last_frame_timestamp_seconds", "Unix time of the latest frame.", []string{"room"}, nil,
	)
)

type streamCollector struct {
	list func() []camera.StreamInfo
}

func (c *streamCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- streamUpDesc
	ch <- streamStateDesc
	ch <- streamAgeDesc
}

func (c *streamCollector) Collect(ch chan<- prometheus.Metric) {
	states := make(map[camera.State]float64)
	for _, st := range c.list() {
		up := 0.0
		if st.HasFrame {
			up = 1.0
		}
		ch <- prometheus.MustNewConstMetric(streamUpDesc, prometheus.GaugeValue, up, st.Room, st.Kind)
		if !st.LastFrameAt.IsZero() {
			ch <- prometheus.MustNewConstMetric(streamAgeDesc, prometheus.GaugeValue,
				float64(st.LastFrameAt.UnixNano())/1e9, st.Room)
		}
		states[st.State]++
	}
	for state, n := range states {
		ch <- prometheus.MustNewConstMetric(streamStateDesc, prometheus.GaugeValue, n, string(state))
	}
}
