// internal/supervisor/supervisor.go
package supervisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/sua-org/nursecall-bus/internal/camera"
	"github.com/sua-org/nursecall-bus/internal/core"
	"github.com/sua-org/nursecall-bus/internal/mqttclient"
	"github.com/sua-org/nursecall-bus/internal/store"
)

// Broker é o que o supervisor usa do cliente MQTT.
type Broker interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handler mqttclient.Handler) error
}

// Cameras é o camera.Manager visto pelo supervisor.
type Cameras interface {
	Add(room, source string) error
	Remove(room string) bool
	Replace(room, source string) error
	Streams() []camera.StreamInfo
}

type CameraLister interface {
	ListActiveCameras(ctx context.Context) ([]store.CameraSource, error)
}

// Supervisor liga o cadastro de câmeras (banco na partida, tópico /info em
// tempo real) ao camera.Manager e publica o status periódico no MQTT.
type Supervisor struct {
	mqtt      Broker
	cams      Cameras
	baseTopic string
	logger    *zap.Logger

	statusInterval time.Duration
	proc           *process.Process
	// Subscribers informa quantos espectadores do feed estão conectados (opcional).
	Subscribers func() int

	mu      sync.Mutex
	cameras map[string]core.CameraInfo
}

// New aceita broker nil (MQTT desligado): nesse caso só o Bootstrap faz efeito.
func New(broker Broker, cams Cameras, baseTopic string, statusInterval time.Duration, logger *zap.Logger) *Supervisor {
	var procHandle *process.Process
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		procHandle = p
	}
	return &Supervisor{
		mqtt:           broker,
		cams:           cams,
		baseTopic:      strings.TrimSuffix(baseTopic, "/"),
		logger:         logger.Named("supervisor"),
		statusInterval: statusInterval,
		proc:           procHandle,
		cameras:        make(map[string]core.CameraInfo),
	}
}

// Bootstrap carrega as câmeras ativas do banco e inicia um stream por quarto.
func (s *Supervisor) Bootstrap(ctx context.Context, lister CameraLister) (int, error) {
	sources, err := lister.ListActiveCameras(ctx)
	if err != nil {
		return 0, fmt.Errorf("bootstrap cameras: %w", err)
	}

	started := 0
	for _, src := range sources {
		info := core.CameraInfo{
			Room:     strings.TrimSpace(src.Room.DisplayName()),
			Name:     src.Camera.CameraName,
			Source:   src.Camera.RTSPURL,
			IP:       src.Camera.IPAddress,
			Port:     src.Camera.Port,
			Username: src.Camera.Username,
			Password: src.Camera.Password,
			Enabled:  true,
		}
		if info.Room == "" {
			continue
		}
		if err := s.cams.Add(info.Room, info.StreamURL()); err != nil {
			s.logger.Warn("failed to start camera", zap.Uint("camera_id", src.Camera.ID), zap.Error(err))
			continue
		}
		s.upsertCameraInfo(info)
		started++
	}
	s.logger.Info("cameras loaded from database", zap.Int("started", started), zap.Int("configured", len(sources)))
	return started, nil
}

// Run assina o tópico /info e roda o loop de status até ctx acabar.
func (s *Supervisor) Run(ctx context.Context) error {
	if s.mqtt == nil {
		<-ctx.Done()
		return nil
	}

	infoTopic := fmt.Sprintf("%s/cameras/+/info", s.baseTopic)
	s.logger.Info("subscribing to info topic", zap.String("topic", infoTopic))
	if err := s.mqtt.Subscribe(infoTopic, 1, s.handleInfoMessage); err != nil {
		return fmt.Errorf("subscribe error: %w", err)
	}
	if s.statusInterval > 0 {
		go s.runStatusLoop(ctx)
	}

	<-ctx.Done()
	s.logger.Info("context canceled, supervisor stopping")
	return nil
}

// handleInfoMessage trata {base}/cameras/{quarto}/info. Payload vazio (ou
// "null") remove a câmera; enabled=false também.
func (s *Supervisor) handleInfoMessage(topic string, payload []byte) {
	room, ok := s.roomFromTopic(topic)
	if !ok {
		s.logger.Warn("invalid info topic", zap.String("topic", topic))
		return
	}

	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		s.logger.Info("camera removed via tombstone", zap.String("room", room))
		s.cleanupCamera(room)
		return
	}

	var info core.CameraInfo
	if err := json.Unmarshal(trimmed, &info); err != nil {
		s.logger.Warn("invalid JSON on info topic", zap.String("topic", topic), zap.Error(err))
		return
	}
	info.Room = room

	if !info.Enabled {
		s.logger.Info("camera disabled via info topic", zap.String("room", room))
		s.cleanupCamera(room)
		return
	}

	source := info.StreamURL()
	if source == "" {
		s.logger.Warn("camera info without source or ip", zap.String("room", room))
		return
	}
	if err := s.cams.Replace(room, source); err != nil {
		s.logger.Warn("failed to start camera", zap.String("room", room), zap.Error(err))
		return
	}
	s.upsertCameraInfo(info)
}

func (s *Supervisor) roomFromTopic(topic string) (string, bool) {
	prefix := s.baseTopic + "/cameras/"
	if !strings.HasPrefix(topic, prefix) || !strings.HasSuffix(topic, "/info") {
		return "", false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(topic, prefix), "/info")
	if raw == "" || strings.Contains(raw, "/") {
		return "", false
	}
	room, err := url.PathUnescape(raw)
	if err != nil {
		return "", false
	}
	room = strings.TrimSpace(room)
	return room, room != ""
}

func (s *Supervisor) cleanupCamera(room string) {
	s.cams.Remove(room)
	s.mu.Lock()
	delete(s.cameras, room)
	s.mu.Unlock()
}

func (s *Supervisor) upsertCameraInfo(info core.CameraInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cameras[info.Room] = info
}

// Cameras devolve o cadastro conhecido (sem senha).
func (s *Supervisor) Cameras() []core.CameraInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.CameraInfo, 0, len(s.cameras))
	for _, info := range s.cameras {
		info.Password = ""
		out = append(out, info)
	}
	return out
}

func (s *Supervisor) runStatusLoop(ctx context.Context) {
	hostname, _ := os.Hostname()
	ticker := time.NewTicker(s.statusInterval)
	defer ticker.Stop()

	s.logger.Info("status loop started", zap.Duration("interval", s.statusInterval))
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			s.publishStatuses(hostname, t)
		}
	}
}

func (s *Supervisor) publishStatuses(hostname string, now time.Time) {
	streams := s.cams.Streams()

	live := 0
	for _, st := range streams {
		if st.HasFrame {
			live++
		}
		if err := s.publishCameraStatus(st, now); err != nil {
			s.logger.Warn("camera status publish failed", zap.String("room", st.Room), zap.Error(err))
		}
	}
	if err := s.publishCollectorStatus(hostname, len(streams), live, now); err != nil {
		s.logger.Warn("collector status publish failed", zap.Error(err))
	}
}

func (s *Supervisor) publishCameraStatus(st camera.StreamInfo, now time.Time) error {
	payload := map[string]interface{}{
		"room":      st.Room,
		"kind":      st.Kind,
		"status":    string(st.State),
		"live":      st.HasFrame,
		"timestamp": now.UTC().Format(time.RFC3339),
	}
	if !st.LastFrameAt.IsZero() {
		payload["last_frame_at"] = st.LastFrameAt.UTC().Format(time.RFC3339)
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal camera status: %w", err)
	}
	topic := s.cameraStatusTopic(st.Room)
	if err := s.mqtt.Publish(topic, 1, true, b); err != nil {
		return fmt.Errorf("publish camera status to %s: %w", topic, err)
	}
	return nil
}

func (s *Supervisor) publishCollectorStatus(hostname string, cameras, live int, now time.Time) error {
	var (
		cpuPercent  float64
		memPercent  float64
		memRSSBytes uint64
	)
	if s.proc != nil {
		if cpu, err := s.proc.CPUPercent(); err == nil {
			cpuPercent = cpu
		}
		if memInfo, err := s.proc.MemoryInfo(); err == nil {
			memRSSBytes = memInfo.RSS
		}
		if memP, err := s.proc.MemoryPercent(); err == nil {
			memPercent = float64(memP)
		}
	}

	payload := map[string]interface{}{
		"collector":        "nursecall-bus",
		"status":           "online",
		"timestamp":        now.UTC().Format(time.RFC3339),
		"hostname":         hostname,
		"cameras":          cameras,
		"cameras_live":     live,
		"cpu_percent":      cpuPercent,
		"memory_percent":   memPercent,
		"memory_rss_bytes": memRSSBytes,
	}
	if s.Subscribers != nil {
		payload["subscribers"] = s.Subscribers()
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal collector status: %w", err)
	}
	topic := s.baseTopic + "/collector/status"
	if err := s.mqtt.Publish(topic, 1, true, b); err != nil {
		return fmt.Errorf("publish collector status to %s: %w", topic, err)
	}
	return nil
}

func (s *Supervisor) cameraStatusTopic(room string) string {
	return fmt.Sprintf("%s/cameras/%s/status", s.baseTopic, TopicSegment(room))
}

// TopicSegment escapa o nome do quarto para um nível de tópico. PathEscape
// já cuida de "/" e "#", mas deixa "+", que também é curinga no MQTT.
func TopicSegment(room string) string {
	return strings.ReplaceAll(url.PathEscape(room), "+", "%2B")
}

// EventsTopic é onde o Sink MQTT publica o feed de eventos.
func EventsTopic(baseTopic string) string {
	return strings.TrimSuffix(baseTopic, "/") + "/events"
}
