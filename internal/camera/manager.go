// internal/camera/manager.go
package camera

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sua-org/nursecall-bus/internal/drivers"
)

// SimulatedScheme força o gerador sintético para um quarto mesmo com câmeras reais ativas.
const SimulatedScheme = "demo"

var ErrEmptyRoom = errors.New("camera: empty room key")

type Options struct {
	// Simulate troca todas as câmeras pelo gerador sintético.
	Simulate       bool
	ReconnectDelay time.Duration
	MaxWidth       int
	// Opener substitui drivers.Open (testes).
	Opener   Opener
	Observer Observer
}

// StreamInfo é o resumo exposto em /api/cameras e no status MQTT.
type StreamInfo struct {
	Room        string    `json:"room"`
	Kind        string    `json:"kind"`
	Source      string    `json:"source,omitempty"`
	State       State     `json:"state"`
	HasFrame    bool      `json:"has_frame"`
	LastFrameAt time.Time `json:"last_frame_at,omitempty"`
}

// Manager mantém um stream por quarto. O mapa tem seu próprio lock; cada
// stream protege o seu frame separadamente.
type Manager struct {
	opts   Options
	logger *zap.Logger

	mu      sync.Mutex
	streams map[string]Stream
	closed  bool
}

func NewManager(opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &Manager{
		opts:    opts,
		logger:  logger.Named("camera"),
		streams: make(map[string]Stream),
	}
}

// Add cria e inicia o stream do quarto. Se já existe um para a chave, não faz nada.
func (m *Manager) Add(room, source string) error {
	key := strings.TrimSpace(room)
	if key == "" {
		return ErrEmptyRoom
	}
	source = strings.TrimSpace(source)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("camera: manager closed")
	}
	if _, ok := m.streams[key]; ok {
		return nil
	}

	var s Stream
	if m.opts.Simulate || source == "" || drivers.SchemeOf(source) == SimulatedScheme {
		s = NewSimulatedStream(key, m.logger, m.opts.Observer)
	} else {
		if m.opts.Opener == nil {
			if _, err := drivers.DriverFor(source); err != nil {
				return fmt.Errorf("camera %q: %w", key, err)
			}
		}
		s = NewLiveStream(key, source, LiveOptions{
			ReconnectDelay: m.opts.ReconnectDelay,
			MaxWidth:       m.opts.MaxWidth,
			Open:           m.opts.Opener,
		}, m.logger, m.opts.Observer)
	}

	m.streams[key] = s
	s.Start()
	m.logger.Info("camera stream added",
		zap.String("room", key),
		zap.String("kind", s.Kind()),
		zap.String("source", RedactSource(source)))
	return nil
}

// Remove para e descarta o stream. Devolve false se não existia.
func (m *Manager) Remove(room string) bool {
	key := strings.TrimSpace(room)
	m.mu.Lock()
	s, ok := m.streams[key]
	delete(m.streams, key)
	m.mu.Unlock()
	if !ok {
		return false
	}
	s.Stop()
	m.logger.Info("camera stream removed", zap.String("room", key))
	return true
}

// Replace troca a origem de um quarto (ex.: /info atualizado no MQTT).
func (m *Manager) Replace(room, source string) error {
	key := strings.TrimSpace(room)
	m.mu.Lock()
	cur, ok := m.streams[key]
	m.mu.Unlock()
	if ok {
		if ls, live := cur.(*LiveStream); live && ls.Source() == strings.TrimSpace(source) {
			return nil
		}
		m.Remove(key)
	}
	return m.Add(key, source)
}

func (m *Manager) get(room string) (Stream, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[strings.TrimSpace(room)]
	return s, ok
}

func (m *Manager) Has(room string) bool {
	_, ok := m.get(room)
	return ok
}

// Frame devolve o JPEG mais recente do quarto, ou nil.
func (m *Manager) Frame(room string) []byte {
	s, ok := m.get(room)
	if !ok {
		return nil
	}
	return s.Frame()
}

func (m *Manager) HasFrame(room string) bool {
	s, ok := m.get(room)
	return ok && s.HasFrame()
}

func (m *Manager) Rooms() []string {
	m.mu.Lock()
	out := make([]string, 0, len(m.streams))
	for k := range m.streams {
		out = append(out, k)
	}
	m.mu.Unlock()
	sort.Strings(out)
	return out
}

func (m *Manager) Streams() []StreamInfo {
	m.mu.Lock()
	list := make([]Stream, 0, len(m.streams))
	for _, s := range m.streams {
		list = append(list, s)
	}
	m.mu.Unlock()

	out := make([]StreamInfo, 0, len(list))
	for _, s := range list {
		info := StreamInfo{
			Room:        s.RoomKey(),
			Kind:        s.Kind(),
			State:       s.State(),
			HasFrame:    s.HasFrame(),
			LastFrameAt: s.LastFrameAt(),
		}
		if ls, ok := s.(*LiveStream); ok {
			info.Source = RedactSource(ls.Source())
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Room < out[j].Room })
	return out
}

// Shutdown para todos os streams em paralelo. Add depois disso falha.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	list := make([]Stream, 0, len(m.streams))
	for _, s := range m.streams {
		list = append(list, s)
	}
	m.streams = make(map[string]Stream)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range list {
		wg.Add(1)
		go func(s Stream) {
			defer wg.Done()
			s.Stop()
		}(s)
	}
	wg.Wait()
	m.logger.Info("camera streams stopped", zap.Int("count", len(list)))
}

// RedactSource esconde a senha de URLs com credenciais.
func RedactSource(source string) string {
	u, err := url.Parse(source)
	if err != nil || u.User == nil {
		return source
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
