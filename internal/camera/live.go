// internal/camera/live.go
package camera

import (
	"context"
	"image"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sua-org/nursecall-bus/internal/drivers"
)

const liveStopWait = 2500 * time.Millisecond

// Opener abre a origem de vídeo; em produção é drivers.Open.
type Opener func(ctx context.Context, source string) (drivers.FrameSource, error)

type LiveOptions struct {
	ReconnectDelay time.Duration
	MaxWidth       int
	Open           Opener
}

// LiveStream lê uma câmera real e reconecta indefinidamente até Stop.
type LiveStream struct {
	roomKey  string
	source   string
	opts     LiveOptions
	logger   *zap.Logger
	observer Observer
	now      func() time.Time

	slot  frameSlot
	state stateBox

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	srcMu sync.Mutex
	src   drivers.FrameSource
}

func NewLiveStream(roomKey, source string, opts LiveOptions, logger *zap.Logger, observer Observer) *LiveStream {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 3 * time.Second
	}
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = 1280
	}
	if opts.Open == nil {
		opts.Open = drivers.Open
	}
	if observer == nil {
		observer = nopObserver{}
	}
	s := &LiveStream{
		roomKey:  roomKey,
		source:   source,
		opts:     opts,
		logger:   logger,
		observer: observer,
		now:      time.Now,
		slot:     frameSlot{quality: liveQuality},
	}
	s.state.set(StateStopped)
	return s
}

func (s *LiveStream) RoomKey() string        { return s.roomKey }
func (s *LiveStream) Kind() string           { return "live" }
func (s *LiveStream) Source() string         { return s.source }
func (s *LiveStream) Frame() []byte          { return s.slot.get() }
func (s *LiveStream) HasFrame() bool         { return s.slot.has() }
func (s *LiveStream) LastFrameAt() time.Time { return s.slot.capturedAt() }
func (s *LiveStream) State() State           { return s.state.get() }

func (s *LiveStream) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		select {
		case <-s.done:
		default:
			return
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state.set(StateStarting)
	go s.run(ctx, s.done)
}

// Stop cancela o loop e fecha a conexão aberta, o que desbloqueia um Next
// em andamento. Espera no máximo liveStopWait.
func (s *LiveStream) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}

	cancel()
	go s.closeSource()

	select {
	case <-done:
	case <-time.After(liveStopWait):
		s.logger.Warn("live stream did not stop in time", zap.String("room", s.roomKey))
	}
	s.state.set(StateStopped)
}

func (s *LiveStream) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	log := s.logger.With(zap.String("room", s.roomKey), zap.String("source", RedactSource(s.source)))
	log.Info("live stream starting")

	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return
		}
		if attempt > 0 {
			s.state.set(StateReconnecting)
			s.observer.Reconnect(s.roomKey)
		}

		src, err := s.opts.Open(ctx, s.source)
		if err != nil {
			log.Warn("camera open failed", zap.Error(err), zap.Duration("retry_in", s.opts.ReconnectDelay))
			if !s.sleep(ctx) {
				return
			}
			continue
		}
		if !s.attach(ctx, src) {
			return
		}

		s.state.set(StateRunning)
		log.Info("camera connected")
		err = s.pump(ctx, src)
		s.detach(src)

		if ctx.Err() != nil {
			return
		}
		log.Warn("camera read failed", zap.Error(err), zap.Duration("retry_in", s.opts.ReconnectDelay))
		if !s.sleep(ctx) {
			return
		}
	}
}

func (s *LiveStream) pump(ctx context.Context, src drivers.FrameSource) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		img, err := src.Next()
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		now := s.now()
		s.slot.put(renderLive(img, s.roomKey, now, s.opts.MaxWidth), now)
		s.observer.FrameProduced(s.roomKey)
	}
}

// attach registra a conexão aberta; se o Stop já aconteceu, fecha e desiste.
func (s *LiveStream) attach(ctx context.Context, src drivers.FrameSource) bool {
	s.srcMu.Lock()
	defer s.srcMu.Unlock()
	if ctx.Err() != nil {
		_ = src.Close()
		return false
	}
	s.src = src
	return true
}

func (s *LiveStream) detach(src drivers.FrameSource) {
	s.srcMu.Lock()
	if s.src == src {
		s.src = nil
	}
	s.srcMu.Unlock()
	_ = src.Close()
}

func (s *LiveStream) closeSource() {
	s.srcMu.Lock()
	src := s.src
	s.src = nil
	s.srcMu.Unlock()
	if src != nil {
		_ = src.Close()
	}
}

func (s *LiveStream) sleep(ctx context.Context) bool {
	select {
	case <-time.After(s.opts.ReconnectDelay):
		return true
	case <-ctx.Done():
		return false
	}
}

// renderLive reduz o frame se preciso e desenha caixa, quarto, horário e o
// indicador LIVE pulsante.
func renderLive(src image.Image, room string, now time.Time, maxWidth int) *image.RGBA {
	img := toRGBA(src, maxWidth)
	w := img.Bounds().Dx()

	label := "Room: " + room
	boxW := textWidth(label, 2) + 20
	if tw := textWidth("0000-00-00 00:00:00", 2) + 20; tw > boxW {
		boxW = tw
	}
	fillRect(img, image.Rect(10, 10, 10+boxW, 80), colorShadow)
	drawText(img, 20, 16, label, colorWhite, 2)
	drawText(img, 20, 48, now.Format("2006-01-02 15:04:05"), colorWhite, 2)

	phase := float64(now.UnixMilli()%1000) / 1000
	radius := 6 + int(math.Round(3*math.Abs(math.Sin(phase*math.Pi))))
	center := image.Pt(w-70, 30)
	fillCircle(img, center, radius, colorRed)
	drawText(img, center.X+14, center.Y-10, "LIVE", colorRed, 2)
	return img
}
