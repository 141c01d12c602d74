// internal/camera/simulated.go
package camera

import (
	"context"
	"image"
	"image/color"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	simWidth    = 640
	simHeight   = 480
	simInterval = 33 * time.Millisecond
	simStopWait = 1500 * time.Millisecond
)

// SimulatedStream gera um quadro sintético (~30 fps) para quartos sem câmera real.
type SimulatedStream struct {
	roomKey  string
	interval time.Duration
	logger   *zap.Logger
	observer Observer
	now      func() time.Time

	slot  frameSlot
	state stateBox

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSimulatedStream(roomKey string, logger *zap.Logger, observer Observer) *SimulatedStream {
	if observer == nil {
		observer = nopObserver{}
	}
	s := &SimulatedStream{
		roomKey:  roomKey,
		interval: simInterval,
		logger:   logger,
		observer: observer,
		now:      time.Now,
		slot:     frameSlot{quality: simQuality},
	}
	s.state.set(StateStopped)
	return s
}

func (s *SimulatedStream) RoomKey() string        { return s.roomKey }
func (s *SimulatedStream) Kind() string           { return "simulated" }
func (s *SimulatedStream) Frame() []byte          { return s.slot.get() }
func (s *SimulatedStream) HasFrame() bool         { return s.slot.has() }
func (s *SimulatedStream) LastFrameAt() time.Time { return s.slot.capturedAt() }
func (s *SimulatedStream) State() State           { return s.state.get() }

func (s *SimulatedStream) Start() {
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

func (s *SimulatedStream) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}

	cancel()
	select {
	case <-done:
	case <-time.After(simStopWait):
		s.logger.Warn("simulated stream did not stop in time", zap.String("room", s.roomKey))
	}
	s.state.set(StateStopped)
}

func (s *SimulatedStream) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	noise := make([]byte, simWidth*simHeight)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.state.set(StateRunning)
	s.logger.Info("simulated stream started", zap.String("room", s.roomKey))

	for {
		now := s.now()
		s.slot.put(renderSimulated(s.roomKey, now, rng, noise), now)
		s.observer.FrameProduced(s.roomKey)

		select {
		case <-ctx.Done():
			s.logger.Info("simulated stream stopped", zap.String("room", s.roomKey))
			return
		case <-ticker.C:
		}
	}
}

// renderSimulated: ruído + gradiente, nome do quarto, horário e um "leito".
func renderSimulated(room string, now time.Time, rng *rand.Rand, noise []byte) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, simWidth, simHeight))
	_, _ = rng.Read(noise)

	pix := img.Pix
	for y := 0; y < simHeight; y++ {
		gy := uint8(y * 80 / simHeight)
		row := y * img.Stride
		for x := 0; x < simWidth; x++ {
			n := noise[y*simWidth+x] % 50
			gx := uint8(x * 100 / simWidth)
			i := row + x*4
			pix[i+0] = n + gy
			pix[i+1] = n + gx/2
			pix[i+2] = n + gx
			pix[i+3] = 255
		}
	}

	bed := image.Rect(200, 200, 440, 380)
	fillRect(img, bed, color.RGBA{60, 60, 90, 255})
	strokeRect(img, bed, colorWhite, 2)
	drawText(img, bed.Min.X+95, bed.Min.Y+75, "BED", colorWhite, 3)

	drawText(img, 10, 10, "Room: "+room, colorGreen, 2)
	drawText(img, 10, simHeight-36, now.Format("2006-01-02 15:04:05"), colorWhite, 2)
	return img
}
