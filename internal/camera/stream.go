// internal/camera/stream.go
package camera

import (
	"sync/atomic"
	"time"
)

type State string

const (
	StateStarting     State = "starting"
	StateRunning      State = "running"
	StateReconnecting State = "reconnecting"
	StateStopped      State = "stopped"
)

// Stream é um loop de captura de um quarto.
type Stream interface {
	RoomKey() string
	Kind() string
	// Start não faz nada se o loop já estiver rodando.
	Start()
	// Stop espera o loop terminar por um tempo limitado; pode ser chamado várias vezes.
	Stop()
	// Frame devolve uma cópia do JPEG mais recente, ou nil.
	Frame() []byte
	HasFrame() bool
	LastFrameAt() time.Time
	State() State
}

// Observer recebe contadores dos loops de captura (métricas).
type Observer interface {
	FrameProduced(room string)
	Reconnect(room string)
}

type nopObserver struct{}

func (nopObserver) FrameProduced(string) {}
func (nopObserver) Reconnect(string)     {}

type stateBox struct {
	v atomic.Value
}

func (b *stateBox) set(s State) { b.v.Store(s) }

func (b *stateBox) get() State {
	if s, ok := b.v.Load().(State); ok {
		return s
	}
	return StateStopped
}
