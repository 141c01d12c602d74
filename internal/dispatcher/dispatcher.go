// internal/dispatcher/dispatcher.go
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrQueueFull = errors.New("dispatcher: subscriber queue full")

// Subscriber é uma conexão viva do feed de eventos (websocket, MQTT...).
type Subscriber interface {
	Send(ctx context.Context, msg []byte) error
	Close() error
}

type Option func(*Dispatcher)

// WithQueueSize define quantas mensagens um assinante lento pode acumular
// antes de ser descartado.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queueSize = n
		}
	}
}

func WithSendTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.sendTimeout = t
		}
	}
}

// WithDropHook é chamado a cada assinante removido por erro (métricas).
func WithDropHook(fn func(reason string)) Option {
	return func(d *Dispatcher) { d.onDrop = fn }
}

// WithSkipHook é chamado a cada mensagem perdida por um assinante fixo.
func WithSkipHook(fn func(reason string)) Option {
	return func(d *Dispatcher) { d.onSkip = fn }
}

type subscription struct {
	id    uuid.UUID
	sub   Subscriber
	queue chan []byte
	stop  chan struct{}
	once  sync.Once

	// fixo: erro ou fila cheia perdem a mensagem, não o assinante
	pinned bool
}

func (s *subscription) shutdown() {
	s.once.Do(func() {
		close(s.stop)
		_ = s.sub.Close()
	})
}

// Dispatcher mantém o conjunto de assinantes. Broadcast nunca bloqueia o
// produtor: cada assinante tem sua fila e sua goroutine de envio.
type Dispatcher struct {
	logger      *zap.Logger
	queueSize   int
	sendTimeout time.Duration
	onDrop      func(reason string)
	onSkip      func(reason string)

	mu     sync.Mutex
	subs   map[uuid.UUID]*subscription
	closed bool
}

func New(logger *zap.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		logger:      logger.Named("dispatcher"),
		queueSize:   32,
		sendTimeout: 5 * time.Second,
		subs:        make(map[uuid.UUID]*subscription),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Subscribe registra o assinante e devolve a função que o remove.
// Depois de Close o assinante é fechado na hora.
func (d *Dispatcher) Subscribe(sub Subscriber) (uuid.UUID, func()) {
	return d.add(sub, false)
}

// Attach registra um assinante do próprio processo (ex.: espelho MQTT) que
// sobrevive a falhas de envio: a mensagem é perdida e o assinante continua.
func (d *Dispatcher) Attach(sub Subscriber) func() {
	_, remove := d.add(sub, true)
	return remove
}

func (d *Dispatcher) add(sub Subscriber, pinned bool) (uuid.UUID, func()) {
	s := &subscription{
		id:     uuid.New(),
		sub:    sub,
		queue:  make(chan []byte, d.queueSize),
		stop:   make(chan struct{}),
		pinned: pinned,
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		s.shutdown()
		return s.id, func() {}
	}
	d.subs[s.id] = s
	n := len(d.subs)
	d.mu.Unlock()

	go d.deliver(s)
	d.logger.Debug("subscriber added", zap.String("id", s.id.String()), zap.Int("subscribers", n))
	return s.id, func() { d.remove(s.id) }
}

// Broadcast enfileira a mensagem para todos e devolve quantos a receberam.
// Assinante com fila cheia é removido.
func (d *Dispatcher) Broadcast(msg []byte) int {
	d.mu.Lock()
	list := make([]*subscription, 0, len(d.subs))
	for _, s := range d.subs {
		list = append(list, s)
	}
	d.mu.Unlock()

	sent := 0
	for _, s := range list {
		select {
		case s.queue <- msg:
			sent++
		case <-s.stop:
		default:
			if s.pinned {
				d.skip(s, ErrQueueFull)
				continue
			}
			d.drop(s.id, ErrQueueFull)
		}
	}
	return sent
}

func (d *Dispatcher) BroadcastJSON(v any) (int, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	return d.Broadcast(data), nil
}

func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs)
}

// Close remove e fecha todos os assinantes.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	list := d.subs
	d.subs = make(map[uuid.UUID]*subscription)
	d.mu.Unlock()

	for _, s := range list {
		s.shutdown()
	}
}

func (d *Dispatcher) deliver(s *subscription) {
	for {
		select {
		case <-s.stop:
			return
		case msg := <-s.queue:
			ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
			err := s.sub.Send(ctx, msg)
			cancel()
			if err != nil && s.pinned {
				d.skip(s, err)
				continue
			}
			if err != nil {
				d.drop(s.id, err)
				return
			}
		}
	}
}

func (d *Dispatcher) remove(id uuid.UUID) {
	d.mu.Lock()
	s, ok := d.subs[id]
	delete(d.subs, id)
	d.mu.Unlock()
	if ok {
		s.shutdown()
	}
}

func (d *Dispatcher) drop(id uuid.UUID, err error) {
	d.mu.Lock()
	s, ok := d.subs[id]
	delete(d.subs, id)
	d.mu.Unlock()
	if !ok {
		return
	}
	s.shutdown()
	d.logger.Info("subscriber dropped", zap.String("id", id.String()), zap.Error(err))
	if d.onDrop != nil {
		d.onDrop(reasonOf(err))
	}
}

func (d *Dispatcher) skip(s *subscription, err error) {
	d.logger.Warn("message skipped", zap.String("id", s.id.String()), zap.Error(err))
	if d.onSkip != nil {
		d.onSkip(reasonOf(err))
	}
}

func reasonOf(err error) string {
	if errors.Is(err, ErrQueueFull) {
		return "queue_full"
	}
	return "send_error"
}
