// internal/ingest/listener.go
package ingest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"go.uber.org/zap"
)

const readDeadline = time.Second

type Handler interface {
	Handle(ctx context.Context, sourceIP string, raw []byte) error
}

// HandlerFunc adapta uma função comum a Handler.
type HandlerFunc func(ctx context.Context, sourceIP string, raw []byte) error

func (f HandlerFunc) Handle(ctx context.Context, sourceIP string, raw []byte) error {
	return f(ctx, sourceIP, raw)
}

// Listener recebe os datagramas e chama o handler um por vez, na ordem de
// chegada.
type Listener struct {
	conn       net.PacketConn
	bufferSize int
	handler    Handler
	logger     *zap.Logger
}

// Listen faz o bind; falha aqui é fatal para o processo.
func Listen(addr string, bufferSize int, handler Handler, logger *zap.Logger) (*Listener, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind udp %s: %w", addr, err)
	}
	if bufferSize <= 0 {
		bufferSize = 2048
	}
	l := &Listener{conn: conn, bufferSize: bufferSize, handler: handler, logger: logger.Named("ingest")}
	l.logger.Info("udp listener bound", zap.String("addr", conn.LocalAddr().String()))
	return l, nil
}

func (l *Listener) Addr() net.Addr { return l.conn.LocalAddr() }

// Serve roda até ctx acabar. Erro de um pacote nunca encerra o loop.
func (l *Listener) Serve(ctx context.Context) error {
	defer l.conn.Close()
	buf := make([]byte, l.bufferSize)

	for {
		if ctx.Err() != nil {
			l.logger.Info("udp listener stopped")
			return nil
		}

		_ = l.conn.SetReadDeadline(time.Now().Add(readDeadline))
		n, addr, err := l.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			l.logger.Warn("udp read failed", zap.Error(err))
			continue
		}

		raw := make([]byte, n)
		copy(raw, buf[:n])
		l.dispatch(ctx, hostOf(addr), raw)
	}
}

func (l *Listener) dispatch(ctx context.Context, source string, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("packet handler panic", zap.String("source", source), zap.Any("panic", r))
		}
	}()
	if err := l.handler.Handle(ctx, source, raw); err != nil {
		l.logger.Warn("packet dropped", zap.String("source", source), zap.Int("bytes", len(raw)), zap.Error(err))
	}
}

func (l *Listener) Close() error { return l.conn.Close() }

func hostOf(addr net.Addr) string {
	if ua, ok := addr.(*net.UDPAddr); ok {
		return ua.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
