package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const wsCloseWait = time.Second

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:   1024,
	WriteBufferSize:  4096,
	HandshakeTimeout: 10 * time.Second,
}

// wsSubscriber entrega o feed de eventos para uma conexão websocket.
// gorilla aceita um escritor concorrente por vez, daí o mutex.
type wsSubscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
	once sync.Once
}

func (w *wsSubscriber) Send(ctx context.Context, msg []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if dl, ok := ctx.Deadline(); ok {
		_ = w.conn.SetWriteDeadline(dl)
	}
	return w.conn.WriteMessage(websocket.TextMessage, msg)
}

func (w *wsSubscriber) Close() error {
	var err error
	w.once.Do(func() {
		w.mu.Lock()
		_ = w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(wsCloseWait))
		w.mu.Unlock()
		err = w.conn.Close()
	})
	return err
}

// handleWebsocket registra o cliente no hub e fica lendo até a conexão
// cair; o cliente não precisa mandar nada.
func (s *Server) handleWebsocket(c *gin.Context) {
	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger().Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sub := &wsSubscriber{conn: conn}
	id, unsubscribe := s.Hub.Subscribe(sub)
	defer unsubscribe()

	s.logger().Info("websocket client connected",
		zap.String("id", id.String()),
		zap.String("client", c.ClientIP()),
		zap.Int("subscribers", s.Hub.Len()),
	)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.logger().Info("websocket client disconnected", zap.String("id", id.String()))
}
