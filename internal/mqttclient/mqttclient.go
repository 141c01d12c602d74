// internal/mqttclient/mqttclient.go
package mqttclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/sua-org/nursecall-bus/internal/config"
)

type Handler func(topic string, payload []byte)

type Client struct {
	client mqtt.Client
	logger *zap.Logger

	mu   sync.Mutex
	subs map[string]subscription
}

type subscription struct {
	qos     byte
	handler Handler
}

func New(cfg config.MQTTConfig, defaultClientID string, logger *zap.Logger) (*Client, error) {
	broker := fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = defaultClientID
	}

	c := &Client{logger: logger.Named("mqtt"), subs: make(map[string]subscription)}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.logger.Warn("connection lost", zap.Error(err))
	})
	// sessão limpa: as assinaturas precisam ser refeitas a cada reconexão
	opts.SetOnConnectHandler(func(cli mqtt.Client) {
		c.resubscribe(cli)
	})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	cli := mqtt.NewClient(opts)
	token := cli.Connect()
	if ok := token.WaitTimeout(10 * time.Second); !ok {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect error: %w", err)
	}

	c.client = cli
	c.logger.Info("connected", zap.String("broker", broker), zap.String("client_id", clientID))
	return c, nil
}

func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("mqtt publish %s: timeout", topic)
	}
	return token.Error()
}

func (c *Client) Subscribe(topic string, qos byte, handler Handler) error {
	c.mu.Lock()
	c.subs[topic] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()

	token := c.client.Subscribe(topic, qos, wrap(handler))
	token.Wait()
	return token.Error()
}

func (c *Client) resubscribe(cli mqtt.Client) {
	c.mu.Lock()
	subs := make(map[string]subscription, len(c.subs))
	for t, s := range c.subs {
		subs[t] = s
	}
	c.mu.Unlock()

	for topic, s := range subs {
		token := cli.Subscribe(topic, s.qos, wrap(s.handler))
		token.Wait()
		if err := token.Error(); err != nil {
			c.logger.Warn("resubscribe failed", zap.String("topic", topic), zap.Error(err))
		}
	}
}

func wrap(h Handler) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		h(msg.Topic(), msg.Payload())
	}
}

func (c *Client) Close() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(250)
	}
}

// Publisher é o pedaço do Client usado por quem só publica.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Sink publica cada evento do feed ao vivo num tópico MQTT. Entra no
// dispatcher com Attach: falha de publish perde o evento, não o espelho.
type Sink struct {
	pub   Publisher
	topic string
}

func NewSink(pub Publisher, topic string) *Sink {
	return &Sink{pub: pub, topic: topic}
}

func (s *Sink) Send(ctx context.Context, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.pub.Publish(s.topic, 1, false, msg)
}

func (s *Sink) Close() error { return nil }
