package mqttclient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sua-org/nursecall-bus/internal/dispatcher"
)

type fakePublisher struct {
	mu     sync.Mutex
	topics []string
	bodies []string
	err    error

	// falhas antes de começar a aceitar
	failures int
}

func (f *fakePublisher) Publish(topic string, _ byte, _ bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.failures > 0 {
		f.failures--
		return errors.New("not connected")
	}
	f.topics = append(f.topics, topic)
	f.bodies = append(f.bodies, string(payload))
	return nil
}

func TestSink_PublishesToTopic(t *testing.T) {
	pub := &fakePublisher{}
	s := NewSink(pub, "nursecall/events")

	require.NoError(t, s.Send(context.Background(), []byte(`{"id":1}`)))
	assert.Equal(t, []string{"nursecall/events"}, pub.topics)
	assert.Equal(t, []string{`{"id":1}`}, pub.bodies)
	assert.NoError(t, s.Close())
}

func TestSink_PropagatesErrors(t *testing.T) {
	s := NewSink(&fakePublisher{err: errors.New("not connected")}, "t")
	assert.Error(t, s.Send(context.Background(), []byte("x")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewSink(&fakePublisher{}, "t").Send(ctx, []byte("x")), context.Canceled)
}

func (f *fakePublisher) published() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bodies)
}

func TestSink_KeepsMirroringAfterPublishError(t *testing.T) {
	var skipped []string
	var mu sync.Mutex
	hub := dispatcher.New(zap.NewNop(), dispatcher.WithSkipHook(func(reason string) {
		mu.Lock()
		skipped = append(skipped, reason)
		mu.Unlock()
	}))
	defer hub.Close()

	pub := &fakePublisher{failures: 1}
	hub.Attach(NewSink(pub, "nursecall/events"))

	for i := 0; i < 5; i++ {
		hub.Broadcast([]byte(`{"id":1}`))
	}
	require.Eventually(t, func() bool { return pub.published() == 4 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, hub.Len())
	mu.Lock()
	assert.Equal(t, []string{"send_error"}, skipped)
	mu.Unlock()
}
