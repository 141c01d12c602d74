package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sua-org/nursecall-bus/internal/camera"
	"github.com/sua-org/nursecall-bus/internal/mqttclient"
	"github.com/sua-org/nursecall-bus/internal/store"
	"github.com/sua-org/nursecall-bus/internal/store/storetest"
)

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeBroker struct {
	mu       sync.Mutex
	pubs     []published
	handlers map[string]mqttclient.Handler
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{handlers: make(map[string]mqttclient.Handler)}
}

func (b *fakeBroker) Publish(topic string, _ byte, retained bool, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pubs = append(b.pubs, published{topic, retained, payload})
	return nil
}

func (b *fakeBroker) Subscribe(topic string, _ byte, h mqttclient.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = h
	return nil
}

func (b *fakeBroker) handler(topic string) mqttclient.Handler {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handlers[topic]
}

type fakeCams struct {
	mu      sync.Mutex
	sources map[string]string
	failAdd error
}

func newFakeCams() *fakeCams { return &fakeCams{sources: make(map[string]string)} }

func (c *fakeCams) Add(room, source string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAdd != nil {
		return c.failAdd
	}
	if _, ok := c.sources[room]; !ok {
		c.sources[room] = source
	}
	return nil
}

func (c *fakeCams) Remove(room string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.sources[room]
	delete(c.sources, room)
	return ok
}

func (c *fakeCams) Replace(room, source string) error {
	c.mu.Lock()
	delete(c.sources, room)
	c.mu.Unlock()
	return c.Add(room, source)
}

func (c *fakeCams) Streams() []camera.StreamInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []camera.StreamInfo
	for room := range c.sources {
		out = append(out, camera.StreamInfo{Room: room, Kind: "live", State: camera.StateRunning, HasFrame: true})
	}
	return out
}

func (c *fakeCams) get(room string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sources[room]
	return s, ok
}

func TestBootstrap_StartsOneStreamPerRoom(t *testing.T) {
	mem := storetest.NewMemory()
	mem.AddCamera(store.CameraSource{
		Room:   store.Room{ID: 1, RoomNumber: "101", RoomName: "ICU 3"},
		Camera: store.Camera{ID: 1, RTSPURL: "rtsp://cam-a/stream"},
	})
	mem.AddCamera(store.CameraSource{
		Room:   store.Room{ID: 2, RoomNumber: "102"},
		Camera: store.Camera{ID: 2, IPAddress: "10.0.0.9", Username: "admin", Password: "pw"},
	})

	cams := newFakeCams()
	s := New(nil, cams, "nursecall", 0, zap.NewNop())
	n, err := s.Bootstrap(context.Background(), mem)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	src, ok := cams.get("ICU 3")
	require.True(t, ok)
	assert.Equal(t, "rtsp://cam-a/stream", src)

	src, ok = cams.get("102")
	require.True(t, ok)
	assert.Equal(t, "rtsp://admin:pw@10.0.0.9:554/", src)

	for _, info := range s.Cameras() {
		assert.Empty(t, info.Password)
	}
}

func TestBootstrap_SkipsFailingCameras(t *testing.T) {
	mem := storetest.NewMemory()
	mem.AddCamera(store.CameraSource{
		Room:   store.Room{ID: 1, RoomNumber: "101"},
		Camera: store.Camera{ID: 1, RTSPURL: "gopher://x"},
	})
	cams := newFakeCams()
	cams.failAdd = errors.New("no driver")

	n, err := New(nil, cams, "nursecall", 0, zap.NewNop()).Bootstrap(context.Background(), mem)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func runSupervisor(t *testing.T, b *fakeBroker, cams *fakeCams) (*Supervisor, mqttclient.Handler) {
	t.Helper()
	s := New(b, cams, "nursecall/", 0, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, s.Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	var h mqttclient.Handler
	require.Eventually(t, func() bool {
		h = b.handler("nursecall/cameras/+/info")
		return h != nil
	}, time.Second, 5*time.Millisecond)
	return s, h
}

func TestInfoMessage_AddReplaceRemove(t *testing.T) {
	b, cams := newFakeBroker(), newFakeCams()
	_, handle := runSupervisor(t, b, cams)

	handle("nursecall/cameras/ICU%203/info", []byte(`{"source":"rtsp://a/","enabled":true}`))
	src, ok := cams.get("ICU 3")
	require.True(t, ok)
	assert.Equal(t, "rtsp://a/", src)

	handle("nursecall/cameras/ICU%203/info", []byte(`{"ip":"10.1.1.1","port":8554,"enabled":true}`))
	src, _ = cams.get("ICU 3")
	assert.Equal(t, "rtsp://10.1.1.1:8554/", src)

	handle("nursecall/cameras/ICU%203/info", nil)
	_, ok = cams.get("ICU 3")
	assert.False(t, ok)
}

func TestInfoMessage_DisabledAndInvalid(t *testing.T) {
	b, cams := newFakeBroker(), newFakeCams()
	s, handle := runSupervisor(t, b, cams)

	handle("nursecall/cameras/101/info", []byte(`{"source":"rtsp://a/","enabled":true}`))
	handle("nursecall/cameras/101/info", []byte(`{"source":"rtsp://a/","enabled":false}`))
	_, ok := cams.get("101")
	assert.False(t, ok)

	handle("nursecall/cameras/102/info", []byte(`{not json`))
	handle("nursecall/cameras/103/info", []byte(`{"enabled":true}`))
	handle("nursecall/other/103/info", []byte(`{"source":"rtsp://a/","enabled":true}`))
	assert.Empty(t, cams.Streams())
	assert.Empty(t, s.Cameras())
}

func TestPublishStatuses(t *testing.T) {
	b, cams := newFakeBroker(), newFakeCams()
	require.NoError(t, cams.Add("ICU 3", "rtsp://a/"))
	s := New(b, cams, "nursecall", time.Minute, zap.NewNop())
	s.Subscribers = func() int { return 4 }

	s.publishStatuses("host-1", time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))

	require.Len(t, b.pubs, 2)
	assert.Equal(t, "nursecall/cameras/ICU%203/status", b.pubs[0].topic)
	assert.True(t, b.pubs[0].retained)

	assert.Equal(t, "nursecall/collector/status", b.pubs[1].topic)
	var collector map[string]interface{}
	require.NoError(t, json.Unmarshal(b.pubs[1].payload, &collector))
	assert.Equal(t, "host-1", collector["hostname"])
	assert.Equal(t, float64(1), collector["cameras"])
	assert.Equal(t, float64(1), collector["cameras_live"])
	assert.Equal(t, float64(4), collector["subscribers"])
}

func TestTopicSegment_EscapesWildcards(t *testing.T) {
	for _, room := range []string{"A+B", "ICU #2", "Ward/3", "ICU 3"} {
		seg := TopicSegment(room)
		assert.NotContains(t, seg, "+")
		assert.NotContains(t, seg, "#")
		assert.NotContains(t, seg, "/")

		s := New(newFakeBroker(), newFakeCams(), "nursecall", time.Minute, zap.NewNop())
		got, ok := s.roomFromTopic("nursecall/cameras/" + seg + "/info")
		require.True(t, ok, room)
		assert.Equal(t, room, got)
	}

	b, cams := newFakeBroker(), newFakeCams()
	require.NoError(t, cams.Add("A+B", "rtsp://a/"))
	s := New(b, cams, "nursecall", time.Minute, zap.NewNop())
	s.publishStatuses("host-1", time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))
	require.NotEmpty(t, b.pubs)
	assert.Equal(t, "nursecall/cameras/A%2BB/status", b.pubs[0].topic)
}

func TestEventsTopic(t *testing.T) {
	assert.Equal(t, "nursecall/events", EventsTopic("nursecall/"))
}
