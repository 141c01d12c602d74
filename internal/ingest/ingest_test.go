package ingest

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sua-org/nursecall-bus/internal/core"
	"github.com/sua-org/nursecall-bus/internal/decoder"
	"github.com/sua-org/nursecall-bus/internal/metrics"
	"github.com/sua-org/nursecall-bus/internal/session"
	"github.com/sua-org/nursecall-bus/internal/store"
	"github.com/sua-org/nursecall-bus/internal/store/storetest"
)

func packet(text string) []byte {
	out := []byte{0x02, 24, 1, 15, 10, 30, 0}
	out = append(out, text...)
	for i := 0; i < 4; i++ {
		out = append(out, 0x02)
	}
	return append(out, 0x03)
}

type captured struct {
	mu       sync.Mutex
	payloads []core.EventPayload
}

func (c *captured) BroadcastJSON(v any) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, v.(core.EventPayload))
	return 1, nil
}

func (c *captured) all() []core.EventPayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.EventPayload(nil), c.payloads...)
}

type fakeCams struct {
	frames map[string][]byte
}

func (f fakeCams) Has(room string) bool {
	_, ok := f.frames[room]
	return ok
}

func (f fakeCams) HasFrame(room string) bool { return f.frames[room] != nil }
func (f fakeCams) Frame(room string) []byte  { return f.frames[room] }

type fakeSnapshots struct {
	mu   sync.Mutex
	keys []string
	err  error
	// bloqueia cada upload até o ctx acabar
	hang bool
}

func (f *fakeSnapshots) SaveSnapshot(ctx context.Context, key string, _ []byte, _ string) (string, error) {
	if f.hang {
		<-ctx.Done()
		return "", ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.keys = append(f.keys, key)
	return f.ObjectURL(key), nil
}

func (f *fakeSnapshots) ObjectURL(key string) string { return "http://minio/" + key }

func (f *fakeSnapshots) uploaded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}

type invalidations struct{ n int }

func (i *invalidations) Invalidate(context.Context) error {
	i.n++
	return nil
}

func ptr[T any](v T) *T { return &v }

func fixture() *storetest.Memory {
	return storetest.NewMemory().
		AddRoom(store.Room{ID: 1, RoomNumber: "101", RoomName: "ICU 3", SystemIP: ptr("10.0.0.5"),
			Ward: &store.Ward{ID: 1, Name: "ICU", Floor: &store.Floor{ID: 1, Name: "Ground"}}}).
		AddBed(store.Bed{ID: 11, RoomID: ptr(uint(1)), BedNumber: "B1", BedName: "Window"}).
		AddBed(store.Bed{ID: 12, RoomID: ptr(uint(1)), BedNumber: "B3", BedName: "Bed No 3"})
}

func newPipeline(mem *storetest.Memory, out *captured) *Pipeline {
	return &Pipeline{
		Store:       mem,
		Tracker:     session.NewTracker(time.UTC, zap.NewNop()),
		Cameras:     fakeCams{},
		Broadcaster: out,
		Logger:      zap.NewNop(),
		Now:         func() time.Time { return time.Date(2024, 1, 15, 10, 30, 5, 0, time.UTC) },
	}
}

func TestHandle_TwoCallsShareOneSession(t *testing.T) {
	ctx := context.Background()
	mem, out := fixture(), &captured{}
	p := newPipeline(mem, out)
	stats := &invalidations{}
	p.Stats = stats

	first, err := p.Handle(ctx, "10.0.0.5", packet("ROOM 101 BED No 3 INTERCALL-IP Call"))
	require.NoError(t, err)
	second, err := p.Handle(ctx, "10.0.0.5", packet("ROOM 101 BED No 3 INTERCALL-IP Accept"))
	require.NoError(t, err)

	sessions := mem.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, uint(12), sessions[0].BedID)
	assert.Equal(t, "Accept", sessions[0].CurrentEventType)
	assert.Equal(t, store.SessionActive, sessions[0].Status)
	assert.Len(t, mem.Events(), 2)

	require.NotNil(t, first.CallSessionID)
	require.NotNil(t, second.CallSessionID)
	assert.Equal(t, *first.CallSessionID, *second.CallSessionID)

	assert.Equal(t, "Bed No 3", first.Title)
	assert.Equal(t, "ICU 3", first.RoomName)
	assert.Equal(t, "Ground", first.FloorName)
	assert.Equal(t, "2024-01-15T10:30:05", first.SystemTimestamp)
	assert.Len(t, out.all(), 2)
	assert.Equal(t, 2, stats.n)
}

func TestHandle_EventUsesTrackerTimezone(t *testing.T) {
	pkt := time.FixedZone("PKT", 5*60*60)
	instant := time.Date(2024, 1, 15, 5, 30, 5, 0, time.UTC)
	mem, out := fixture(), &captured{}
	p := newPipeline(mem, out)
	p.Now = nil
	p.Tracker = session.NewTracker(pkt, zap.NewNop()).WithClock(func() time.Time { return instant.In(pkt) })

	payload, err := p.Handle(context.Background(), "10.0.0.5", packet("ROOM 101 BED No 3 INTERCALL-IP Call"))
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15T10:30:05", payload.SystemTimestamp)

	events, sessions := mem.Events(), mem.Sessions()
	require.Len(t, events, 1)
	require.Len(t, sessions, 1)
	assert.Equal(t, pkt, events[0].SystemTimestamp.Location())
	assert.Equal(t, sessions[0].StartedAt.Format(time.DateTime), events[0].SystemTimestamp.Format(time.DateTime))
}

func TestHandle_ResetEndsSession(t *testing.T) {
	ctx := context.Background()
	mem, out := fixture(), &captured{}
	p := newPipeline(mem, out)

	_, err := p.Handle(ctx, "10.0.0.5", packet("ROOM 101 BED No 3 INTERCALL-IP Call"))
	require.NoError(t, err)
	reset, err := p.Handle(ctx, "10.0.0.5", packet("ROOM 101 BED No 3 INTERCALL-IP Reset"))
	require.NoError(t, err)

	sessions := mem.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, store.SessionEnded, sessions[0].Status)
	assert.NotNil(t, sessions[0].EndedAt)
	assert.Nil(t, reset.CallSessionID)
	assert.Zero(t, mem.ActiveSessions(12))
}

func TestHandle_UnknownSourceStillStoresEvent(t *testing.T) {
	mem, out := fixture(), &captured{}
	p := newPipeline(mem, out)

	payload, err := p.Handle(context.Background(), "192.168.9.9", packet("ROOM 101 BED No 3 INTERCALL-IP Call"))
	require.NoError(t, err)
	assert.Nil(t, payload.RoomID)
	assert.Nil(t, payload.BedID)
	assert.Nil(t, payload.CallSessionID)

	events := mem.Events()
	require.Len(t, events, 1)
	assert.Nil(t, events[0].RoomID)
	assert.Equal(t, "ROOM 101", events[0].RoomIdentifier)
	assert.Empty(t, mem.Sessions())
}

func TestHandle_DecodeFailureWritesNothing(t *testing.T) {
	mem, out := fixture(), &captured{}
	p := newPipeline(mem, out)
	p.Metrics = metrics.New()

	_, err := p.Handle(context.Background(), "10.0.0.5", []byte("garbage"))
	require.Error(t, err)
	assert.ErrorIs(t, err, decoder.ErrFraming)
	assert.Empty(t, mem.Events())
	assert.Empty(t, out.all())
	assert.Equal(t, 1.0, testutil.ToFloat64(p.Metrics.Packets.WithLabelValues(metrics.ResultDecodeError)))
}

func TestHandle_StoreFailureRollsBack(t *testing.T) {
	mem, out := fixture(), &captured{}
	mem.FailAppend = errors.New("deadlock")
	p := newPipeline(mem, out)

	_, err := p.Handle(context.Background(), "10.0.0.5", packet("ROOM 101 BED No 3 INTERCALL-IP Call"))
	require.Error(t, err)
	assert.Empty(t, mem.Sessions())
	assert.Empty(t, mem.Events())
	assert.Empty(t, out.all())
}

func TestHandle_SnapshotWhenCameraLive(t *testing.T) {
	mem, out := fixture(), &captured{}
	mem.AddCamera(store.CameraSource{Room: store.Room{ID: 1}, Camera: store.Camera{ID: 1}})
	p := newPipeline(mem, out)
	p.Cameras = fakeCams{frames: map[string][]byte{"ICU 3": {0xFF, 0xD8}}}
	p.Metrics = metrics.New()
	snaps := &fakeSnapshots{}
	p.Snapshots = NewSnapshotQueue(snaps, 4, p.Metrics, zap.NewNop())

	payload, err := p.Handle(context.Background(), "10.0.0.5", packet("ROOM 101 BED No 3 INTERCALL-IP Emergency"))
	require.NoError(t, err)
	assert.True(t, payload.CameraConfigured)
	assert.True(t, payload.CameraLive)
	assert.Contains(t, payload.SnapshotURL, "http://minio/snapshots/2024/01/15/icu-3/")
	assert.Equal(t, 1.0, testutil.ToFloat64(p.Metrics.Events.WithLabelValues("Emergency")))

	reset, err := p.Handle(context.Background(), "10.0.0.5", packet("ROOM 101 BED No 3 INTERCALL-IP Reset"))
	require.NoError(t, err)
	assert.Empty(t, reset.SnapshotURL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Snapshots.Run(ctx) }()

	require.Eventually(t, func() bool { return len(snaps.uploaded()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, payload.SnapshotURL, snaps.ObjectURL(snaps.uploaded()[0]))
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(p.Metrics.Snapshots.WithLabelValues("ok")) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestHandle_SlowSnapshotStoreDoesNotStallIngest(t *testing.T) {
	mem, out := fixture(), &captured{}
	p := newPipeline(mem, out)
	p.Cameras = fakeCams{frames: map[string][]byte{"ICU 3": {0xFF, 0xD8}}}
	p.Metrics = metrics.New()
	p.Snapshots = NewSnapshotQueue(&fakeSnapshots{hang: true}, 1, p.Metrics, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Snapshots.Run(ctx) }()

	start := time.Now()
	var urls []string
	for i := 0; i < 4; i++ {
		payload, err := p.Handle(context.Background(), "10.0.0.5", packet("ROOM 101 BED No 3 INTERCALL-IP Call"))
		require.NoError(t, err)
		urls = append(urls, payload.SnapshotURL)
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Len(t, out.all(), 4)
	assert.NotEmpty(t, urls[0])
	assert.Contains(t, urls, "")
	assert.GreaterOrEqual(t, testutil.ToFloat64(p.Metrics.Snapshots.WithLabelValues("dropped")), 1.0)
}

func TestListener_DeliversDatagramsInOrder(t *testing.T) {
	var mu sync.Mutex
	var got []string
	handler := HandlerFunc(func(_ context.Context, source string, raw []byte) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, source+"|"+string(raw))
		if string(raw) == "boom" {
			panic("bad packet")
		}
		return errors.New("ignored")
	})

	l, err := Listen("127.0.0.1:0", 64, handler, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Serve(ctx) }()

	conn, err := net.Dial("udp", l.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	for _, m := range []string{"one", "boom", "two"} {
		_, err := conn.Write([]byte(m))
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []string{"127.0.0.1|one", "127.0.0.1|boom", "127.0.0.1|two"}, got)
	mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestListen_BindFailure(t *testing.T) {
	l, err := Listen("127.0.0.1:0", 0, HandlerFunc(func(context.Context, string, []byte) error { return nil }), zap.NewNop())
	require.NoError(t, err)
	defer l.Close()

	_, err = Listen(l.Addr().String(), 0, nil, zap.NewNop())
	assert.Error(t, err)
}
