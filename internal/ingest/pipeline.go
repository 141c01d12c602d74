// internal/ingest/pipeline.go
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sua-org/nursecall-bus/internal/core"
	"github.com/sua-org/nursecall-bus/internal/decoder"
	"github.com/sua-org/nursecall-bus/internal/dispatcher"
	"github.com/sua-org/nursecall-bus/internal/metrics"
	"github.com/sua-org/nursecall-bus/internal/resolver"
	"github.com/sua-org/nursecall-bus/internal/session"
	"github.com/sua-org/nursecall-bus/internal/storage"
	"github.com/sua-org/nursecall-bus/internal/store"
)

type Broadcaster interface {
	BroadcastJSON(v any) (int, error)
}

// Cameras é o camera.Manager visto pelo pipeline.
type Cameras interface {
	dispatcher.CameraStatus
	Frame(room string) []byte
}

type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Pipeline processa um datagrama: decodifica, resolve quarto/leito, avança a
// sessão e grava o evento numa transação, e então publica o payload.
type Pipeline struct {
	Store       store.Store
	Tracker     *session.Tracker
	Cameras     Cameras
	Broadcaster Broadcaster
	// Opcionais
	Snapshots *SnapshotQueue
	Stats     Invalidator
	Metrics   *metrics.Metrics

	Logger *zap.Logger

	// Now é opcional; sem ele o evento usa o relógio do Tracker, para que
	// evento e sessão fiquem no mesmo fuso.
	Now func() time.Time
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	if p.Tracker != nil {
		return p.Tracker.Now()
	}
	return time.Now()
}

// Handle devolve o payload publicado. Erros ficam restritos ao pacote: o
// loop só registra e segue.
func (p *Pipeline) Handle(ctx context.Context, sourceIP string, raw []byte) (*core.EventPayload, error) {
	start := time.Now()

	alert, err := decoder.Decode(raw)
	if err != nil {
		p.count(metrics.ResultDecodeError)
		return nil, fmt.Errorf("decode from %s: %w", sourceIP, err)
	}

	var (
		ev         store.Event
		room       *store.Room
		bed        *store.Bed
		transition = session.TransitionNone
		configured bool
	)
	err = p.Store.Transaction(ctx, func(tx store.Store) error {
		var err error
		room, bed, err = resolver.Resolve(ctx, tx, sourceIP, alert)
		if err != nil {
			return fmt.Errorf("resolve: %w", err)
		}

		ev = store.Event{
			DeviceTimestamp: alert.DeviceTimestamp,
			SystemTimestamp: p.now(),
			RoomIdentifier:  alert.Room,
			DeviceType:      alert.DeviceType,
			EventType:       alert.EventType,
			Status:          store.EventActive,
			RawHex:          alert.RawHex,
		}
		if room != nil {
			ev.RoomID = &room.ID
		}
		if bed != nil {
			ev.BedID = &bed.ID
			res, err := p.Tracker.Advance(ctx, tx, bed.ID, alert.EventType)
			if err != nil {
				return fmt.Errorf("advance session: %w", err)
			}
			transition = res.Transition
			if res.Session != nil {
				ev.CallSessionID = &res.Session.ID
			}
		}

		if err := tx.AppendEvent(ctx, &ev); err != nil {
			return err
		}
		if room != nil {
			configured, err = tx.HasActiveCamera(ctx, room.ID)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		p.count(metrics.ResultStoreError)
		return nil, fmt.Errorf("store event from %s: %w", sourceIP, err)
	}

	ev.Room, ev.Bed = room, bed
	payload := dispatcher.BuildPayload(&ev, alert, p.Cameras, configured)
	if payload.CameraLive && !core.IsReset(alert.EventType) {
		payload.SnapshotURL = p.snapshot(room, &ev)
	}

	if _, err := p.Broadcaster.BroadcastJSON(payload); err != nil {
		p.Logger.Warn("broadcast failed", zap.Uint("event_id", ev.ID), zap.Error(err))
	}
	if p.Stats != nil {
		if err := p.Stats.Invalidate(ctx); err != nil {
			p.Logger.Debug("stats invalidate failed", zap.Error(err))
		}
	}

	p.observe(&ev, transition, start)
	p.Logger.Info("event processed",
		zap.Uint("event_id", ev.ID),
		zap.String("source", sourceIP),
		zap.String("event_type", ev.EventType),
		zap.String("room", alert.Room),
		zap.String("bed", alert.Bed),
		zap.Bool("room_resolved", room != nil),
		zap.Bool("bed_resolved", bed != nil),
		zap.String("session", string(transition)))
	return &payload, nil
}

// snapshot enfileira o frame atual do quarto e devolve a URL que ele terá.
func (p *Pipeline) snapshot(room *store.Room, ev *store.Event) string {
	if p.Snapshots == nil || room == nil {
		return ""
	}
	key := strings.TrimSpace(room.DisplayName())
	frame := p.Cameras.Frame(key)
	if frame == nil {
		return ""
	}
	return p.Snapshots.Enqueue(storage.SnapshotKey(key, ev.ID, ev.SystemTimestamp), frame)
}

func (p *Pipeline) count(result string) {
	if p.Metrics != nil {
		p.Metrics.Packets.WithLabelValues(result).Inc()
	}
}

func (p *Pipeline) observe(ev *store.Event, transition session.Transition, start time.Time) {
	if p.Metrics == nil {
		return
	}
	p.Metrics.Packets.WithLabelValues(metrics.ResultOK).Inc()
	p.Metrics.Events.WithLabelValues(ev.EventType).Inc()
	p.Metrics.Sessions.WithLabelValues(string(transition)).Inc()
	if ev.RoomID == nil {
		p.Metrics.Unresolved.WithLabelValues("room").Inc()
	}
	if ev.BedID == nil {
		p.Metrics.Unresolved.WithLabelValues("bed").Inc()
	}
	p.Metrics.Handling.Observe(time.Since(start).Seconds())
}

// Handler adapta o pipeline ao Listener.
func (p *Pipeline) Handler() Handler {
	return HandlerFunc(func(ctx context.Context, sourceIP string, raw []byte) error {
		_, err := p.Handle(ctx, sourceIP, raw)
		return err
	})
}
