// internal/session/tracker.go
package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sua-org/nursecall-bus/internal/core"
	"github.com/sua-org/nursecall-bus/internal/store"
)

type Transition string

const (
	TransitionNone    Transition = "none"
	TransitionCreated Transition = "created"
	TransitionUpdated Transition = "updated"
	TransitionEnded   Transition = "ended"
)

// Store é o subconjunto do store que o tracker usa.
type Store interface {
	FindActiveCallSession(ctx context.Context, bedID uint) (*store.CallSession, error)
	CreateCallSession(ctx context.Context, bedID uint, eventType string, startedAt time.Time) (*store.CallSession, error)
	UpdateCallSession(ctx context.Context, id uint, fields map[string]interface{}) error
}

// Result diz o que aconteceu e qual sessão o evento deve referenciar
// (nil quando a sessão foi encerrada ou nada mudou).
type Result struct {
	Session    *store.CallSession
	Transition Transition
}

type Tracker struct {
	now    func() time.Time
	logger *zap.Logger
}

func NewTracker(loc *time.Location, logger *zap.Logger) *Tracker {
	if loc == nil {
		loc = time.UTC
	}
	return &Tracker{
		now:    func() time.Time { return time.Now().In(loc) },
		logger: logger.Named("session"),
	}
}

// WithClock troca o relógio (testes).
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// Now é o relógio do tracker, já no fuso configurado.
func (t *Tracker) Now() time.Time { return t.now() }

// Advance aplica um evento ao leito: cria, atualiza ou encerra a sessão ativa.
// Reset sem sessão ativa não faz nada.
func (t *Tracker) Advance(ctx context.Context, st Store, bedID uint, eventType string) (Result, error) {
	active, err := st.FindActiveCallSession(ctx, bedID)
	if err != nil {
		return Result{}, err
	}

	if core.IsReset(eventType) {
		if active == nil {
			return Result{Transition: TransitionNone}, nil
		}
		endedAt := t.now()
		err := st.UpdateCallSession(ctx, active.ID, map[string]interface{}{
			"status":   store.SessionEnded,
			"ended_at": endedAt,
		})
		if err != nil {
			return Result{}, fmt.Errorf("end session %d: %w", active.ID, err)
		}
		t.logger.Debug("call session ended", zap.Uint("bed_id", bedID), zap.Uint("session_id", active.ID))
		return Result{Transition: TransitionEnded}, nil
	}

	if active != nil {
		err := st.UpdateCallSession(ctx, active.ID, map[string]interface{}{
			"current_event_type": eventType,
		})
		if err != nil {
			return Result{}, fmt.Errorf("update session %d: %w", active.ID, err)
		}
		active.CurrentEventType = eventType
		return Result{Session: active, Transition: TransitionUpdated}, nil
	}

	cs, err := st.CreateCallSession(ctx, bedID, eventType, t.now())
	if err != nil {
		return Result{}, err
	}
	t.logger.Debug("call session started",
		zap.Uint("bed_id", bedID), zap.Uint("session_id", cs.ID), zap.String("event", eventType))
	return Result{Session: cs, Transition: TransitionCreated}, nil
}
