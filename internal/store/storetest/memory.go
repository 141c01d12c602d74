// Package storetest fornece um store.Store em memória para testes.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sua-org/nursecall-bus/internal/store"
)

type Memory struct {
	mu       sync.Mutex
	rooms    []store.Room
	beds     []store.Bed
	sessions []store.CallSession
	events   []store.Event
	cameras  []store.CameraSource
	nextID   uint

	// Erros injetados
	FailFindRoom error
	FailAppend   error
}

func NewMemory() *Memory {
	return &Memory{nextID: 1000}
}

func (m *Memory) AddRoom(r store.Room) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms = append(m.rooms, r)
	return m
}

func (m *Memory) AddBed(b store.Bed) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beds = append(m.beds, b)
	return m
}

func (m *Memory) AddCamera(c store.CameraSource) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cameras = append(m.cameras, c)
	return m
}

func (m *Memory) Sessions() []store.CallSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.CallSession(nil), m.sessions...)
}

func (m *Memory) Events() []store.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.Event(nil), m.events...)
}

// ActiveSessions conta as sessões ativas de um leito.
func (m *Memory) ActiveSessions(bedID uint) int {
	n := 0
	for _, s := range m.Sessions() {
		if s.BedID == bedID && s.Status == store.SessionActive {
			n++
		}
	}
	return n
}

func (m *Memory) id() uint {
	m.nextID++
	return m.nextID
}

func (m *Memory) FindRoomBySourceIP(_ context.Context, addr string) (*store.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailFindRoom != nil {
		return nil, m.FailFindRoom
	}
	for _, r := range m.rooms {
		if r.SystemIP != nil && *r.SystemIP == addr {
			r := r
			return &r, nil
		}
	}
	return nil, nil
}

func (m *Memory) ListBeds(_ context.Context, roomID uint) ([]store.Bed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Bed
	for _, b := range m.beds {
		if b.RoomID != nil && *b.RoomID == roomID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) FindActiveCallSession(_ context.Context, bedID uint) (*store.CallSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sessions) - 1; i >= 0; i-- {
		s := m.sessions[i]
		if s.BedID == bedID && s.Status == store.SessionActive {
			return &s, nil
		}
	}
	return nil, nil
}

func (m *Memory) CreateCallSession(_ context.Context, bedID uint, eventType string, startedAt time.Time) (*store.CallSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs := store.CallSession{
		ID:               m.id(),
		BedID:            bedID,
		CurrentEventType: eventType,
		Status:           store.SessionActive,
		StartedAt:        startedAt,
	}
	m.sessions = append(m.sessions, cs)
	return &cs, nil
}

func (m *Memory) UpdateCallSession(_ context.Context, id uint, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sessions {
		s := &m.sessions[i]
		if s.ID != id {
			continue
		}
		for k, v := range fields {
			switch k {
			case "current_event_type":
				s.CurrentEventType = v.(string)
			case "status":
				s.Status = v.(string)
			case "ended_at":
				switch t := v.(type) {
				case time.Time:
					s.EndedAt = &t
				case *time.Time:
					s.EndedAt = t
				}
			default:
				return fmt.Errorf("unknown field %q", k)
			}
		}
		return nil
	}
	return fmt.Errorf("update session %d: %w", id, store.ErrNotFound)
}

func (m *Memory) AppendEvent(_ context.Context, e *store.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAppend != nil {
		return m.FailAppend
	}
	e.ID = m.id()
	if e.Status == "" {
		e.Status = store.EventActive
	}
	m.events = append(m.events, *e)
	return nil
}

func (m *Memory) ListActiveCameras(_ context.Context) ([]store.CameraSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.CameraSource(nil), m.cameras...), nil
}

func (m *Memory) HasActiveCamera(_ context.Context, roomID uint) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.cameras {
		if c.Room.ID == roomID {
			return true, nil
		}
	}
	return false, nil
}

// Transaction desfaz sessões e eventos se fn falhar.
func (m *Memory) Transaction(_ context.Context, fn func(tx store.Store) error) error {
	m.mu.Lock()
	sessions := append([]store.CallSession(nil), m.sessions...)
	events := append([]store.Event(nil), m.events...)
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.sessions = sessions
		m.events = events
		m.mu.Unlock()
		return err
	}
	return nil
}

var _ store.Store = (*Memory)(nil)
