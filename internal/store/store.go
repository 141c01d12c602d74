// internal/store/store.go
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("record not found")

// Store é tudo que o ciclo de ingestão precisa do banco.
// Métodos Find* devolvem (nil, nil) quando não há registro.
type Store interface {
	FindRoomBySourceIP(ctx context.Context, addr string) (*Room, error)
	ListBeds(ctx context.Context, roomID uint) ([]Bed, error)
	FindActiveCallSession(ctx context.Context, bedID uint) (*CallSession, error)
	CreateCallSession(ctx context.Context, bedID uint, eventType string, startedAt time.Time) (*CallSession, error)
	UpdateCallSession(ctx context.Context, id uint, fields map[string]interface{}) error
	AppendEvent(ctx context.Context, e *Event) error
	ListActiveCameras(ctx context.Context) ([]CameraSource, error)
	HasActiveCamera(ctx context.Context, roomID uint) (bool, error)

	// Transaction roda fn numa unidade de trabalho: commit se fn devolver nil,
	// rollback caso contrário.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

type GormStore struct {
	db *gorm.DB
}

func New(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) DB() *gorm.DB {
	return s.db
}

func (s *GormStore) FindRoomBySourceIP(ctx context.Context, addr string) (*Room, error) {
	var room Room
	err := s.db.WithContext(ctx).
		Preload("Ward.Floor").
		Where("system_ip = ?", addr).
		First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find room by ip %s: %w", addr, err)
	}
	return &room, nil
}

func (s *GormStore) ListBeds(ctx context.Context, roomID uint) ([]Bed, error) {
	var beds []Bed
	if err := s.db.WithContext(ctx).Where("room_id = ?", roomID).Order("id").Find(&beds).Error; err != nil {
		return nil, fmt.Errorf("list beds of room %d: %w", roomID, err)
	}
	return beds, nil
}

func (s *GormStore) FindActiveCallSession(ctx context.Context, bedID uint) (*CallSession, error) {
	var cs CallSession
	err := s.db.WithContext(ctx).
		Where("bed_id = ? AND status = ?", bedID, SessionActive).
		Order("id desc").
		First(&cs).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active session of bed %d: %w", bedID, err)
	}
	return &cs, nil
}

func (s *GormStore) CreateCallSession(ctx context.Context, bedID uint, eventType string, startedAt time.Time) (*CallSession, error) {
	cs := &CallSession{
		BedID:            bedID,
		CurrentEventType: eventType,
		Status:           SessionActive,
		StartedAt:        startedAt,
	}
	if err := s.db.WithContext(ctx).Create(cs).Error; err != nil {
		return nil, fmt.Errorf("create session for bed %d: %w", bedID, err)
	}
	return cs, nil
}

func (s *GormStore) UpdateCallSession(ctx context.Context, id uint, fields map[string]interface{}) error {
	res := s.db.WithContext(ctx).Model(&CallSession{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update session %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update session %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *GormStore) AppendEvent(ctx context.Context, e *Event) error {
	if e.Status == "" {
		e.Status = EventActive
	}
	if err := s.db.WithContext(ctx).Omit("Room", "Bed", "CallSession").Create(e).Error; err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *GormStore) ListActiveCameras(ctx context.Context) ([]CameraSource, error) {
	var cams []Camera
	err := s.db.WithContext(ctx).
		Preload("Room").
		Where("status = ?", "active").
		Order("id").
		Find(&cams).Error
	if err != nil {
		return nil, fmt.Errorf("list active cameras: %w", err)
	}

	out := make([]CameraSource, 0, len(cams))
	for _, c := range cams {
		if c.Room == nil {
			continue
		}
		out = append(out, CameraSource{Room: *c.Room, Camera: c})
	}
	return out, nil
}

func (s *GormStore) HasActiveCamera(ctx context.Context, roomID uint) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Camera{}).
		Where("room_id = ? AND status = ?", roomID, "active").
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("count cameras of room %d: %w", roomID, err)
	}
	return n > 0, nil
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}
