// internal/store/queries.go
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sua-org/nursecall-bus/internal/core"
)

// Stats alimenta os contadores do painel.
type Stats struct {
	TotalActive     int64 `json:"total_active"`
	UrgentAlarms    int64 `json:"urgent_alarms"`
	OngoingCalls    int64 `json:"ongoing_calls"`
	RecentlyCleared int64 `json:"recently_cleared"`
}

func (s *GormStore) withEventRelations(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Preload("Room.Ward.Floor").
		Preload("Bed.Room.Ward.Floor")
}

func (s *GormStore) RecentEvents(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var events []Event
	err := s.withEventRelations(ctx).
		Order("system_timestamp desc, id desc").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	return events, nil
}

func (s *GormStore) EventsBetween(ctx context.Context, from, to time.Time) ([]Event, error) {
	var events []Event
	err := s.withEventRelations(ctx).
		Where("system_timestamp >= ? AND system_timestamp < ?", from, to).
		Order("system_timestamp, id").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("events between: %w", err)
	}
	return events, nil
}

func (s *GormStore) Stats(ctx context.Context, now time.Time) (Stats, error) {
	var st Stats
	weekAgo := now.Add(-7 * 24 * time.Hour)
	hourAgo := now.Add(-time.Hour)

	active := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&Event{}).
			Where("system_timestamp >= ? AND status = ?", weekAgo, EventActive)
	}

	if err := active().Count(&st.TotalActive).Error; err != nil {
		return st, fmt.Errorf("count active: %w", err)
	}
	if err := active().Where("event_type IN ?", core.UrgentEventTypes).Count(&st.UrgentAlarms).Error; err != nil {
		return st, fmt.Errorf("count urgent: %w", err)
	}
	if err := active().Where("event_type IN ?", core.OngoingEventTypes).Count(&st.OngoingCalls).Error; err != nil {
		return st, fmt.Errorf("count ongoing: %w", err)
	}
	err := s.db.WithContext(ctx).Model(&Event{}).
		Where("system_timestamp >= ? AND status = ?", hourAgo, EventCleared).
		Count(&st.RecentlyCleared).Error
	if err != nil {
		return st, fmt.Errorf("count cleared: %w", err)
	}
	return st, nil
}

func (s *GormStore) ListFloors(ctx context.Context) ([]Floor, error) {
	var out []Floor
	err := s.db.WithContext(ctx).Order("floor_number, id").Find(&out).Error
	return out, err
}

func (s *GormStore) ListWards(ctx context.Context) ([]Ward, error) {
	var out []Ward
	err := s.db.WithContext(ctx).Preload("Floor").Order("id").Find(&out).Error
	return out, err
}

func (s *GormStore) ListRooms(ctx context.Context) ([]Room, error) {
	var out []Room
	err := s.db.WithContext(ctx).Preload("Ward.Floor").Order("id").Find(&out).Error
	return out, err
}

func (s *GormStore) ListAllBeds(ctx context.Context) ([]Bed, error) {
	var out []Bed
	err := s.db.WithContext(ctx).Preload("Room").Order("id").Find(&out).Error
	return out, err
}

func (s *GormStore) ListColors(ctx context.Context) ([]ColorScheme, error) {
	var out []ColorScheme
	err := s.db.WithContext(ctx).Order("id").Find(&out).Error
	return out, err
}

func (s *GormStore) ListCameras(ctx context.Context) ([]Camera, error) {
	var out []Camera
	err := s.db.WithContext(ctx).Preload("Room").Order("id").Find(&out).Error
	return out, err
}

func (s *GormStore) FindCamera(ctx context.Context, id uint) (*Camera, error) {
	var cam Camera
	err := s.db.WithContext(ctx).Preload("Room").First(&cam, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find camera %d: %w", id, err)
	}
	return &cam, nil
}

// ActiveCameraRooms devolve o conjunto de room_id com câmera ativa.
func (s *GormStore) ActiveCameraRooms(ctx context.Context) (map[uint]bool, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&Camera{}).
		Where("status = ?", "active").
		Distinct().
		Pluck("room_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("active camera rooms: %w", err)
	}
	out := make(map[uint]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}
