// internal/store/migrate.go
package store

import (
	"context"
	"fmt"
	"regexp"

	"gorm.io/gorm/clause"

	"github.com/sua-org/nursecall-bus/internal/core"
)

var dbNameRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// DefaultColors usadas pelo painel quando a tabela está vazia.
var DefaultColors = map[string]string{
	"Call":             "#f59e0b",
	"Accept":           "#3b82f6",
	"Cancel":           "#6b7280",
	"Presence":         "#10b981",
	"Reset":            "#9ca3af",
	"ROOM SERVICE":     "#8b5cf6",
	"Doctor Present":   "#14b8a6",
	"Present":          "#22c55e",
	"CATERING SERVICE": "#a855f7",
	"Alarm":            "#ef4444",
	"Assistance":       "#f97316",
	"LowBattery":       "#eab308",
	"Emergency":        "#dc2626",
	"Isolate":          "#0ea5e9",
}

func (s *GormStore) AutoMigrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// DropAll remove as tabelas em ordem inversa de dependência.
func (s *GormStore) DropAll(ctx context.Context) error {
	models := AllModels()
	m := s.db.WithContext(ctx).Migrator()
	for i := len(models) - 1; i >= 0; i-- {
		if err := m.DropTable(models[i]); err != nil {
			return fmt.Errorf("drop table: %w", err)
		}
	}
	return nil
}

// CreateDatabase exige uma conexão aberta via OpenServer.
func (s *GormStore) CreateDatabase(ctx context.Context, name string) error {
	if !dbNameRe.MatchString(name) {
		return fmt.Errorf("invalid database name %q", name)
	}
	sql := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s` CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci", name)
	return s.db.WithContext(ctx).Exec(sql).Error
}

func (s *GormStore) DropDatabase(ctx context.Context, name string) error {
	if !dbNameRe.MatchString(name) {
		return fmt.Errorf("invalid database name %q", name)
	}
	return s.db.WithContext(ctx).Exec(fmt.Sprintf("DROP DATABASE IF EXISTS `%s`", name)).Error
}

// SeedColors insere as cores padrão sem sobrescrever as existentes.
func (s *GormStore) SeedColors(ctx context.Context) error {
	rows := make([]ColorScheme, 0, len(DefaultColors))
	for _, kw := range core.EventKeywords {
		rows = append(rows, ColorScheme{EventType: kw, Color: DefaultColors[kw]})
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
}
