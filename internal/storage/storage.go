package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/DevN0mad/SprintGantt/internal/models"
)

// ErrRunNotFound запуск с таким идентификатором не найден.
var ErrRunNotFound = errors.New("export run not found")

// StorageOpts параметры хранилища.
type StorageOpts struct {
	Path string `mapstructure:"path" validate:"required"`
}

// ExportStorage хранит историю запусков и подписки чатов в sqlite.
type ExportStorage struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewExportStorage открывает базу и применяет миграции.
func NewExportStorage(dbPath string, logger *slog.Logger) (*ExportStorage, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Error("Failed to create db dir", "dir", dir, "error", err)
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		logger.Error("Failed to open sqlite db", "path", dbPath, "error", err)
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.AutoMigrate(&models.ExportRun{}, &models.Subscription{}); err != nil {
		logger.Error("Failed to auto-migrate models", "error", err)
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	logger.Info("Sqlite export storage initialized", "path", dbPath)

	return &ExportStorage{db: db, logger: logger}, nil
}

// SaveRun сохраняет результат запуска.
func (s *ExportStorage) SaveRun(ctx context.Context, res *models.ExportResult) error {
	run := models.NewExportRun(res)
	if err := s.db.WithContext(ctx).Create(&run).Error; err != nil {
		s.logger.Error("Failed to save export run", "id", run.ID, "error", err)
		return fmt.Errorf("save run: %w", err)
	}

	s.logger.Debug("Export run saved", "id", run.ID, "kind", run.Kind)
	return nil
}

// ListRuns возвращает последние запуски, новые первыми. limit <= 0 без ограничения.
func (s *ExportStorage) ListRuns(ctx context.Context, limit int) ([]models.ExportRun, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var runs []models.ExportRun
	if err := q.Find(&runs).Error; err != nil {
		s.logger.Error("Failed to list export runs", "error", err)
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// GetRun возвращает запуск по идентификатору.
func (s *ExportStorage) GetRun(ctx context.Context, id string) (*models.ExportRun, error) {
	var run models.ExportRun
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		s.logger.Error("Failed to load export run", "id", id, "error", err)
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &run, nil
}

// SaveChat подписывает чат на рассылку или обновляет его название.
func (s *ExportStorage) SaveChat(ctx context.Context, chatID int64, title string) error {
	db := s.db.WithContext(ctx)

	var sub models.Subscription
	err := db.Where("chat_id = ?", chatID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		sub = models.Subscription{ChatID: chatID, Title: title, SubscribedAt: time.Now()}
		if err := db.Create(&sub).Error; err != nil {
			s.logger.Error("Failed to create subscription", "chat_id", chatID, "error", err)
			return fmt.Errorf("create subscription: %w", err)
		}
		s.logger.Info("Chat subscribed", "chat_id", chatID, "title", title)
		return nil
	}
	if err != nil {
		s.logger.Error("Failed to load subscription", "chat_id", chatID, "error", err)
		return fmt.Errorf("load subscription: %w", err)
	}

	sub.Title = title
	if err := db.Save(&sub).Error; err != nil {
		s.logger.Error("Failed to update subscription", "chat_id", chatID, "error", err)
		return fmt.Errorf("update subscription: %w", err)
	}
	return nil
}

// RemoveChat отписывает чат.
func (s *ExportStorage) RemoveChat(ctx context.Context, chatID int64) error {
	if err := s.db.WithContext(ctx).Where("chat_id = ?", chatID).Delete(&models.Subscription{}).Error; err != nil {
		s.logger.Error("Failed to remove subscription", "chat_id", chatID, "error", err)
		return fmt.Errorf("remove subscription: %w", err)
	}

	s.logger.Info("Chat unsubscribed", "chat_id", chatID)
	return nil
}

// ListChats возвращает идентификаторы подписанных чатов.
func (s *ExportStorage) ListChats(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := s.db.WithContext(ctx).Model(&models.Subscription{}).Order("id").Pluck("chat_id", &ids).Error; err != nil {
		s.logger.Error("Failed to list subscriptions", "error", err)
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return ids, nil
}

// Close закрывает соединение с базой.
func (s *ExportStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	return sqlDB.Close()
}
