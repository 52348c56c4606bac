package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/DevN0mad/SprintGantt/internal/config"
	"github.com/DevN0mad/SprintGantt/internal/server"
	"github.com/DevN0mad/SprintGantt/internal/services"
	"github.com/DevN0mad/SprintGantt/internal/storage"
)

// App представляет основное приложение, управляющее сервисами.
type App struct {
	logger  *slog.Logger
	rootCtx context.Context

	mu             sync.Mutex
	store          *storage.ExportStorage
	storePath      string
	reports        *services.ReportService
	tg             *services.TelegramBotService
	dailyJob       *services.DailyJobService
	watcher        *services.InputWatcher
	adminSrv       *server.AdminServer
	adminDone      chan struct{}
	servicesCancel context.CancelFunc
}

// NewApp создает новый экземпляр приложения с заданным логгером и корневым контекстом.
func NewApp(ctx context.Context, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &App{
		logger:  logger,
		rootCtx: ctx,
	}
}

// ApplyConfig применяет конфигурацию к приложению, инициализируя/переинициализируя сервисы.
func (a *App) ApplyConfig(cfg config.Config) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.servicesCancel != nil {
		a.logger.Info("Stopping previous services")
		a.servicesCancel()
		a.servicesCancel = nil
		a.waitAdminStopped()
		if err := a.startServices(cfg); err != nil {
			a.reports, a.tg, a.dailyJob, a.watcher, a.adminSrv, a.adminDone = nil, nil, nil, nil, nil, nil
			a.logger.Error("Services are down until a valid configuration is applied", "error", err)
			return err
		}
		return nil
	}
	return a.startServices(cfg)
}

// startServices создает сервисы по конфигурации и запускает их; вызывается под a.mu.
func (a *App) startServices(cfg config.Config) error {
	if err := a.openStorage(cfg.Storage); err != nil {
		return err
	}

	reports, err := services.NewReportService(cfg.Report, a.store, a.logger)
	if err != nil {
		return fmt.Errorf("init report service: %w", err)
	}

	var tg *services.TelegramBotService
	if cfg.TelegramBot.Enabled {
		tg, err = services.NewTelegramBot(cfg.TelegramBot, a.store, reports, a.logger)
		if err != nil {
			return fmt.Errorf("init telegram bot: %w", err)
		}
	}

	var dailyJob *services.DailyJobService
	switch {
	case cfg.DailyJob.Enabled && tg == nil:
		a.logger.Warn("Daily job requires telegram bot, skipping")
	case cfg.DailyJob.Enabled:
		dailyJob, err = services.NewDailyJobService(reports, tg, cfg.DailyJob, a.logger)
		if err != nil {
			return fmt.Errorf("init daily job: %w", err)
		}
	}

	var watcher *services.InputWatcher
	if cfg.Watcher.Enabled {
		watcher, err = services.NewInputWatcher(cfg.Report.InputPath, cfg.Watcher, reports, a.logger)
		if err != nil {
			return fmt.Errorf("init input watcher: %w", err)
		}
	}

	adminSrv := server.NewAdminServer(a.logger, reports, a.store, &cfg.HttpServer)

	ctx, cancel := context.WithCancel(a.rootCtx)
	if tg != nil {
		go tg.Start(ctx)
	}
	if dailyJob != nil {
		go dailyJob.Start(ctx)
	}
	if watcher != nil {
		go func() {
			if err := watcher.Start(ctx); err != nil {
				a.logger.Error("Input watcher exited with error", "error", err)
			}
		}()
	}
	adminDone := make(chan struct{})
	go func() {
		defer close(adminDone)
		if err := adminSrv.Start(ctx); err != nil {
			a.logger.Error("Admin server exited with error", "error", err)
		}
	}()

	a.reports = reports
	a.tg = tg
	a.dailyJob = dailyJob
	a.watcher = watcher
	a.adminSrv = adminSrv
	a.adminDone = adminDone
	a.servicesCancel = cancel

	a.logger.Info("Services reinitialized successfully with configuration",
		"telegram", tg != nil,
		"daily_job", dailyJob != nil,
		"watcher", watcher != nil)
	return nil
}

// waitAdminStopped ждет освобождения адреса предыдущим сервером.
func (a *App) waitAdminStopped() {
	if a.adminDone == nil {
		return
	}
	select {
	case <-a.adminDone:
	case <-time.After(10 * time.Second):
		a.logger.Warn("Previous admin server did not stop in time")
	}
	a.adminDone = nil
}

// openStorage открывает хранилище, если путь к базе изменился.
func (a *App) openStorage(opts storage.StorageOpts) error {
	if a.store != nil && a.storePath == opts.Path {
		return nil
	}
	store, err := storage.NewExportStorage(opts.Path, a.logger)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("Failed to close previous storage", "error", err)
		}
	}
	a.store = store
	a.storePath = opts.Path
	return nil
}

// Shutdown останавливает все запущенные сервисы приложения.
func (a *App) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.servicesCancel != nil {
		a.logger.Info("Stopping services on shutdown")
		a.servicesCancel()
		a.servicesCancel = nil
		a.waitAdminStopped()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("Failed to close storage", "error", err)
		}
		a.store = nil
	}
}
