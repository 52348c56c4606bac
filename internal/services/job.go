package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DevN0mad/SprintGantt/internal/models"
)

// Reporter генерирует отчет по выгрузке из настроек.
type Reporter interface {
	Generate(ctx context.Context, kind ReportKind) (*models.ExportResult, error)
}

// FileSender доставляет файл отчета.
type FileSender interface {
	SendFile(ctx context.Context, path string) error
}

// DailyJobOpts параметры необходимые для работы сервиса.
type DailyJobOpts struct {
	Enabled bool     `mapstructure:"enabled"`
	Kinds   []string `mapstructure:"kinds" validate:"required_if=Enabled true,dive,oneof=sprint assignee"`
	Hour    int      `mapstructure:"hour" validate:"min=0,max=23"`
	Minute  int      `mapstructure:"minute" validate:"min=0,max=59"`
}

// DailyJobService каждый день в заданное время строит отчеты и отправляет их.
type DailyJobService struct {
	reporter Reporter
	sender   FileSender
	kinds    []ReportKind
	hour     int
	minute   int
	timezone *time.Location
	logger   *slog.Logger
	now      func() time.Time
}

// NewDailyJobService создаёт сервис для ежедневной генерации и отправки отчетов.
func NewDailyJobService(
	reporter Reporter,
	sender FileSender,
	opts DailyJobOpts,
	logger *slog.Logger,
) (*DailyJobService, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if reporter == nil {
		return nil, fmt.Errorf("reporter is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("file sender is required")
	}

	kinds := make([]ReportKind, 0, len(opts.Kinds))
	for _, k := range opts.Kinds {
		kind, err := ParseKind(k)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, kind)
	}
	if len(kinds) == 0 {
		kinds = []ReportKind{KindSprint}
	}

	logger.Info("Daily job configured",
		"hour", opts.Hour,
		"minute", opts.Minute,
		"timezone", time.Local.String(),
		"kinds", opts.Kinds)

	return &DailyJobService{
		reporter: reporter,
		sender:   sender,
		kinds:    kinds,
		hour:     opts.Hour,
		minute:   opts.Minute,
		timezone: time.Local,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Start запускает ежедневный цикл.
func (d *DailyJobService) Start(ctx context.Context) {
	nextRun := d.nextRunTime(d.now())
	timer := time.NewTimer(time.Until(nextRun))
	d.logger.Info("Next run scheduled", "at", nextRun.Format(time.RFC3339))

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Shutdown requested")
			timer.Stop()
			return
		case <-timer.C:
			if err := d.RunOnce(ctx); err != nil {
				d.logger.Error("Daily report failed", "error", err)
			} else {
				d.logger.Info("Daily report sent successfully")
			}

			nextRun = d.nextRunTime(d.now())
			timer.Reset(time.Until(nextRun))
			d.logger.Info("Next run scheduled", "at", nextRun.Format(time.RFC3339))
		}
	}
}

// RunOnce строит все настроенные отчеты и отправляет книги.
func (d *DailyJobService) RunOnce(ctx context.Context) error {
	for _, kind := range d.kinds {
		res, err := d.reporter.Generate(ctx, kind)
		if err != nil {
			return fmt.Errorf("generate %s report: %w", kind, err)
		}
		if err := d.sender.SendFile(ctx, res.Workbook); err != nil {
			return fmt.Errorf("send %s report: %w", kind, err)
		}
	}
	return nil
}

// nextRunTime вычисляет ближайшее время запуска после now.
func (d *DailyJobService) nextRunTime(now time.Time) time.Time {
	now = now.In(d.timezone)
	today := time.Date(now.Year(), now.Month(), now.Day(), d.hour, d.minute, 0, 0, d.timezone)

	if now.After(today) {
		return today.AddDate(0, 0, 1)
	}
	return today
}
