package services

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// WatcherOpts параметры наблюдения за файлом выгрузки.
type WatcherOpts struct {
	Enabled bool     `mapstructure:"enabled"`
	Kinds   []string `mapstructure:"kinds" validate:"dive,oneof=sprint assignee"`
}

// InputWatcher пересобирает отчеты при изменении файла выгрузки.
type InputWatcher struct {
	path     string
	kinds    []ReportKind
	reporter Reporter
	debounce time.Duration
	logger   *slog.Logger
}

// NewInputWatcher создает наблюдателя за файлом path.
func NewInputWatcher(path string, opts WatcherOpts, reporter Reporter, logger *slog.Logger) (*InputWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return nil, ErrNoInput
	}
	if reporter == nil {
		return nil, fmt.Errorf("reporter is required")
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
		kinds = []ReportKind{KindSprint, KindAssignee}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve input path: %w", err)
	}

	return &InputWatcher{
		path:     abs,
		kinds:    kinds,
		reporter: reporter,
		debounce: defaultDebounce,
		logger:   logger,
	}, nil
}

// Start следит за каталогом выгрузки до отмены контекста.
// Файл выгрузки может заменяться целиком, поэтому наблюдение идет за каталогом.
func (w *InputWatcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		w.logger.Error("Failed to watch input dir", "dir", dir, "error", err)
		return fmt.Errorf("watch %q: %w", dir, err)
	}
	w.logger.Info("Watching input file", "path", w.path)

	fire := make(chan struct{}, 1)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Input watcher stopped")
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(w.debounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			} else {
				timer.Reset(w.debounce)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("Watcher error", "error", err)
		case <-fire:
			w.regenerate(ctx)
		}
	}
}

func (w *InputWatcher) regenerate(ctx context.Context) {
	w.logger.Info("Input changed, regenerating reports", "path", w.path)
	for _, kind := range w.kinds {
		if _, err := w.reporter.Generate(ctx, kind); err != nil {
			w.logger.Error("Regeneration failed", "kind", kind, "error", err)
		}
	}
}
