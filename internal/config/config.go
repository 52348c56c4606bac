package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/DevN0mad/SprintGantt/internal/server"
	"github.com/DevN0mad/SprintGantt/internal/services"
	"github.com/DevN0mad/SprintGantt/internal/storage"
)

// EnvPrefix префикс переменных окружения с секретами.
const EnvPrefix = "GANTT"

// Config представляет конфигурацию приложения.
type Config struct {
	Report      services.ReportOpts    `mapstructure:"report"`
	TelegramBot services.TelegramOpts  `mapstructure:"telegram_bot"`
	DailyJob    services.DailyJobOpts  `mapstructure:"daily_job"`
	Watcher     services.WatcherOpts   `mapstructure:"watcher"`
	Storage     storage.StorageOpts    `mapstructure:"storage"`
	HttpServer  server.AdminServerOpts `mapstructure:"http_server"`
}

// Secrets значения, которые можно передать через окружение вместо файла.
type Secrets struct {
	TelegramToken string `envconfig:"TELEGRAM_TOKEN"`
	AuthSecret    string `envconfig:"AUTH_SECRET"`
	InputPath     string `envconfig:"INPUT_PATH"`
}

// Default конфигурация без файла.
func Default() Config {
	return Config{
		Report:  services.DefaultReportOpts(),
		Storage: storage.StorageOpts{Path: "data/sprint_gantt.db"},
		DailyJob: services.DailyJobOpts{
			Kinds: []string{string(services.KindSprint)},
			Hour:  9,
		},
		HttpServer: server.AdminServerOpts{
			Address:             ":8080",
			ReadTimeoutSeconds:  15,
			WriteTimeoutSeconds: 60,
			IdleTimeoutSeconds:  60,
		},
	}
}

// LoadSecrets читает .env (если он есть) и переменные окружения GANTT_*.
func LoadSecrets() (Secrets, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Secrets{}, fmt.Errorf("load .env: %w", err)
	}
	var s Secrets
	if err := envconfig.Process(EnvPrefix, &s); err != nil {
		return Secrets{}, fmt.Errorf("process env: %w", err)
	}
	return s, nil
}

// Apply переопределяет значения конфигурации непустыми секретами.
func (s Secrets) Apply(cfg *Config) {
	if s.TelegramToken != "" {
		cfg.TelegramBot.Token = s.TelegramToken
	}
	if s.AuthSecret != "" {
		cfg.HttpServer.AuthSecret = s.AuthSecret
	}
	if s.InputPath != "" {
		cfg.Report.InputPath = s.InputPath
	}
}

// Load читает конфигурацию один раз. Пустой path означает значения по умолчанию.
func Load(path string) (Config, error) {
	v, err := newViper(path)
	if err != nil {
		return Config{}, err
	}
	return decode(v, validator.New())
}

func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v, Default())
	if path == "" {
		return v, nil
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	return v, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("report.output_dir", d.Report.OutputDir)
	v.SetDefault("report.date_layout", d.Report.DateLayout)
	v.SetDefault("report.unassigned_label", d.Report.UnassignedLabel)
	v.SetDefault("report.team_label", d.Report.TeamLabel)
	v.SetDefault("report.no_sprint_label", d.Report.NoSprintLabel)
	v.SetDefault("report.default_color", d.Report.DefaultColor)
	v.SetDefault("report.sprint_chart.width_inches", d.Report.SprintChart.WidthInches)
	v.SetDefault("report.sprint_chart.height_inches", d.Report.SprintChart.HeightInches)
	v.SetDefault("report.assignee_chart.width_inches", d.Report.AssigneeChart.WidthInches)
	v.SetDefault("report.assignee_chart.height_inches", d.Report.AssigneeChart.HeightInches)
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("daily_job.kinds", d.DailyJob.Kinds)
	v.SetDefault("daily_job.hour", d.DailyJob.Hour)
	v.SetDefault("http_server.address", d.HttpServer.Address)
	v.SetDefault("http_server.read_timeout_seconds", d.HttpServer.ReadTimeoutSeconds)
	v.SetDefault("http_server.write_timeout_seconds", d.HttpServer.WriteTimeoutSeconds)
	v.SetDefault("http_server.idle_timeout_seconds", d.HttpServer.IdleTimeoutSeconds)
}

func decode(v *viper.Viper, validate *validator.Validate) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	secrets, err := LoadSecrets()
	if err != nil {
		return Config{}, err
	}
	secrets.Apply(&cfg)

	if err := validate.Struct(&cfg); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Manager управляет конфигурацией приложения, обеспечивая загрузку,
// проверку и горячую перезагрузку.
type Manager struct {
	mu          sync.RWMutex
	cfg         *Config
	logger      *slog.Logger
	v           *viper.Viper
	subscribers []func(Config)
	validate    *validator.Validate
}

// NewManager создает новый менеджер конфигурации, загружая конфигурацию из указанного пути.
func NewManager(path string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return nil, fmt.Errorf("config path is required")
	}

	v, err := newViper(path)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		logger:   logger,
		v:        v,
		validate: validator.New(),
	}

	cfg, err := decode(v, m.validate)
	if err != nil {
		logger.Error("Load config", "error", err)
		return nil, err
	}
	m.cfg = &cfg

	logger.Info("Config loaded", "path", path)

	v.OnConfigChange(func(e fsnotify.Event) {
		logger.Info("Config file changed", "name", e.Name, "op", e.Op.String())

		newCfg, err := decode(v, m.validate)
		if err != nil {
			logger.Error("Failed to reload config", "error", err)
			return
		}

		m.mu.Lock()
		m.cfg = &newCfg
		subs := append([]func(Config){}, m.subscribers...)
		m.mu.Unlock()

		logger.Info("Config reloaded successfully")

		for _, fn := range subs {
			fn(newCfg)
		}
	})
	v.WatchConfig()

	return m, nil
}

// Current возвращает текущую конфигурацию.
func (m *Manager) Current() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.cfg
}

// OnChange регистрирует функцию обратного вызова, которая будет вызвана при изменении конфигурации.
func (m *Manager) OnChange(fn func(Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}
