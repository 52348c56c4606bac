package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/DevN0mad/SprintGantt/internal/models"
)

// ReportKind вид отчета.
type ReportKind string

const (
	// KindSprint листы по спринтам.
	KindSprint ReportKind = "sprint"
	// KindAssignee листы по участникам и спринтам.
	KindAssignee ReportKind = "assignee"
)

// ParseKind разбирает вид отчета из строки.
func ParseKind(s string) (ReportKind, error) {
	switch k := ReportKind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindSprint, KindAssignee:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Workbook возвращает имя файла книги для вида отчета.
func (k ReportKind) Workbook() string {
	if k == KindAssignee {
		return "gantt_chart_export_by_assignee_and_sprint.xlsx"
	}
	return "gantt_chart_export_with_sprint_tables.xlsx"
}

// ReportOpts параметры необходимые для генерации отчетов.
type ReportOpts struct {
	InputPath       string      `mapstructure:"input_path"`
	OutputDir       string      `mapstructure:"output_dir" validate:"required"`
	DateLayout      string      `mapstructure:"date_layout" validate:"required"`
	UnassignedLabel string      `mapstructure:"unassigned_label" validate:"required"`
	TeamLabel       string      `mapstructure:"team_label" validate:"required"`
	NoSprintLabel   string      `mapstructure:"no_sprint_label" validate:"required"`
	AssigneeAliases []Alias     `mapstructure:"assignee_aliases" validate:"dive"`
	TeamMembers     []string    `mapstructure:"team_members" validate:"dive,required"`
	SprintColors    []ColorRule `mapstructure:"sprint_colors" validate:"dive"`
	MemberColors    []ColorRule `mapstructure:"member_colors" validate:"dive"`
	DefaultColor    string      `mapstructure:"default_color" validate:"required"`
	SprintChart     ChartOpts   `mapstructure:"sprint_chart"`
	AssigneeChart   ChartOpts   `mapstructure:"assignee_chart"`
}

// DefaultReportOpts значения соответствуют выгрузке GitHub Projects.
func DefaultReportOpts() ReportOpts {
	return ReportOpts{
		OutputDir:       ".",
		DateLayout:      "Jan 2, 2006",
		UnassignedLabel: "None",
		TeamLabel:       "Team",
		NoSprintLabel:   "No Sprint",
		DefaultColor:    "gray",
		SprintChart:     ChartOpts{WidthInches: 25, HeightInches: 15},
		AssigneeChart:   ChartOpts{WidthInches: 14, HeightInches: 10},
	}
}

// RunRecorder сохраняет историю запусков.
type RunRecorder interface {
	SaveRun(ctx context.Context, res *models.ExportResult) error
}

// ReportService строит отчеты с диаграммами Ганта из выгрузки задач.
type ReportService struct {
	opts         ReportOpts
	loader       *Loader
	renderer     *GanttRenderer
	sprintColors *Palette
	memberColors *Palette
	recorder     RunRecorder
	logger       *slog.Logger
	now          func() time.Time
}

// NewReportService создает сервис отчетов. recorder может быть nil.
func NewReportService(opts ReportOpts, recorder RunRecorder, logger *slog.Logger) (*ReportService, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sprintColors, err := NewPalette(opts.SprintColors, opts.DefaultColor)
	if err != nil {
		return nil, fmt.Errorf("sprint colors: %w", err)
	}
	memberColors, err := NewPalette(opts.MemberColors, opts.DefaultColor)
	if err != nil {
		return nil, fmt.Errorf("member colors: %w", err)
	}

	return &ReportService{
		opts:         opts,
		loader:       NewLoader(opts, logger),
		renderer:     NewGanttRenderer(logger),
		sprintColors: sprintColors,
		memberColors: memberColors,
		recorder:     recorder,
		logger:       logger,
		now:          time.Now,
	}, nil
}

// InputPath путь к выгрузке из настроек.
func (s *ReportService) InputPath() string {
	return s.opts.InputPath
}

// Generate строит отчет по выгрузке из настроек.
func (s *ReportService) Generate(ctx context.Context, kind ReportKind) (*models.ExportResult, error) {
	tasks, err := s.loader.LoadFile(s.opts.InputPath)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	return s.build(ctx, kind, tasks)
}

// GenerateFrom строит отчет по переданной выгрузке.
func (s *ReportService) GenerateFrom(ctx context.Context, kind ReportKind, r io.Reader) (*models.ExportResult, error) {
	tasks, err := s.loader.Load(r)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	return s.build(ctx, kind, tasks)
}

func (s *ReportService) build(ctx context.Context, kind ReportKind, tasks []models.Task) (*models.ExportResult, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}

	now := s.now()
	dir := filepath.Join(s.opts.OutputDir, "export_"+now.Format("2006-01-02"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.logger.Error("Failed to create export dir", "dir", dir, "error", err)
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	wb, err := NewWorkbook(s.logger)
	if err != nil {
		return nil, err
	}

	var (
		groups  []models.Group
		palette *Palette
		size    ChartOpts
		members []string
	)
	switch kind {
	case KindSprint:
		groups = GroupBySprint(tasks)
		palette, size = s.sprintColors, s.opts.SprintChart
	case KindAssignee:
		tasks = RelabelUnassigned(tasks, s.opts.UnassignedLabel, s.opts.TeamLabel)
		members = s.opts.TeamMembers
		if len(members) == 0 {
			members = MembersFromTasks(tasks, s.opts.TeamLabel)
		}
		groups = GroupByAssignee(tasks, members, s.logger)
		palette, size = s.memberColors, s.opts.AssigneeChart
	}

	s.logger.Info("Creating Excel file", "kind", kind, "tasks", len(tasks), "sheets", len(groups))

	res := &models.ExportResult{
		ID:         uuid.NewString(),
		Kind:       string(kind),
		Dir:        dir,
		Workbook:   filepath.Join(dir, kind.Workbook()),
		Rows:       len(tasks),
		TotalHours: TotalHours(tasks),
		CreatedAt:  now,
	}

	images := make(map[string]bool)
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			wb.Close()
			return nil, err
		}

		key := g.Sprint
		if kind == KindAssignee {
			key = g.Member
		}
		image := filepath.Join(dir, "gantt_chart_"+uniqueFileName(images, fileSafe(g.Name))+".png")
		drawn, err := s.renderer.Render(g, palette.Color(key), size, image)
		if err != nil {
			wb.Close()
			return nil, err
		}
		if !drawn {
			image = ""
		}

		summary, err := wb.AddTaskSheet(g, image, kind == KindSprint)
		if err != nil {
			wb.Close()
			return nil, err
		}
		res.Sheets = append(res.Sheets, summary)
	}

	switch kind {
	case KindSprint:
		err = wb.AddStatusSummary(CountStatuses(tasks))
	case KindAssignee:
		err = wb.AddMemberSummary(MemberSummary(tasks, members))
	}
	if err != nil {
		wb.Close()
		return nil, err
	}

	if err := wb.Save(res.Workbook); err != nil {
		return nil, err
	}
	if err := writeManifest(res); err != nil {
		return nil, err
	}

	if s.recorder != nil {
		if err := s.recorder.SaveRun(ctx, res); err != nil {
			s.logger.Error("Failed to record export run", "id", res.ID, "error", err)
			return nil, fmt.Errorf("record run: %w", err)
		}
	}

	s.logger.Info("Report generated", "kind", kind, "workbook", res.Workbook, "sheets", len(res.Sheets), "rows", res.Rows)
	return res, nil
}

// writeManifest сохраняет описание результата рядом с книгой.
func writeManifest(res *models.ExportResult) error {
	data, err := yaml.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	path := strings.TrimSuffix(res.Workbook, filepath.Ext(res.Workbook)) + ".manifest.yaml"
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest %q: %w", path, err)
	}
	return nil
}

// uniqueFileName добавляет суффикс ~N, если имя уже занято.
// Сравнение без учета регистра: файловая система может его не различать.
func uniqueFileName(used map[string]bool, name string) string {
	candidate := name
	for i := 2; used[strings.ToLower(candidate)]; i++ {
		candidate = fmt.Sprintf("%s~%d", name, i)
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}

// fileSafe заменяет символы, недопустимые в имени файла.
func fileSafe(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, name)
}
