package services

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/DevN0mad/SprintGantt/internal/models"
)

// Колонки выгрузки после переименования.
const (
	ColTask             = "Task"
	ColAssignees        = "Assignees"
	ColStartDate        = "Start date"
	ColEndDate          = "End date"
	ColSprint           = "Sprint"
	ColStatus           = "Status"
	ColHoursCompleted   = "Hours Completed"
	ColCorrectiveAction = "Corrective Action"
)

// headerAliases старые названия колонок, которые встречаются в выгрузках.
var headerAliases = map[string]string{
	"Title":     ColTask,
	"Iteration": ColSprint,
}

var requiredColumns = []string{
	ColTask, ColAssignees, ColStartDate, ColEndDate, ColSprint, ColStatus, ColHoursCompleted,
}

// Alias сопоставление логина исполнителя и отображаемого имени.
type Alias struct {
	Login string `mapstructure:"login" validate:"required"`
	Name  string `mapstructure:"name" validate:"required"`
}

// Loader читает выгрузку задач в формате TSV и нормализует колонки.
type Loader struct {
	layout     string
	unassigned string
	noSprint   string
	replacer   *strings.Replacer
	logger     *slog.Logger
}

// NewLoader создает загрузчик выгрузки по параметрам отчета.
func NewLoader(opts ReportOpts, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}

	aliases := append([]Alias(nil), opts.AssigneeAliases...)
	// длинные логины заменяются раньше, чтобы не задеть их префиксы
	sort.SliceStable(aliases, func(i, j int) bool {
		return len(aliases[i].Login) > len(aliases[j].Login)
	})
	pairs := make([]string, 0, len(aliases)*2)
	for _, a := range aliases {
		pairs = append(pairs, a.Login, a.Name)
	}

	return &Loader{
		layout:     opts.DateLayout,
		unassigned: opts.UnassignedLabel,
		noSprint:   opts.NoSprintLabel,
		replacer:   strings.NewReplacer(pairs...),
		logger:     logger,
	}
}

// LoadFile читает выгрузку с диска.
func (l *Loader) LoadFile(path string) ([]models.Task, error) {
	if path == "" {
		return nil, ErrNoInput
	}

	f, err := os.Open(path)
	if err != nil {
		l.logger.Error("Failed to open input", "path", path, "error", err)
		return nil, fmt.Errorf("open input %q: %w", path, err)
	}
	defer f.Close()

	tasks, err := l.Load(f)
	if err != nil {
		return nil, fmt.Errorf("load %q: %w", path, err)
	}
	return tasks, nil
}

// Load читает выгрузку, нормализует строки и сортирует их по дате окончания.
func (l *Loader) Load(r io.Reader) ([]models.Task, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty input", ErrMissingColumn)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	index, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var tasks []models.Task
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", line, err)
		}
		if isBlank(record) {
			continue
		}
		if len(record) > len(header) {
			return nil, fmt.Errorf("row %d: %d fields, header has %d", line, len(record), len(header))
		}

		task, err := l.parseRow(line, record, index)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i].End, tasks[j].End
		if a == nil || b == nil {
			return a != nil && b == nil
		}
		return a.Before(*b)
	})

	l.logger.Info("Input loaded", "rows", len(tasks))
	return tasks, nil
}

func (l *Loader) parseRow(line int, record []string, index map[string]int) (models.Task, error) {
	get := func(col string) string {
		i := index[col]
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	start, err := l.parseDate(get(ColStartDate))
	if err != nil {
		return models.Task{}, fmt.Errorf("row %d, column %q: %w", line, ColStartDate, err)
	}
	end, err := l.parseDate(get(ColEndDate))
	if err != nil {
		return models.Task{}, fmt.Errorf("row %d, column %q: %w", line, ColEndDate, err)
	}
	if start != nil && end != nil && end.Before(*start) {
		return models.Task{}, fmt.Errorf("row %d: %w", line, ErrNegativeDuration)
	}

	hours := 0.0
	if raw := get(ColHoursCompleted); raw != "" {
		hours, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			return models.Task{}, fmt.Errorf("row %d, column %q: %w: %q", line, ColHoursCompleted, ErrInvalidHours, raw)
		}
	}

	assignees := get(ColAssignees)
	if assignees == "" {
		assignees = l.unassigned
	}

	sprint := get(ColSprint)
	if sprint == "" {
		sprint = l.noSprint
	}

	return models.Task{
		Title:          get(ColTask),
		Assignees:      l.replacer.Replace(assignees),
		Start:          start,
		End:            end,
		Sprint:         sprint,
		Status:         get(ColStatus),
		HoursCompleted: hours,
	}, nil
}

func (l *Loader) parseDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(l.layout, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return &t, nil
}

// columnIndex строит индекс колонок с учетом старых названий.
func columnIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if alias, ok := headerAliases[name]; ok {
			if _, exists := index[alias]; exists {
				continue
			}
			name = alias
		}
		index[name] = i
	}

	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingColumn, col)
		}
	}
	return index, nil
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
