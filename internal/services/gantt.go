package services

import (
	"fmt"
	"image/color"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/image/colornames"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	_ "gonum.org/v1/plot/vg/vgimg"

	"github.com/DevN0mad/SprintGantt/internal/models"
)

const barHeight = 0.8

// ChartOpts размер диаграммы в дюймах.
type ChartOpts struct {
	WidthInches  float64 `mapstructure:"width_inches" validate:"gt=0"`
	HeightInches float64 `mapstructure:"height_inches" validate:"gt=0"`
}

// ColorRule цвет полос для спринта или участника.
type ColorRule struct {
	Key   string `mapstructure:"key" validate:"required"`
	Color string `mapstructure:"color" validate:"required"`
}

// Palette сопоставляет спринтам и участникам цвета полос.
type Palette struct {
	colors   map[string]color.Color
	fallback color.Color
}

// NewPalette разбирает правила цветов, неизвестный ключ получает цвет по умолчанию.
func NewPalette(rules []ColorRule, fallback string) (*Palette, error) {
	fc, err := ParseColor(fallback)
	if err != nil {
		return nil, fmt.Errorf("default color: %w", err)
	}

	p := &Palette{colors: make(map[string]color.Color, len(rules)), fallback: fc}
	for _, r := range rules {
		c, err := ParseColor(r.Color)
		if err != nil {
			return nil, fmt.Errorf("color for %q: %w", r.Key, err)
		}
		p.colors[r.Key] = c
	}
	return p, nil
}

// Color возвращает цвет для ключа.
func (p *Palette) Color(key string) color.Color {
	if c, ok := p.colors[key]; ok {
		return c
	}
	return p.fallback
}

// ParseColor принимает имя цвета CSS или запись #RRGGBB.
func ParseColor(name string) (color.Color, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if strings.HasPrefix(name, "#") {
		if len(name) != 7 {
			return nil, fmt.Errorf("invalid hex color %q", name)
		}
		v, err := strconv.ParseUint(name[1:], 16, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid hex color %q: %w", name, err)
		}
		return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
	}
	if c, ok := colornames.Map[name]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("unknown color %q", name)
}

// GanttRenderer рисует диаграммы Ганта в PNG.
type GanttRenderer struct {
	logger *slog.Logger
}

// NewGanttRenderer создает рендерер диаграмм.
func NewGanttRenderer(logger *slog.Logger) *GanttRenderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &GanttRenderer{logger: logger}
}

// Render сохраняет диаграмму группы в path.
// Возвращает false, если в группе нет задач с датами и рисовать нечего.
func (r *GanttRenderer) Render(group models.Group, fill color.Color, size ChartOpts, path string) (bool, error) {
	start, end, ok := SprintWindow(group.Tasks)
	if !ok {
		r.logger.Debug("No dated tasks, chart skipped", "sheet", group.Name)
		return false, nil
	}

	bars := newGanttBars(group.Tasks, fill)

	p := plot.New()
	p.Title.Text = "Gantt Chart - " + group.Label
	p.X.Label.Text = "Date"
	p.Y.Label.Text = "Tasks"

	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01-02"}
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = text.XRight
	p.X.Tick.Label.YAlign = text.YCenter

	grid := plotter.NewGrid()
	grid.Horizontal.Width = 0
	p.Add(grid, bars)
	p.NominalY(bars.titles...)

	p.X.Min = unixSeconds(start)
	p.X.Max = unixSeconds(end)
	p.Y.Min = -0.5
	p.Y.Max = float64(len(bars.titles)) - 0.5

	w := vg.Length(size.WidthInches) * vg.Inch
	h := vg.Length(size.HeightInches) * vg.Inch
	if err := p.Save(w, h, path); err != nil {
		r.logger.Error("Failed to save chart", "path", path, "error", err)
		return false, fmt.Errorf("save chart %q: %w", path, err)
	}

	r.logger.Debug("Chart saved", "sheet", group.Name, "path", path, "bars", len(bars.bars))
	return true, nil
}

// ganttBar одна полоса: строка оси Y и интервал в секундах unix.
type ganttBar struct {
	row        int
	start, end float64
}

// ganttBars реализует plot.Plotter и plot.DataRanger.
type ganttBars struct {
	titles  []string
	bars    []ganttBar
	fill    color.Color
	outline draw.LineStyle
}

// newGanttBars раскладывает задачи по строкам; одинаковые названия делят строку.
func newGanttBars(tasks []models.Task, fill color.Color) *ganttBars {
	b := &ganttBars{
		fill:    fill,
		outline: draw.LineStyle{Color: color.Black, Width: vg.Points(1)},
	}
	rows := make(map[string]int)
	for _, t := range tasks {
		if !t.Dated() {
			continue
		}
		row, ok := rows[t.Title]
		if !ok {
			row = len(b.titles)
			rows[t.Title] = row
			b.titles = append(b.titles, t.Title)
		}
		b.bars = append(b.bars, ganttBar{
			row:   row,
			start: unixSeconds(*t.Start),
			end:   unixSeconds(t.Start.AddDate(0, 0, t.Duration())),
		})
	}
	return b
}

func (b *ganttBars) Plot(c draw.Canvas, plt *plot.Plot) {
	trX, trY := plt.Transforms(&c)
	for _, bar := range b.bars {
		x0, x1 := trX(bar.start), trX(bar.end)
		y0 := trY(float64(bar.row) - barHeight/2)
		y1 := trY(float64(bar.row) + barHeight/2)

		pts := []vg.Point{{X: x0, Y: y0}, {X: x0, Y: y1}, {X: x1, Y: y1}, {X: x1, Y: y0}}
		c.FillPolygon(b.fill, c.ClipPolygonXY(pts))
		c.StrokeLines(b.outline, c.ClipLinesXY(append(pts, pts[0]))...)
	}
}

func (b *ganttBars) DataRange() (xmin, xmax, ymin, ymax float64) {
	xmin, xmax = math.Inf(1), math.Inf(-1)
	for _, bar := range b.bars {
		xmin = math.Min(xmin, bar.start)
		xmax = math.Max(xmax, bar.end)
	}
	return xmin, xmax, -barHeight / 2, float64(len(b.titles)-1) + barHeight/2
}

func unixSeconds(t time.Time) float64 {
	return float64(t.Unix())
}
