package services

import (
	"fmt"
	_ "image/png"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/DevN0mad/SprintGantt/internal/models"
)

// Листы сводок.
const (
	StatusSummarySheet = "Overall Status Summary"
	MemberSummarySheet = "Member Summary"
)

// taskHeaders заголовки листа с задачами, колонки A:H.
var taskHeaders = []string{
	ColTask, ColAssignees, ColStartDate, ColEndDate, ColSprint, ColStatus, ColHoursCompleted, ColCorrectiveAction,
}

// taskColumnWidths ширина колонок A:H листа с задачами.
var taskColumnWidths = []float64{40, 40, 25, 25, 12, 12, 15, 30}

type workbookStyles struct {
	header    int
	border    int
	date      int
	highlight int
	todo      int
}

// Workbook книга Excel отчета с общими стилями.
type Workbook struct {
	f      *excelize.File
	styles workbookStyles
	sheets []string
	logger *slog.Logger
}

// NewWorkbook создает пустую книгу и регистрирует стили отчета.
func NewWorkbook(logger *slog.Logger) (*Workbook, error) {
	if logger == nil {
		logger = slog.Default()
	}

	f := excelize.NewFile()
	styles, err := newWorkbookStyles(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create styles: %w", err)
	}

	return &Workbook{f: f, styles: styles, logger: logger}, nil
}

func newWorkbookStyles(f *excelize.File) (workbookStyles, error) {
	var st workbookStyles
	border := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
	dateFmt := "mm/dd/yyyy"

	var err error
	if st.header, err = f.NewStyle(&excelize.Style{
		Border:    border,
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	}); err != nil {
		return st, err
	}
	if st.border, err = f.NewStyle(&excelize.Style{Border: border}); err != nil {
		return st, err
	}
	if st.date, err = f.NewStyle(&excelize.Style{Border: border, CustomNumFmt: &dateFmt}); err != nil {
		return st, err
	}
	if st.highlight, err = f.NewStyle(&excelize.Style{
		Border: border,
		Fill:   excelize.Fill{Type: "pattern", Color: []string{"FFFF00"}, Pattern: 1},
		Font:   &excelize.Font{Bold: true},
	}); err != nil {
		return st, err
	}
	if st.todo, err = f.NewConditionalStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"D0D8B3"}, Pattern: 1},
	}); err != nil {
		return st, err
	}
	return st, nil
}

// Sheets возвращает имена добавленных листов по порядку.
func (w *Workbook) Sheets() []string {
	return append([]string(nil), w.sheets...)
}

// addSheet переименовывает лист по умолчанию для первого листа, остальные создает.
func (w *Workbook) addSheet(name string) error {
	if len(w.sheets) == 0 {
		if err := w.f.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename default sheet to %q: %w", name, err)
		}
	} else if _, err := w.f.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %q: %w", name, err)
	}
	w.sheets = append(w.sheets, name)
	return nil
}

// AddTaskSheet записывает лист с задачами группы, итог по часам и диаграмму.
func (w *Workbook) AddTaskSheet(group models.Group, image string, statusCounts bool) (models.SheetSummary, error) {
	sheet := group.Name
	if err := w.addSheet(sheet); err != nil {
		return models.SheetSummary{}, err
	}

	header := make([]interface{}, len(taskHeaders))
	for i, h := range taskHeaders {
		header[i] = h
	}
	if err := w.f.SetSheetRow(sheet, "A1", &header); err != nil {
		return models.SheetSummary{}, fmt.Errorf("write header of %q: %w", sheet, err)
	}

	for i, t := range group.Tasks {
		row := []interface{}{
			t.Title, t.Assignees, dateValue(t.Start), dateValue(t.End),
			t.Sprint, t.Status, t.HoursCompleted, t.CorrectiveAction,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := w.f.SetSheetRow(sheet, cell, &row); err != nil {
			return models.SheetSummary{}, fmt.Errorf("write row %d of %q: %w", i+2, sheet, err)
		}
	}

	for i, width := range taskColumnWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := w.f.SetColWidth(sheet, col, col, width); err != nil {
			return models.SheetSummary{}, fmt.Errorf("set width of %s in %q: %w", col, sheet, err)
		}
	}

	rows := len(group.Tasks)
	last := rows + 1
	if err := w.f.SetCellStyle(sheet, "A1", "H1", w.styles.header); err != nil {
		return models.SheetSummary{}, fmt.Errorf("style header of %q: %w", sheet, err)
	}
	if rows > 0 {
		if err := w.styleTaskRows(sheet, last); err != nil {
			return models.SheetSummary{}, err
		}
	}

	total := TotalHours(group.Tasks)
	totalRow := rows + 2
	if err := w.writeHighlighted(sheet, totalRow, "Total Hours", total); err != nil {
		return models.SheetSummary{}, err
	}

	if statusCounts {
		counts := CountStatuses(group.Tasks)
		lines := []struct {
			label string
			value int
		}{
			{"TODO Count", counts.Todo},
			{"In Progress Count", counts.InProgress},
			{"Done Count", counts.Done},
		}
		for i, line := range lines {
			if err := w.writeHighlighted(sheet, totalRow+2+i, line.label, line.value); err != nil {
				return models.SheetSummary{}, err
			}
		}
	}

	if image != "" {
		if err := w.f.AddPicture(sheet, "I2", image, &excelize.GraphicOptions{AltText: group.Label}); err != nil {
			w.logger.Error("Failed to insert chart", "sheet", sheet, "image", image, "error", err)
			return models.SheetSummary{}, fmt.Errorf("insert chart into %q: %w", sheet, err)
		}
	}

	w.logger.Debug("Sheet written", "sheet", sheet, "rows", rows, "total_hours", total)
	return models.SheetSummary{Name: sheet, Rows: rows, TotalHours: total, Image: image}, nil
}

// styleTaskRows рамка вокруг ячеек, формат дат и подсветка строк "Todo".
func (w *Workbook) styleTaskRows(sheet string, last int) error {
	bottomRight := fmt.Sprintf("H%d", last)
	if err := w.f.SetCellStyle(sheet, "A2", bottomRight, w.styles.border); err != nil {
		return fmt.Errorf("style rows of %q: %w", sheet, err)
	}
	if err := w.f.SetCellStyle(sheet, "C2", fmt.Sprintf("D%d", last), w.styles.date); err != nil {
		return fmt.Errorf("style dates of %q: %w", sheet, err)
	}

	todo := w.styles.todo
	err := w.f.SetConditionalFormat(sheet, "A2:"+bottomRight, []excelize.ConditionalFormatOptions{
		{Type: "formula", Criteria: fmt.Sprintf(`$F2="%s"`, models.StatusTodo), Format: &todo},
	})
	if err != nil {
		return fmt.Errorf("highlight todo rows of %q: %w", sheet, err)
	}
	return nil
}

// writeHighlighted пишет подпись в колонку F и значение в колонку G.
func (w *Workbook) writeHighlighted(sheet string, row int, label string, value interface{}) error {
	labelCell := fmt.Sprintf("F%d", row)
	valueCell := fmt.Sprintf("G%d", row)
	if err := w.f.SetCellValue(sheet, labelCell, label); err != nil {
		return fmt.Errorf("write %q in %q: %w", label, sheet, err)
	}
	if err := w.f.SetCellValue(sheet, valueCell, value); err != nil {
		return fmt.Errorf("write %q value in %q: %w", label, sheet, err)
	}
	if err := w.f.SetCellStyle(sheet, labelCell, valueCell, w.styles.highlight); err != nil {
		return fmt.Errorf("style %q in %q: %w", label, sheet, err)
	}
	return nil
}

// AddStatusSummary добавляет лист со сводкой статусов по всем задачам.
func (w *Workbook) AddStatusSummary(counts models.StatusCounts) error {
	rows := [][]interface{}{
		{"Status", "Count"},
		{"TODO", counts.Todo},
		{"In Progress", counts.InProgress},
		{"Done", counts.Done},
	}
	return w.addTable(StatusSummarySheet, rows, 20)
}

// AddMemberSummary добавляет лист со статистикой по участникам.
func (w *Workbook) AddMemberSummary(stats []models.MemberStats) error {
	rows := [][]interface{}{
		{"Member", "Tasks", "Todo", "In Progress", "Done", "Total Hours"},
	}
	for _, s := range stats {
		rows = append(rows, []interface{}{s.Member, s.Tasks, s.Todo, s.InProgress, s.Done, s.TotalHours})
	}
	return w.addTable(MemberSummarySheet, rows, 20)
}

func (w *Workbook) addTable(sheet string, rows [][]interface{}, width float64) error {
	if err := w.addSheet(sheet); err != nil {
		return err
	}
	for i := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := w.f.SetSheetRow(sheet, cell, &rows[i]); err != nil {
			return fmt.Errorf("write row %d of %q: %w", i+1, sheet, err)
		}
	}

	lastCol, _ := excelize.ColumnNumberToName(len(rows[0]))
	if err := w.f.SetColWidth(sheet, "A", lastCol, width); err != nil {
		return fmt.Errorf("set widths in %q: %w", sheet, err)
	}
	if err := w.f.SetCellStyle(sheet, "A1", lastCol+"1", w.styles.header); err != nil {
		return fmt.Errorf("style header of %q: %w", sheet, err)
	}
	if len(rows) > 1 {
		bottomRight := fmt.Sprintf("%s%d", lastCol, len(rows))
		if err := w.f.SetCellStyle(sheet, "A2", bottomRight, w.styles.border); err != nil {
			return fmt.Errorf("style rows of %q: %w", sheet, err)
		}
	}
	return nil
}

// Save делает первый лист активным, сохраняет и закрывает книгу.
func (w *Workbook) Save(path string) error {
	w.f.SetActiveSheet(0)

	w.logger.Info("Saving Excel file", "path", path, "sheets", len(w.sheets))
	if err := w.f.SaveAs(path); err != nil {
		w.logger.Error("Failed to save Excel file", "path", path, "error", err)
		_ = w.f.Close()
		return fmt.Errorf("save workbook %q: %w", path, err)
	}
	return w.f.Close()
}

// Close освобождает книгу без сохранения.
func (w *Workbook) Close() error {
	return w.f.Close()
}

// dateValue пустая ячейка для отсутствующей даты.
func dateValue(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
