package models

import "time"

// SheetSummary описывает записанный лист.
type SheetSummary struct {
	Name       string  `json:"name" yaml:"name"`
	Rows       int     `json:"rows" yaml:"rows"`
	TotalHours float64 `json:"total_hours" yaml:"total_hours"`
	Image      string  `json:"image,omitempty" yaml:"image,omitempty"`
}

// ExportResult результат одного запуска генерации отчета.
type ExportResult struct {
	ID         string         `json:"id" yaml:"id"`
	Kind       string         `json:"kind" yaml:"kind"`
	Dir        string         `json:"dir" yaml:"dir"`
	Workbook   string         `json:"workbook" yaml:"workbook"`
	Rows       int            `json:"rows" yaml:"rows"`
	TotalHours float64        `json:"total_hours" yaml:"total_hours"`
	Sheets     []SheetSummary `json:"sheets" yaml:"sheets"`
	CreatedAt  time.Time      `json:"created_at" yaml:"created_at"`
}

// ExportRun запись истории запусков в базе.
type ExportRun struct {
	ID         string    `gorm:"column:id;primaryKey" db:"id" json:"id"`
	Kind       string    `gorm:"column:kind;index;not null" db:"kind" json:"kind"`
	Dir        string    `gorm:"column:dir;not null" db:"dir" json:"dir"`
	Workbook   string    `gorm:"column:workbook;not null" db:"workbook" json:"workbook"`
	Rows       int       `gorm:"column:row_count" db:"row_count" json:"rows"`
	Sheets     int       `gorm:"column:sheet_count" db:"sheet_count" json:"sheets"`
	TotalHours float64   `gorm:"column:total_hours" db:"total_hours" json:"total_hours"`
	CreatedAt  time.Time `gorm:"column:created_at;index" db:"created_at" json:"created_at"`
}

func (ExportRun) TableName() string {
	return "export_runs"
}

// NewExportRun переводит результат запуска в запись истории.
func NewExportRun(res *ExportResult) ExportRun {
	return ExportRun{
		ID:         res.ID,
		Kind:       res.Kind,
		Dir:        res.Dir,
		Workbook:   res.Workbook,
		Rows:       res.Rows,
		Sheets:     len(res.Sheets),
		TotalHours: res.TotalHours,
		CreatedAt:  res.CreatedAt,
	}
}
